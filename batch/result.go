package batch

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/olekukonko/tablewriter"
)

// State tracks the progress of a single file through the batch.
type State uint8

const (
	Created State = iota
	Imported
	ImportFailed
	Unknown
	MaterialApplied
	MaterialSkipped
	Rendered
	RenderFailed
	RenderSkipped
	Cleaned
	Cancelled
)

var stateNames = [...]string{
	"created",
	"imported",
	"import failed",
	"unknown",
	"material applied",
	"material skipped",
	"rendered",
	"render failed",
	"render skipped",
	"cleaned",
	"cancelled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// FileResult records the outcome of processing a single file.
type FileResult struct {
	File InputFile

	// The terminal state and the states visited to reach it.
	State   State
	History []State

	// Set to an *ImportError if the file could not be imported.
	ImportErr error

	MaterialApplied bool

	// The written image path; empty if no image was written.
	Output string

	// Set to a *RenderError if rendering failed.
	RenderErr error

	// Set if the container could not be unlinked or removed.
	CleanupErr error

	// Number of imported objects.
	Objects int

	Duration time.Duration
}

func (r *FileResult) transition(s State) {
	r.State = s
	r.History = append(r.History, s)
}

// Failed returns true if any step for this file reported an error.
func (r *FileResult) Failed() bool {
	return r.State == Cancelled || r.ImportErr != nil || r.RenderErr != nil || r.CleanupErr != nil
}

// Err returns all errors reported for this file.
func (r *FileResult) Err() error {
	var err *multierror.Error
	if r.State == Cancelled {
		err = multierror.Append(err, fmt.Errorf("%s: %w", r.File, ErrCancelled))
	}
	if r.ImportErr != nil {
		err = multierror.Append(err, r.ImportErr)
	}
	if r.RenderErr != nil {
		err = multierror.Append(err, r.RenderErr)
	}
	if r.CleanupErr != nil {
		err = multierror.Append(err, r.CleanupErr)
	}
	return err.ErrorOrNil()
}

// Status summarizes a batch run.
type Status uint8

const (
	Success Status = iota
	PartialFailure
)

func (s Status) String() string {
	if s == PartialFailure {
		return "partial failure"
	}
	return "success"
}

// Summary collects the per-file results of a batch run.
type Summary struct {
	Results []FileResult

	// Collection bookkeeping across the whole run.
	ContainersCreated int
	ContainersRemoved int
	OrphansPurged     int

	Duration time.Duration
}

// Outputs returns the written image paths in input order.
func (s *Summary) Outputs() []string {
	var out []string
	for _, res := range s.Results {
		if res.Output != "" {
			out = append(out, res.Output)
		}
	}
	return out
}

// Err aggregates the errors of all files.
func (s *Summary) Err() error {
	var err *multierror.Error
	for idx := range s.Results {
		if fileErr := s.Results[idx].Err(); fileErr != nil {
			err = multierror.Append(err, fileErr)
		}
	}
	return err.ErrorOrNil()
}

// Status returns Success if every file was processed without errors.
func (s *Summary) Status() Status {
	for idx := range s.Results {
		if s.Results[idx].Failed() {
			return PartialFailure
		}
	}
	return Success
}

// Format the per-file results as a table.
func (s *Summary) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"File", "Objects", "Material", "Output", "Time", "Error"})
	for _, res := range s.Results {
		material := "-"
		if res.MaterialApplied {
			material = "override"
		}
		errText := ""
		if err := res.Err(); err != nil {
			errText = res.firstErr().Error()
		}
		table.Append([]string{
			res.File.Name() + res.File.Ext(),
			fmt.Sprintf("%d", res.Objects),
			material,
			res.Output,
			res.Duration.Round(time.Millisecond).String(),
			errText,
		})
	}
	table.SetFooter([]string{
		fmt.Sprintf("%d file(s)", len(s.Results)),
		"",
		"",
		fmt.Sprintf("%d image(s)", len(s.Outputs())),
		s.Duration.Round(time.Millisecond).String(),
		s.Status().String(),
	})

	table.Render()
	return buf.String()
}

func (r *FileResult) firstErr() error {
	switch {
	case r.State == Cancelled:
		return ErrCancelled
	case r.ImportErr != nil:
		return r.ImportErr
	case r.RenderErr != nil:
		return r.RenderErr
	}
	return r.CleanupErr
}
