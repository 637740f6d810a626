package batch

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFormat = errors.New("batch: unknown file extension")
	ErrCancelled     = errors.New("batch: cancelled before processing")
	ErrImporterPanic = errors.New("batch: importer panicked")
	ErrRendererPanic = errors.New("batch: renderer panicked")
)

// ImportError is reported when a file could not be imported.
type ImportError struct {
	File InputFile
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.File, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// RenderError is reported when the render of an imported file fails.
type RenderError struct {
	File InputFile
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.File, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
