package renderer

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/tracer"
	"github.com/achilleasa/batchrender/tracer/cpu"
)

type Renderer interface {
	// Attach a compiled scene to all tracers.
	SetScene(*scene.OptimizedScene) error

	// Render frame.
	Render(ctx context.Context) error

	// Get the linear RGBA accumulation buffer for the last rendered frame.
	AccumBuffer() []float32

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}

// The number of float components per accumulation buffer pixel.
const accumComponents = 4

// A renderer that splits each frame into horizontal blocks and distributes
// them to a set of tracers.
type defaultRenderer struct {
	logger log.Logger

	sync.Mutex

	// Tracer block scheduler and the block assignments for the last frame.
	scheduler        tracer.BlockScheduler
	blockAssignments []uint32

	tracers []tracer.Tracer

	// Traced frame dims.
	frameW uint32
	frameH uint32

	accumBuffer []float32

	options  Options
	hasScene bool
	stats    FrameStats
}

// Create one CPU tracer per requested worker. If numTracers <= 0, one tracer
// per available CPU is created.
func NewCPUTracers(numTracers int) []tracer.Tracer {
	if numTracers <= 0 {
		numTracers = runtime.NumCPU()
	}

	tracers := make([]tracer.Tracer, numTracers)
	for idx := range tracers {
		tracers[idx] = cpu.NewTracer(fmt.Sprintf("cpu-%d", idx))
	}
	return tracers
}

// Create a new renderer using the specified block scheduler and tracers. The
// renderer takes ownership of the tracers and closes them when it is closed
// or when an error occurs.
func NewDefault(scheduler tracer.BlockScheduler, tracers []tracer.Tracer, opts Options) (Renderer, error) {
	if len(tracers) == 0 {
		return nil, ErrNoTracers
	}
	if err := opts.Validate(); err != nil {
		closeTracers(tracers)
		return nil, err
	}

	frameW, frameH := opts.traceDims()
	r := &defaultRenderer{
		logger:           log.New("renderer"),
		scheduler:        scheduler,
		blockAssignments: make([]uint32, len(tracers)),
		tracers:          tracers,
		frameW:           frameW,
		frameH:           frameH,
		accumBuffer:      make([]float32, frameW*frameH*accumComponents),
		options:          opts,
	}

	for _, tr := range tracers {
		if err := tr.Setup(frameW, frameH, r.accumBuffer); err != nil {
			r.Close()
			return nil, fmt.Errorf("renderer: could not setup tracer %q: %w", tr.Id(), err)
		}
	}

	r.logger.Debugf("attached %d tracer(s) to a %dx%d frame", len(tracers), frameW, frameH)
	return r, nil
}

// Attach a compiled scene and its camera to all tracers.
func (r *defaultRenderer) SetScene(sc *scene.OptimizedScene) error {
	if sc == nil {
		return ErrSceneNotDefined
	}
	if sc.Camera == nil {
		return ErrCameraNotDefined
	}

	r.Lock()
	defer r.Unlock()

	for _, tr := range r.tracers {
		tr.AppendChange(tracer.SetScene, sc)
		tr.AppendChange(tracer.UpdateCamera, sc.Camera)
		if err := tr.ApplyPendingChanges(); err != nil {
			return fmt.Errorf("renderer: tracer %q rejected scene: %w", tr.Id(), err)
		}
	}
	r.hasScene = true
	return nil
}

// Render a frame. If ctx is cancelled before all blocks are complete, Render
// returns ErrInterrupted.
func (r *defaultRenderer) Render(ctx context.Context) error {
	r.Lock()
	defer r.Unlock()

	if !r.hasScene {
		return ErrSceneNotDefined
	}
	if ctx.Err() != nil {
		return ErrInterrupted
	}

	start := time.Now()
	r.blockAssignments = r.scheduler.Schedule(r.tracers, r.frameH)

	// Channels are buffered so tracers never block when we bail out early.
	doneChan := make(chan uint32, len(r.tracers))
	errChan := make(chan error, len(r.tracers))

	var blockY uint32
	pending := 0
	for idx, tr := range r.tracers {
		blockH := r.blockAssignments[idx]
		if blockH == 0 {
			continue
		}

		tr.Enqueue(tracer.BlockRequest{
			BlockY:          blockY,
			BlockH:          blockH,
			SamplesPerPixel: r.options.SamplesPerPixel,
			Seed:            r.options.Seed,
			DoneChan:        doneChan,
			ErrChan:         errChan,
		})
		blockY += blockH
		pending++
	}

	var firstErr error
	for ; pending > 0; pending-- {
		select {
		case <-doneChan:
		case err := <-errChan:
			if firstErr == nil {
				firstErr = err
			}
		case <-ctx.Done():
			return ErrInterrupted
		}
	}
	if firstErr != nil {
		return firstErr
	}

	r.updateStats(time.Since(start))
	return nil
}

// Get the accumulation buffer for the last rendered frame.
func (r *defaultRenderer) AccumBuffer() []float32 {
	return r.accumBuffer
}

// Shutdown renderer and any attached tracer.
func (r *defaultRenderer) Close() {
	closeTracers(r.tracers)
}

// Get render statistics.
func (r *defaultRenderer) Stats() FrameStats {
	r.Lock()
	defer r.Unlock()
	return r.stats
}

func (r *defaultRenderer) updateStats(renderTime time.Duration) {
	r.stats = FrameStats{
		Tracers:    make([]TracerStat, len(r.tracers)),
		RenderTime: renderTime,
	}
	for idx, tr := range r.tracers {
		blockH := r.blockAssignments[idx]
		stat := TracerStat{
			Id:           tr.Id(),
			BlockH:       blockH,
			FramePercent: 100.0 * float32(blockH) / float32(r.frameH),
		}
		if blockH != 0 {
			stat.RenderTime = time.Duration(tr.Stats().BlockTime)
		}
		r.stats.Tracers[idx] = stat
	}
}

func closeTracers(tracers []tracer.Tracer) {
	for _, tr := range tracers {
		tr.Close()
	}
}
