package cpu

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/tracer"
)

// The number of float components per accumulation buffer pixel.
const accumComponents = 4

type cpuTracer struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	// The tracer id.
	id string

	// A buffer for queuing updates. Updates are grouped by type and
	// latest updates always overwrite the previous ones.
	updateBuffer map[tracer.ChangeType]interface{}

	// The scene and camera used for tracing.
	sceneData *scene.OptimizedScene
	camera    *scene.Camera
	rig       lightRig

	// Output frame dims and accumulation buffer.
	frameW      uint32
	frameH      uint32
	accumBuffer []float32

	// A channel for receiving block requests from the renderer.
	blockReqChan chan tracer.BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}
	closeOnce sync.Once

	// Statistics for last rendered block.
	stats *tracer.Stats
}

// Create a new CPU tracer.
func NewTracer(id string) tracer.Tracer {
	return &cpuTracer{
		logger:       log.New(fmt.Sprintf("cpu tracer (%s)", id)),
		id:           id,
		updateBuffer: make(map[tracer.ChangeType]interface{}),
		blockReqChan: make(chan tracer.BlockRequest),
		closeChan:    make(chan struct{}),
		stats:        &tracer.Stats{},
	}
}

// Get tracer id.
func (tr *cpuTracer) Id() string {
	return tr.id
}

// CPU tracers are the speed baseline.
func (tr *cpuTracer) SpeedEstimate() float32 {
	return 1.0
}

// Attach tracer to the accumulation buffer and start processing incoming
// block requests.
func (tr *cpuTracer) Setup(frameW, frameH uint32, accumBuffer []float32) error {
	tr.Lock()
	defer tr.Unlock()

	if tr.accumBuffer != nil {
		return ErrAlreadySetup
	}
	if frameW == 0 || frameH == 0 {
		return ErrInvalidFrameDims
	}
	if uint64(len(accumBuffer)) < uint64(frameW)*uint64(frameH)*accumComponents {
		return ErrAccumBufferTooSmall
	}

	tr.frameW = frameW
	tr.frameH = frameH
	tr.accumBuffer = accumBuffer

	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		var blockReq tracer.BlockRequest
		close(readyChan)
		for {
			select {
			case blockReq = <-tr.blockReqChan:
				// Render block and reply with our completion status
				if err := tr.process(blockReq); err != nil {
					blockReq.ErrChan <- err
					continue
				}
				blockReq.DoneChan <- blockReq.BlockH
			case <-tr.closeChan:
				return
			}
		}
	}()

	// Wait for worker goroutine to start
	<-readyChan
	return nil
}

// Shutdown the tracer worker. Close blocks until any in-flight block is
// complete.
func (tr *cpuTracer) Close() {
	tr.closeOnce.Do(func() {
		close(tr.closeChan)
	})
	tr.wg.Wait()
}

// Enqueue block request. If the tracer is closed, the request fails with
// ErrTracerClosed.
func (tr *cpuTracer) Enqueue(blockReq tracer.BlockRequest) {
	select {
	case tr.blockReqChan <- blockReq:
	case <-tr.closeChan:
		blockReq.ErrChan <- ErrTracerClosed
	}
}

// Append a change to the tracer's update buffer.
func (tr *cpuTracer) AppendChange(changeType tracer.ChangeType, data interface{}) {
	tr.Lock()
	defer tr.Unlock()
	tr.updateBuffer[changeType] = data
}

// Apply all pending changes from the update buffer.
func (tr *cpuTracer) ApplyPendingChanges() error {
	tr.Lock()
	defer tr.Unlock()

	// Scene changes must be applied before camera changes.
	for _, changeType := range []tracer.ChangeType{tracer.SetScene, tracer.UpdateCamera} {
		data, pending := tr.updateBuffer[changeType]
		if !pending {
			continue
		}

		switch changeType {
		case tracer.SetScene:
			sc, ok := data.(*scene.OptimizedScene)
			if !ok || sc == nil {
				return ErrNoSceneData
			}
			tr.sceneData = sc
			if tr.camera == nil && sc.Camera != nil {
				tr.camera = sc.Camera
				tr.rig = newLightRig(sc.Camera)
			}
		case tracer.UpdateCamera:
			cam, ok := data.(*scene.Camera)
			if !ok || cam == nil {
				return ErrNoCamera
			}
			tr.camera = cam
			tr.rig = newLightRig(cam)
		}
		delete(tr.updateBuffer, changeType)
	}

	if len(tr.updateBuffer) != 0 {
		for changeType := range tr.updateBuffer {
			return fmt.Errorf("cpu tracer: unsupported change type %d", changeType)
		}
	}
	return nil
}

// Retrieve last frame statistics.
func (tr *cpuTracer) Stats() *tracer.Stats {
	return tr.stats
}

// Trace the rows of a block request into the accumulation buffer.
func (tr *cpuTracer) process(blockReq tracer.BlockRequest) error {
	tr.Lock()
	defer tr.Unlock()

	start := time.Now()
	if tr.sceneData == nil {
		return ErrNoSceneData
	}
	if tr.camera == nil {
		return ErrNoCamera
	}
	if blockReq.BlockY+blockReq.BlockH > tr.frameH {
		return ErrBlockOutOfBounds
	}

	spp := blockReq.SamplesPerPixel
	if spp == 0 {
		spp = 1
	}

	sh := &shader{
		sc:  tr.sceneData,
		rig: tr.rig,
		rng: rand.New(rand.NewSource(int64(blockReq.Seed)<<32 | int64(blockReq.BlockY))),
	}

	invW := 1.0 / float32(tr.frameW)
	invH := 1.0 / float32(tr.frameH)
	sampleScale := 1.0 / float32(spp)
	for y := blockReq.BlockY; y < blockReq.BlockY+blockReq.BlockH; y++ {
		for x := uint32(0); x < tr.frameW; x++ {
			var r, g, b float32
			for sample := uint32(0); sample < spp; sample++ {
				// The first sample goes through the pixel center
				jx, jy := float32(0.5), float32(0.5)
				if sample > 0 {
					jx, jy = sh.rng.Float32(), sh.rng.Float32()
				}

				dir := tr.camera.RayDir((float32(x)+jx)*invW, (float32(y)+jy)*invH)
				color := sh.radiance(newRay(tr.camera.Position, dir), 0)
				r += color[0]
				g += color[1]
				b += color[2]
			}

			offset := (y*tr.frameW + x) * accumComponents
			tr.accumBuffer[offset+0] = r * sampleScale
			tr.accumBuffer[offset+1] = g * sampleScale
			tr.accumBuffer[offset+2] = b * sampleScale
			tr.accumBuffer[offset+3] = 1.0
		}
	}

	tr.stats.BlockH = blockReq.BlockH
	tr.stats.BlockTime = time.Since(start).Nanoseconds()
	return nil
}
