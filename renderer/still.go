package renderer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"

	"github.com/achilleasa/batchrender/asset/compiler"
	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/tracer"
	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/chewxy/math32"
	"github.com/spf13/afero"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Display gamma applied after tonemapping.
const displayGamma = 2.2

// StillRenderer renders a single still image of a scene and writes it to a
// filesystem.
type StillRenderer struct {
	logger log.Logger

	fs         afero.Fs
	defaultMat *material.Material
	options    Options

	renderer Renderer
}

// Create a still renderer backed by CPU tracers. Rendered images are written
// to fs. Objects without an active material are rendered with defaultMat.
func NewStillRenderer(fs afero.Fs, defaultMat *material.Material, opts Options) (*StillRenderer, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if defaultMat == nil {
		return nil, compiler.ErrNoDefaultMaterial
	}

	r, err := NewDefault(tracer.NewPerfectScheduler(), NewCPUTracers(opts.NumTracers), opts)
	if err != nil {
		return nil, err
	}

	return &StillRenderer{
		logger:     log.New("still renderer"),
		fs:         fs,
		defaultMat: defaultMat,
		options:    opts,
		renderer:   r,
	}, nil
}

// Render the linked contents of sc and write the image to target. The
// extension for the configured image format is appended to target and the
// final path is returned. Missing parent directories are created.
func (sr *StillRenderer) RenderStill(ctx context.Context, sc *scene.Scene, target string) (string, error) {
	if sc == nil {
		return "", ErrSceneNotDefined
	}

	compiled, err := compiler.Compile(sc, sr.defaultMat)
	if err != nil {
		return "", err
	}

	traceW, traceH := sr.options.traceDims()
	compiled.Camera.SetupProjection(float32(traceW) / float32(traceH))

	if err = sr.renderer.SetScene(compiled); err != nil {
		return "", err
	}
	if err = sr.renderer.Render(ctx); err != nil {
		return "", err
	}

	img := sr.postProcess(sr.renderer.AccumBuffer(), traceW, traceH)

	outFile := target + sr.options.Format.Extension()
	if err = sr.writeImage(img, outFile); err != nil {
		return "", err
	}

	sr.logger.Infof("wrote %dx%d image to %q", sr.options.FrameW, sr.options.FrameH, outFile)
	return outFile, nil
}

// Get statistics for the last rendered frame.
func (sr *StillRenderer) Stats() FrameStats {
	return sr.renderer.Stats()
}

// Shutdown the renderer and its tracers.
func (sr *StillRenderer) Close() {
	sr.renderer.Close()
}

// Tonemap the accumulation buffer, apply display gamma and downscale to the
// output dims.
func (sr *StillRenderer) postProcess(accum []float32, traceW, traceH uint32) image.Image {
	img := toneMap(accum, int(traceW), int(traceH), sr.options.Exposure)
	img = adjust.Gamma(img, displayGamma)
	if traceW != sr.options.FrameW || traceH != sr.options.FrameH {
		img = transform.Resize(img, int(sr.options.FrameW), int(sr.options.FrameH), transform.Linear)
	}
	return img
}

func (sr *StillRenderer) writeImage(img image.Image, path string) error {
	if err := sr.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("renderer: could not create output dir: %w", err)
	}

	f, err := sr.fs.Create(path)
	if err != nil {
		return fmt.Errorf("renderer: could not create %q: %w", path, err)
	}

	if err = encoderFor(sr.options)(f, img); err != nil {
		f.Close()
		return fmt.Errorf("renderer: could not encode %q: %w", path, err)
	}
	return f.Close()
}

func encoderFor(opts Options) imgio.Encoder {
	switch opts.Format {
	case JPEG:
		return imgio.JPEGEncoder(opts.JPEGQuality)
	case BMP:
		return func(w io.Writer, img image.Image) error {
			return bmp.Encode(w, img)
		}
	case TIFF:
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}
	default:
		return imgio.PNGEncoder()
	}
}

// Map linear HDR values to [0, 1] using exponential exposure and convert to
// 8-bit RGBA.
func toneMap(accum []float32, frameW, frameH int, exposure float32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frameW, frameH))
	for y := 0; y < frameH; y++ {
		for x := 0; x < frameW; x++ {
			offset := (y*frameW + x) * accumComponents
			img.SetRGBA(x, y, color.RGBA{
				R: toByte(1.0 - math32.Exp(-accum[offset+0]*exposure)),
				G: toByte(1.0 - math32.Exp(-accum[offset+1]*exposure)),
				B: toByte(1.0 - math32.Exp(-accum[offset+2]*exposure)),
				A: toByte(accum[offset+3]),
			})
		}
	}
	return img
}

func toByte(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255.0 + 0.5)
}
