package renderer

import (
	"fmt"
	"strings"
)

// ImageFormat selects the encoder used for rendered frames.
type ImageFormat uint8

const (
	PNG ImageFormat = iota
	JPEG
	BMP
	TIFF
)

var imageFormatNames = map[string]ImageFormat{
	"png":  PNG,
	"jpg":  JPEG,
	"jpeg": JPEG,
	"bmp":  BMP,
	"tif":  TIFF,
	"tiff": TIFF,
}

// Parse an image format name (png, jpg/jpeg, bmp or tif/tiff).
func ParseImageFormat(name string) (ImageFormat, error) {
	f, ok := imageFormatNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return PNG, fmt.Errorf("%w: %q", ErrUnknownImageFormat, name)
	}
	return f, nil
}

func (f ImageFormat) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case BMP:
		return "bmp"
	case TIFF:
		return "tiff"
	default:
		return "png"
	}
}

// Get the file extension (including the leading dot) for this format.
func (f ImageFormat) Extension() string {
	switch f {
	case JPEG:
		return ".jpg"
	case BMP:
		return ".bmp"
	case TIFF:
		return ".tif"
	default:
		return ".png"
	}
}

func (f *ImageFormat) UnmarshalText(text []byte) error {
	parsed, err := ParseImageFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f ImageFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of samples.
	SamplesPerPixel uint32

	// Exposure for tonemapping.
	Exposure float32

	// Frames are traced at Supersample times the output dims and then
	// downscaled. Values <= 1 disable supersampling.
	Supersample uint32

	// The number of CPU tracers. Values <= 0 select one tracer per CPU.
	NumTracers int

	// Output image format and JPEG quality (1-100).
	Format      ImageFormat
	JPEGQuality int

	// Seed for the tracers' random number generators.
	Seed uint32
}

// DefaultOptions returns the options used when no overrides are supplied.
func DefaultOptions() Options {
	return Options{
		FrameW:          512,
		FrameH:          512,
		SamplesPerPixel: 16,
		Exposure:        1.0,
		Supersample:     1,
		Format:          PNG,
		JPEGQuality:     90,
		Seed:            1,
	}
}

// Validate the render options.
func (o Options) Validate() error {
	if o.FrameW == 0 || o.FrameH == 0 {
		return fmt.Errorf("%w: frame dimensions must be positive; got %dx%d", ErrInvalidOptions, o.FrameW, o.FrameH)
	}
	if o.SamplesPerPixel == 0 {
		return fmt.Errorf("%w: samples per pixel must be positive", ErrInvalidOptions)
	}
	if o.Exposure <= 0 {
		return fmt.Errorf("%w: exposure must be positive; got %v", ErrInvalidOptions, o.Exposure)
	}
	if o.Format == JPEG && (o.JPEGQuality < 1 || o.JPEGQuality > 100) {
		return fmt.Errorf("%w: jpeg quality must be in [1, 100]; got %d", ErrInvalidOptions, o.JPEGQuality)
	}
	return nil
}

// Get the dims of the traced frame after applying supersampling.
func (o Options) traceDims() (uint32, uint32) {
	if o.Supersample <= 1 {
		return o.FrameW, o.FrameH
	}
	return o.FrameW * o.Supersample, o.FrameH * o.Supersample
}
