package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/achilleasa/batchrender/renderer"
	"github.com/achilleasa/batchrender/types"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// The output directory (relative to the project dir) for rendered stills.
const DefaultOutputDir = "output"

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Render settings.
type Render struct {
	Width           uint32               `yaml:"width"`
	Height          uint32               `yaml:"height"`
	SamplesPerPixel uint32               `yaml:"samples_per_pixel"`
	Exposure        float32              `yaml:"exposure"`
	Format          renderer.ImageFormat `yaml:"format"`
	JPEGQuality     int                  `yaml:"jpeg_quality"`
	Workers         int                  `yaml:"workers"`
	Supersample     uint32               `yaml:"supersample"`
	Seed            uint32               `yaml:"seed"`
	Background      []float32            `yaml:"background"`
}

// Config holds the settings for a batch render. Values not present in a
// loaded file keep their defaults.
type Config struct {
	OutputDir       string               `yaml:"output_dir"`
	Axes            types.AxisConvention `yaml:"axes"`
	MaterialLibrary string               `yaml:"material_library"`
	Material        string               `yaml:"material"`
	SkipFailed      bool                 `yaml:"skip_failed"`
	Render          Render               `yaml:"render"`
}

// Default returns the default configuration.
func Default() *Config {
	opts := renderer.DefaultOptions()
	return &Config{
		OutputDir: DefaultOutputDir,
		Axes:      types.DefaultAxisConvention(),
		Render: Render{
			Width:           opts.FrameW,
			Height:          opts.FrameH,
			SamplesPerPixel: opts.SamplesPerPixel,
			Exposure:        opts.Exposure,
			Format:          opts.Format,
			JPEGQuality:     opts.JPEGQuality,
			Workers:         opts.NumTracers,
			Supersample:     opts.Supersample,
			Seed:            opts.Seed,
			Background:      []float32{0.05, 0.05, 0.05},
		},
	}
}

// Load a yaml config file from fs on top of the default configuration. The
// path may start with "~". Relative material library paths are resolved
// against the config file's directory.
func Load(fs afero.Fs, path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("config: could not read %q: %w", path, err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: could not parse %q: %w", path, err)
	}

	if cfg.MaterialLibrary != "" {
		if cfg.MaterialLibrary, err = ExpandPath(cfg.MaterialLibrary); err != nil {
			return nil, err
		}
		if !filepath.IsAbs(cfg.MaterialLibrary) {
			cfg.MaterialLibrary = filepath.Join(filepath.Dir(path), cfg.MaterialLibrary)
		}
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate the configuration.
func (cfg *Config) Validate() error {
	if cfg.OutputDir == "" {
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	}
	if err := cfg.Axes.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := cfg.BackgroundColor(); err != nil {
		return err
	}
	if err := cfg.RenderOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// RenderOptions converts the render settings into renderer options.
func (cfg *Config) RenderOptions() renderer.Options {
	return renderer.Options{
		FrameW:          cfg.Render.Width,
		FrameH:          cfg.Render.Height,
		SamplesPerPixel: cfg.Render.SamplesPerPixel,
		Exposure:        cfg.Render.Exposure,
		Supersample:     cfg.Render.Supersample,
		NumTracers:      cfg.Render.Workers,
		Format:          cfg.Render.Format,
		JPEGQuality:     cfg.Render.JPEGQuality,
		Seed:            cfg.Render.Seed,
	}
}

// BackgroundColor returns the configured world color.
func (cfg *Config) BackgroundColor() (types.Vec3, error) {
	bg := cfg.Render.Background
	switch len(bg) {
	case 1:
		return types.Vec3{bg[0], bg[0], bg[0]}, nil
	case 3:
		return types.Vec3{bg[0], bg[1], bg[2]}, nil
	}
	return types.Vec3{}, fmt.Errorf("%w: background: expected 1 or 3 components; got %d", ErrInvalidConfig, len(bg))
}

// OutputPath returns the directory where stills for the given project
// directory are written.
func (cfg *Config) OutputPath(projectDir string) string {
	return filepath.Join(projectDir, cfg.OutputDir)
}

// ExpandPath expands a leading "~" to the current user's home directory.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("config: could not expand %q: %w", path, err)
	}
	return expanded, nil
}
