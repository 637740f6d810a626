package cmd

import (
	"github.com/urfave/cli"
)

func axisFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "up",
			Value: "Y",
			Usage: "the up axis of the input files (X, Y, Z, -X, -Y, -Z)",
		},
		cli.StringFlag{
			Name:  "forward",
			Value: "-Z",
			Usage: "the forward axis of the input files (X, Y, Z, -X, -Y, -Z)",
		},
	}
}

// NewApp creates the command line application.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "batchrender"
	app.Usage = "import model files one at a time and render a still image for each one"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a still image for each model file",
			Description: `
Import each model file into a temporary collection, optionally assign an
override material to all imported objects, render a still image and remove
the collection before moving to the next file.

Images are written to <project>/<output-dir>/<file name without extension>.
If no files are specified, every supported file in --dir is rendered.`,
			ArgsUsage: "[model_file1 model_file2 ...]",
			Flags: append([]cli.Flag{
				cli.StringFlag{
					Name:  "dir, d",
					Value: ".",
					Usage: "the directory containing the model files",
				},
				cli.StringFlag{
					Name:  "project, p",
					Value: ".",
					Usage: "the project directory where the output dir is created",
				},
				cli.StringFlag{
					Name:  "output-dir",
					Value: "output",
					Usage: "the output directory, relative to the project directory",
				},
				cli.StringFlag{
					Name:  "material, m",
					Usage: "assign this material to every imported object",
				},
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "spp",
					Value: 16,
					Usage: "samples per pixel",
				},
				cli.Float64Flag{
					Name:  "exposure",
					Value: 1.0,
					Usage: "camera exposure for tone-mapping",
				},
				cli.IntFlag{
					Name:  "supersample",
					Value: 1,
					Usage: "render at a multiple of the frame size and downscale",
				},
				cli.StringFlag{
					Name:  "format, f",
					Value: "png",
					Usage: "image format (png, jpg, bmp, tiff)",
				},
				cli.IntFlag{
					Name:  "workers",
					Usage: "number of tracer workers; defaults to the number of CPUs",
				},
				cli.StringFlag{
					Name:  "config, c",
					Usage: "load settings from a yaml file; flags override its values",
				},
				cli.BoolFlag{
					Name:  "skip-failed",
					Usage: "do not render files that failed to import",
				},
			}, axisFlags()...),
			Action: RenderBatch,
		},
		{
			Name:  "compile",
			Usage: "convert model files into native scene archives",
			Description: `
Import a model file in any supported format, applying the axis conversion,
and write the imported objects to a zip archive next to the source file.

Archives store geometry in the internal axis convention and can be rendered
like any other supported file.`,
			ArgsUsage: "model_file1 model_file2 ...",
			Flags:     axisFlags(),
			Action:    CompileScene,
		},
		{
			Name:      "scene-info",
			Usage:     "display statistics for a compiled model",
			ArgsUsage: "model_file",
			Flags:     axisFlags(),
			Action:    ShowSceneInfo,
		},
		{
			Name:   "list-formats",
			Usage:  "list supported model formats",
			Action: ListFormats,
		},
		{
			Name:  "list-materials",
			Usage: "list available materials",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "materials",
					Usage: "load additional materials from a yaml file",
				},
			},
			Action: ListMaterials,
		},
	}

	return app
}
