package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/achilleasa/batchrender/asset/scene/reader"
	"github.com/achilleasa/batchrender/types"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List the supported model formats.
func ListFormats(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Format", "Extensions", "Axis conversion"})
	for _, format := range reader.NewRegistry(appFs).Formats() {
		table.Append([]string{
			format.Name,
			strings.Join(format.Extensions, ", "),
			fmt.Sprintf("%t", format.ConvertAxes),
		})
	}
	table.Render()

	logger.Noticef("supported formats\n%s", buf.String())
	return nil
}

// List the registered materials.
func ListMaterials(ctx *cli.Context) error {
	setupLogging(ctx)

	lib, err := loadMaterialLibrary(ctx.String("materials"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Name", "Kind", "Albedo", "Emission", "Roughness", "IOR"})
	for _, mat := range lib.Materials() {
		table.Append([]string{
			mat.Name,
			mat.Kind.String(),
			fmtColor(mat.Albedo),
			fmtColor(mat.Radiance()),
			fmt.Sprintf("%.2f", mat.Roughness),
			fmt.Sprintf("%.2f", mat.IOR),
		})
	}
	table.SetFooter([]string{"", "", "", "", "TOTAL", fmt.Sprintf("%d", len(lib.Materials()))})
	table.Render()

	logger.Noticef("material library\n%s", buf.String())
	return nil
}

func fmtColor(c types.Vec3) string {
	return fmt.Sprintf("%.2f %.2f %.2f", c[0], c[1], c[2])
}
