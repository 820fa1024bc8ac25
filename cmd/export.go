package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gosimple/slug"
	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/export"
)

// ExportCommand creates the export command
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the MGRS locations of matching rows as KML or KMZ",
		ArgsUsage: "<table> [query...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Document kind: kml or kmz",
				Value: export.FormatKML,
			},
			&cli.StringFlag{
				Name:  "mgrs-field",
				Usage: "Coordinate column (defaults to the first MGRS field)",
			},
			&cli.StringFlag{
				Name:  "filters",
				Usage: "Structured filters as a JSON object",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of rows to export",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (defaults to <table>.<kind>, \"-\" writes to stdout)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 1 {
				return fmt.Errorf("export needs a table name")
			}
			args := c.Args().Slice()
			req := &export.Request{
				Table:           args[0],
				Query:           strings.Join(args[1:], " "),
				CoordinateField: c.String("mgrs-field"),
				Limit:           c.Int("limit"),
				Format:          strings.ToLower(c.String("kind")),
			}
			if f := c.String("filters"); f != "" {
				dec := json.NewDecoder(strings.NewReader(f))
				dec.UseNumber()
				if err := dec.Decode(&req.Filters); err != nil {
					return fmt.Errorf("parsing --filters: %w", err)
				}
			}

			e, _, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer closeEngine(e)

			doc, err := e.Export(ctx, req)
			if err != nil {
				return err
			}
			return writeExport(doc, c.String("output"))
		},
	}
}

func writeExport(doc *export.Document, output string) error {
	if output == "-" {
		_, err := os.Stdout.Write(doc.Data)
		return err
	}
	if output == "" {
		name := slug.Make(doc.Metadata.Table)
		if name == "" {
			name = "export"
		}
		output = name + "." + doc.Format
	}
	if err := os.WriteFile(output, doc.Data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	m := doc.Metadata
	fmt.Printf("%s %s\n", paint(titleStyle, "Wrote "+output),
		paint(metaStyle, fmt.Sprintf("(%s, export %s)", humanize.Bytes(uint64(len(doc.Data))), m.ExportID)))
	fmt.Printf("%s %d requested, %d exported, %d skipped\n", paint(keyStyle, m.CoordinateField+":"), m.Requested, m.Exported, m.Skipped)
	for _, e := range m.Errors {
		fmt.Printf("   %s\n", paint(metaStyle, e))
	}
	return nil
}
