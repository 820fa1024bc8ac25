package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// IndexCommand creates the index command
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "Build or rebuild the full-text index of tables",
		ArgsUsage: "[table...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "fields",
				Usage: "Comma separated columns to index (defaults to the free-text fields)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Index every table with free-text fields",
			},
			formatFlag(formatText),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			tables := c.Args().Slice()
			if len(tables) == 0 && !c.Bool("all") {
				return fmt.Errorf("name at least one table or pass --all")
			}
			var fields []string
			if f := c.String("fields"); f != "" {
				for _, name := range strings.Split(f, ",") {
					if name = strings.TrimSpace(name); name != "" {
						fields = append(fields, name)
					}
				}
			}

			e, _, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer closeEngine(e)

			if c.Bool("all") {
				all, err := e.Tables()
				if err != nil {
					return err
				}
				for _, td := range all {
					if len(td.FreeTextFields) > 0 && td.HasRowID {
						tables = append(tables, td.Name)
					}
				}
			}

			type result struct {
				Table     string   `json:"table" yaml:"table"`
				Index     string   `json:"index" yaml:"index"`
				Fields    []string `json:"fields" yaml:"fields"`
				Documents int64    `json:"documents" yaml:"documents"`
				Recreated bool     `json:"recreated" yaml:"recreated"`
				TookMS    int64    `json:"took_ms" yaml:"took_ms"`
			}
			var results []result
			for _, table := range tables {
				info, err := e.EnsureIndex(ctx, table, fields)
				if err != nil {
					return fmt.Errorf("indexing %s: %w", table, err)
				}
				results = append(results, result{
					Table:     info.Table,
					Index:     info.Name,
					Fields:    info.Fields,
					Documents: info.Documents,
					Recreated: info.Recreated,
					TookMS:    info.Took.Milliseconds(),
				})
			}

			if ok, err := writeStructured(os.Stdout, c.String("format"), results); ok {
				return err
			}
			if len(results) == 0 {
				fmt.Println(paint(metaStyle, "No tables with free-text fields."))
				return nil
			}
			for _, r := range results {
				action := "Rebuilt"
				if r.Recreated {
					action = "Recreated"
				}
				fmt.Printf("%s %s %s\n", paint(titleStyle, action+" "+r.Index),
					paint(metaStyle, fmt.Sprintf("(%s documents, %d ms)", humanize.Comma(r.Documents), r.TookMS)),
					strings.Join(r.Fields, ", "))
			}
			return nil
		},
	}
}
