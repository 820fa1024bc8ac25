package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/schema"
)

// TablesCommand creates the tables command
func TablesCommand() *cli.Command {
	return &cli.Command{
		Name:    "tables",
		Aliases: []string{"ls"},
		Usage:   "List the tables of the database",
		Flags:   []cli.Flag{formatFlag(formatText)},
		Action: func(ctx context.Context, c *cli.Command) error {
			e, _, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer closeEngine(e)

			tables, err := e.Tables()
			if err != nil {
				return fmt.Errorf("listing tables: %w", err)
			}
			if ok, err := writeStructured(os.Stdout, c.String("format"), tables); ok {
				return err
			}
			printTables(e.Status().Path, tables)
			return nil
		},
	}
}

func printTables(database string, tables []schema.TableDescriptor) {
	fmt.Println(paint(titleStyle, database))
	if len(tables) == 0 {
		fmt.Println(paint(metaStyle, "No tables found."))
		return
	}

	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, []string{
			t.Name,
			humanize.Comma(t.RowCount),
			strconv.Itoa(len(t.Fields)),
			strings.Join(t.FreeTextFields, ", "),
			strings.Join(t.MGRSFields, ", "),
			paintClassification(t.HighestClassification),
			yesNo(t.Indexed),
		})
	}
	fmt.Println(renderTable(
		[]string{"Table", "Rows", "Fields", "Free text", "MGRS", "Highest", "Indexed"},
		rows,
	))
}

// DescribeCommand creates the describe command
func DescribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "Show the classified fields of a table",
		ArgsUsage: "<table>",
		Flags:     []cli.Flag{formatFlag(formatText)},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("describe takes exactly one table name")
			}
			e, _, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer closeEngine(e)

			td, err := e.Describe(c.Args().First())
			if err != nil {
				return err
			}
			if ok, err := writeStructured(os.Stdout, c.String("format"), td); ok {
				return err
			}
			idx, indexed, err := e.IndexInfo(td.Name)
			if err != nil {
				return err
			}
			printDescriptor(td)
			if indexed {
				fmt.Printf("%s %s %s\n", paint(keyStyle, "Full-text index:"), idx.Name,
					paint(metaStyle, "("+strings.Join(idx.Fields, ", ")+")"))
			}
			printFields(td)
			return nil
		},
	}
}

func printDescriptor(td schema.TableDescriptor) {
	fmt.Printf("%s %s\n", paint(titleStyle, td.Name), paint(metaStyle, fmt.Sprintf("(%s rows)", humanize.Comma(td.RowCount))))
	if td.HighestClassification != "" {
		fmt.Printf("%s %s\n", paint(keyStyle, "Highest classification:"), paintClassification(td.HighestClassification))
	}
	if len(td.IDFields) > 0 {
		fmt.Printf("%s %s\n", paint(keyStyle, "Identifiers:"), strings.Join(td.IDFields, ", "))
	}
}

func printFields(td schema.TableDescriptor) {
	rows := make([][]string, 0, len(td.Fields))
	for _, f := range td.Fields {
		var flags []string
		if f.PrimaryKey {
			flags = append(flags, "pk")
		}
		if f.Searchable {
			flags = append(flags, "search")
		}
		if f.Sortable {
			flags = append(flags, "sort")
		}
		if f.Filterable {
			flags = append(flags, "filter")
		}
		rows = append(rows, []string{f.Name, f.Type, string(f.Affinity), string(f.Role), strings.Join(flags, " ")})
	}
	fmt.Println(renderTable([]string{"Field", "Type", "Affinity", "Role", "Capabilities"}, rows))
}
