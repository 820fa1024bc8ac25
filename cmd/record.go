package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/schema"
)

// RecordCommand creates the record command
func RecordCommand() *cli.Command {
	return &cli.Command{
		Name:      "record",
		Usage:     "Show one record by identifier",
		ArgsUsage: "<table> <id>",
		Flags:     []cli.Flag{formatFlag(formatText)},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("record takes a table name and an identifier")
			}
			table, id := c.Args().Get(0), c.Args().Get(1)

			e, _, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer closeEngine(e)

			row, err := e.Record(ctx, table, id)
			if err != nil {
				return err
			}
			if ok, err := writeStructured(os.Stdout, c.String("format"), row); ok {
				return err
			}

			td, err := e.Describe(table)
			if err != nil {
				return err
			}
			fmt.Println(paint(titleStyle, fmt.Sprintf("%s / %s", td.Name, id)))
			for _, f := range td.Fields {
				v := row[f.Name]
				if f.Role == schema.RoleClassification {
					if s, ok := v.(string); ok {
						fmt.Printf("%s %s\n", paint(keyStyle, f.Name+":"), paintClassification(s))
						continue
					}
				}
				fmt.Printf("%s %s\n", paint(keyStyle, f.Name+":"), formatValue(v))
			}
			return nil
		},
	}
}
