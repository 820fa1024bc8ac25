package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/engine"
)

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show database statistics",
		Flags: []cli.Flag{formatFlag(formatText)},
		Action: func(ctx context.Context, c *cli.Command) error {
			e, _, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer closeEngine(e)

			stats, err := e.Stats()
			if err != nil {
				return fmt.Errorf("getting stats: %w", err)
			}
			if ok, err := writeStructured(os.Stdout, c.String("format"), stats); ok {
				return err
			}
			formatStats(stats)
			return nil
		},
	}
}

// formatStats formats database statistics for display
func formatStats(stats *engine.Stats) {
	fmt.Println(paint(titleStyle, "Database Statistics"))
	fmt.Printf("%s %s\n", paint(keyStyle, "Database:"), stats.Database)
	fmt.Printf("%s %s\n", paint(keyStyle, "Size:"), humanize.Bytes(uint64(max(stats.DatabaseSize, 0))))
	fmt.Printf("%s %s\n", paint(keyStyle, "Loaded:"), formatTime(stats.LoadedAt))
	if stats.CatalogBuiltAt.After(stats.LoadedAt) {
		fmt.Printf("%s %s\n", paint(keyStyle, "Catalog refreshed:"), formatTime(stats.CatalogBuiltAt))
	}
	fmt.Printf("%s %d\n", paint(keyStyle, "Tables:"), stats.TotalTables)
	fmt.Printf("%s %s\n", paint(keyStyle, "Rows:"), humanize.Comma(stats.TotalRows))
	fts := yesNo(stats.FTSAvailable)
	if len(stats.FTSTables) > 0 {
		fts += " (" + strings.Join(stats.FTSTables, ", ") + ")"
	}
	fmt.Printf("%s %s\n", paint(keyStyle, "Full-text search:"), fts)

	if len(stats.Tables) == 0 {
		return
	}
	rows := make([][]string, 0, len(stats.Tables))
	for _, t := range stats.Tables {
		share := "-"
		if stats.TotalRows > 0 {
			share = fmt.Sprintf("%.1f%%", float64(t.Rows)/float64(stats.TotalRows)*100)
		}
		rows = append(rows, []string{
			t.Name,
			humanize.Comma(t.Rows),
			share,
			strconv.Itoa(t.Fields),
			yesNo(t.Indexed),
			yesNo(t.MGRS),
			paintClassification(t.Highest),
		})
	}
	fmt.Println(renderTable([]string{"Table", "Rows", "Share", "Fields", "Indexed", "MGRS", "Highest"}, rows))
}
