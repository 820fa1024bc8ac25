package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/cmd"
	"github.com/rubiojr/scout/pkg/config"
	"github.com/rubiojr/scout/pkg/log"
)

var logger = log.ForService("scout")

func main() {
	app := &cli.Command{
		Name:  "scout",
		Usage: "Schema-adaptive search over SQLite databases",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: getDefaultConfigPathOrExit(),
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite database to open (overrides db_path)",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if c.Bool("debug") {
				log.SetGlobalDebug(true)
			}
			log.ConfigureDebug(os.Getenv("SCOUT_DEBUG"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmd.InitCommand(),
			cmd.ServeCommand(),
			cmd.TablesCommand(),
			cmd.DescribeCommand(),
			cmd.SearchCommand(),
			cmd.RecordCommand(),
			cmd.IndexCommand(),
			cmd.ExportCommand(),
			cmd.StatsCommand(),
			cmd.MGRSCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func getDefaultConfigPathOrExit() string {
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		logger.Errorf("Failed to get default config path: %v", err)
		os.Exit(1)
	}
	return path
}
