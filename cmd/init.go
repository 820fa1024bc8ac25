package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/config"
)

// InitCommand creates the init command
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Initialize configuration",
		ArgsUsage: "[database]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing configuration file",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			dbPath := c.Args().First()
			if dbPath == "" {
				dbPath = c.String("db")
			}
			return initConfig(c.String("config"), dbPath, c.Bool("force"))
		},
	}
}

// initConfig writes the sample configuration to configPath
func initConfig(configPath, dbPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}
	if dbPath != "" {
		abs, err := filepath.Abs(dbPath)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", dbPath, err)
		}
		dbPath = abs
	}
	if err := config.SaveTemplateConfig(configPath, dbPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration initialized at %s\n", configPath)
	return nil
}
