package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/config"
	"github.com/rubiojr/scout/pkg/engine"
	"github.com/rubiojr/scout/pkg/log"
)

// loadConfig reads the file named by --config and applies the global
// --db and --debug flags on top of it.
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if db := c.String("db"); db != "" {
		cfg.DBPath = db
	}
	if cfg.Debug {
		log.SetGlobalDebug(true)
	}
	return cfg, nil
}

// openEngine loads the configuration and activates its database. The caller
// must Close the engine.
func openEngine(ctx context.Context, c *cli.Command) (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBPath == "" {
		return nil, nil, fmt.Errorf("no database configured: pass --db or set db_path in %s", c.String("config"))
	}
	e, err := engine.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", cfg.DBPath, err)
	}
	return e, cfg, nil
}

func closeEngine(e *engine.Engine) {
	if err := e.Close(); err != nil {
		fmt.Printf("Warning: failed to close engine: %v\n", err)
	}
}

// formatFlag is the --format flag shared by commands with structured output.
func formatFlag(def string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"o"},
		Usage:   "Output format: text, json or yaml",
		Value:   def,
	}
}
