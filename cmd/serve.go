package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/api"
	"github.com/rubiojr/scout/pkg/config"
	"github.com/rubiojr/scout/pkg/engine"
	"github.com/rubiojr/scout/pkg/log"
)

var serveLogger = log.ForService("serve")

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to (overrides server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides server.port)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if h := c.String("host"); h != "" {
				cfg.Server.Host = h
			}
			if p := c.Int("port"); p != 0 {
				cfg.Server.Port = p
			}
			return serve(ctx, c.String("config"), c.String("db"), cfg)
		},
	}
}

// serve runs the API until SIGINT or SIGTERM. SIGHUP and edits to the
// configuration file reload it, switching the database when db_path changed.
func serve(ctx context.Context, configPath, dbOverride string, cfg *config.Config) error {
	e, err := engine.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer closeEngine(e)

	if cfg.DBPath == "" {
		serveLogger.Warnf("No database configured, use POST /switch-database to load one")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(e).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	serverErr := make(chan error, 1)
	go func() {
		serveLogger.Infof("Starting API server on http://%s", server.Addr)
		serveLogger.Infof("Available endpoints:")
		serveLogger.Infof("  GET  /tables, /tables/{table}, /tables/{table}/fields")
		serveLogger.Infof("  GET  /tables/{table}/records/{id}")
		serveLogger.Infof("  POST /tables/{table}/fts")
		serveLogger.Infof("  GET  /search/{table} (simple), POST /search/{table} (DSL)")
		serveLogger.Infof("  GET  /export/kml/{table}, /export/kmz/{table}")
		serveLogger.Infof("  POST /switch-database")
		serveLogger.Infof("  GET  /health, /stats, /schema, /events, /metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var cfgMutex sync.Mutex
	currentConfig := cfg
	reload := func(reason string) {
		if err := reloadConfiguration(ctx, configPath, dbOverride, e, &cfgMutex, &currentConfig); err != nil {
			serveLogger.Errorf("Failed to reload configuration (%s): %v", reason, err)
			return
		}
		serveLogger.Infof("Configuration reloaded successfully (%s)", reason)
	}

	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		serveLogger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				serveLogger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			serveLogger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			serveLogger.Infof("Watching config file for changes: %s", configPath)
			events = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	for {
		select {
		case err, ok := <-serverErr:
			if ok && err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
			return shutdown(server)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				serveLogger.Infof("Received SIGHUP, reloading configuration...")
				reload("SIGHUP")
			case syscall.SIGINT, syscall.SIGTERM:
				serveLogger.Infof("Shutting down API server...")
				return shutdown(server)
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Editors often replace the file instead of writing it in place.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			serveLogger.Debugf("Config file changed: %s (event: %s)", event.Name, event.Op.String())
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					serveLogger.Warnf("Config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					serveLogger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			reload("file change")
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			serveLogger.Warnf("Config file watcher error: %v", err)
		}
	}
}

func shutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// reloadConfiguration re-reads configPath. A changed db_path switches the
// active database, a failed switch keeps the previous one. Databases
// activated through the API stay active while db_path is unchanged. The
// [server] section only applies on restart.
func reloadConfiguration(ctx context.Context, configPath, dbOverride string, e *engine.Engine, cfgMutex *sync.Mutex, currentConfig **config.Config) error {
	cfgMutex.Lock()
	defer cfgMutex.Unlock()

	newCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading new config: %w", err)
	}
	if dbOverride != "" {
		newCfg.DBPath = dbOverride
	}
	oldCfg := *currentConfig

	if newCfg.Debug != oldCfg.Debug {
		log.SetGlobalDebug(newCfg.Debug)
		serveLogger.Infof("Debug logging %s", map[bool]string{true: "enabled", false: "disabled"}[newCfg.Debug])
	}
	newCfg.Server = oldCfg.Server

	if newCfg.DBPath != "" && newCfg.DBPath != oldCfg.DBPath {
		serveLogger.Infof("Switching database to %s", newCfg.DBPath)
		if _, err := e.Switch(ctx, newCfg.DBPath); err != nil {
			return fmt.Errorf("switching database: %w", err)
		}
	}

	*currentConfig = newCfg
	return nil
}
