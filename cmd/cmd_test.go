package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/config"
	"github.com/rubiojr/scout/pkg/engine"
	"github.com/rubiojr/scout/pkg/search"
	"github.com/rubiojr/scout/pkg/testutil"
)

func TestWriteStructured(t *testing.T) {
	v := map[string]any{"name": "reports", "rows": 5}

	tests := []struct {
		format  string
		handled bool
		wantErr bool
		want    string
	}{
		{"json", true, false, `"name": "reports"`},
		{"JSON", true, false, `"rows": 5`},
		{"yaml", true, false, "name: reports"},
		{"text", false, false, ""},
		{"", false, false, ""},
		{"xml", true, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			handled, err := writeStructured(&buf, tt.format, v)
			if handled != tt.handled {
				t.Fatalf("handled = %v, want %v", handled, tt.handled)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSearchRequestFromFlags(t *testing.T) {
	var got *search.Request
	sc := SearchCommand()
	sc.Action = func(ctx context.Context, c *cli.Command) error {
		var err error
		got, err = searchRequest(c)
		return err
	}
	root := &cli.Command{Name: "scout", Commands: []*cli.Command{sc}}

	args := []string{"scout", "search", "--size", "3", "--sort", "page_count:desc", "--facets", "locations",
		"--filters", `{"page_count": {"gte": 5}}`, "reports", "border", "customs"}
	if err := root.Run(context.Background(), args); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got.Table != "reports" || got.Query != "border customs" || !got.UseDSL {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Size != 3 || got.From != 0 {
		t.Errorf("size/from = %d/%d", got.Size, got.From)
	}
	if len(got.Sort) != 1 || got.Sort[0].Field != "page_count" || !got.Sort[0].Desc {
		t.Errorf("sort = %v", got.Sort)
	}
	if len(got.Facets) != 1 || got.Facets[0] != "locations" {
		t.Errorf("facets = %v", got.Facets)
	}
	if _, ok := got.Filters["page_count"]; !ok {
		t.Errorf("filters = %v", got.Filters)
	}
}

func TestSearchRequestLiteral(t *testing.T) {
	var got *search.Request
	sc := SearchCommand()
	sc.Action = func(ctx context.Context, c *cli.Command) error {
		var err error
		got, err = searchRequest(c)
		return err
	}
	root := &cli.Command{Name: "scout", Commands: []*cli.Command{sc}}

	if err := root.Run(context.Background(), []string{"scout", "search", "--literal", "reports", "page_count:7"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.UseDSL || got.Query != "page_count:7" {
		t.Errorf("unexpected request %+v", got)
	}
}

func writeConfig(t *testing.T, path, dbPath string) {
	t.Helper()
	content := fmt.Sprintf("db_path = %q\n", dbPath)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestReloadConfigurationSwitchesDatabase(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	e := engine.New(engine.Options{})
	t.Cleanup(func() { _ = e.Close() })

	var mu sync.Mutex
	current := config.GetDefaultConfig()

	reports := testutil.ReportsDB(t)
	writeConfig(t, configPath, reports)
	if err := reloadConfiguration(t.Context(), configPath, "", e, &mu, &current); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if e.Status().Path != reports || current.DBPath != reports {
		t.Fatalf("expected %s to be active, got %s", reports, e.Status().Path)
	}

	// A missing database keeps the active one and the previous config.
	writeConfig(t, configPath, filepath.Join(t.TempDir(), "missing.db"))
	if err := reloadConfiguration(t.Context(), configPath, "", e, &mu, &current); err == nil {
		t.Fatal("expected an error switching to a missing database")
	}
	if e.Status().Path != reports || current.DBPath != reports {
		t.Errorf("failed reload changed state: active %s, config %s", e.Status().Path, current.DBPath)
	}

	// --db pins the database across reloads.
	other := testutil.EmptyDB(t)
	writeConfig(t, configPath, reports)
	if err := reloadConfiguration(t.Context(), configPath, other, e, &mu, &current); err != nil {
		t.Fatalf("reload with override: %v", err)
	}
	if e.Status().Path != other {
		t.Errorf("expected the override %s, got %s", other, e.Status().Path)
	}
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "scout", "config.toml")
	dbPath := filepath.Join(dir, "data.db")

	if err := initConfig(configPath, dbPath, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("loading generated config: %v", err)
	}
	if cfg.DBPath != dbPath {
		t.Errorf("db_path = %q, want %q", cfg.DBPath, dbPath)
	}

	if err := initConfig(configPath, dbPath, false); err == nil {
		t.Error("expected an error overwriting without --force")
	}
	if err := initConfig(configPath, "", true); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncate = %q", got)
	}
}
