// Package engine holds the single scout service instance. It owns the active
// database, the index builder, the search executor and the exporter, and
// publishes engine events to the realtime hub.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rubiojr/scout/pkg/config"
	"github.com/rubiojr/scout/pkg/export"
	"github.com/rubiojr/scout/pkg/index"
	"github.com/rubiojr/scout/pkg/log"
	"github.com/rubiojr/scout/pkg/metrics"
	"github.com/rubiojr/scout/pkg/realtime"
	"github.com/rubiojr/scout/pkg/schema"
	"github.com/rubiojr/scout/pkg/search"
	"github.com/rubiojr/scout/pkg/storage"
)

var logger = log.ForService("engine")

// Options configure an Engine.
type Options struct {
	Schema    schema.Options
	Search    search.Limits
	Export    export.Options
	AutoIndex bool
}

// OptionsFromConfig maps the configuration file onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Schema: schema.Options{
			SampleSize:        cfg.Classifier.SampleSize,
			FreeTextMinLength: cfg.Classifier.FreeTextMinLength,
			DefaultLevel:      cfg.Classifier.DefaultLevel,
		},
		Search: search.Limits{
			DefaultSize:  cfg.Search.DefaultSize,
			MaxSize:      cfg.Search.MaxSize,
			FacetSize:    cfg.Search.FacetSize,
			MaxFacetSize: cfg.Search.MaxFacetSize,
		},
		Export: export.Options{
			DefaultLimit: cfg.Export.DefaultLimit,
			MaxLimit:     cfg.Export.MaxLimit,
		},
		AutoIndex: cfg.Index.AutoIndex,
	}
	if len(cfg.Classifier.Levels) > 0 {
		opts.Schema.Vocabulary = schema.NewVocabulary(cfg.Classifier.Levels...)
	}
	return opts
}

// Engine is safe for concurrent use.
type Engine struct {
	opts     Options
	manager  *storage.Manager
	indexer  *index.Builder
	executor *search.Executor
	exporter *export.Exporter
	hub      *realtime.Hub
}

func New(opts Options) *Engine {
	e := &Engine{
		opts:     opts,
		manager:  storage.NewManager(opts.Schema),
		indexer:  index.NewBuilder(),
		executor: search.NewExecutor(opts.Search),
		exporter: export.NewExporter(opts.Export),
		hub:      realtime.NewHub(64),
	}
	e.manager.OnSwitch(e.activated)
	return e
}

// Open creates an engine from cfg and activates cfg.DBPath when set.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	e := New(OptionsFromConfig(cfg))
	if cfg.DBPath == "" {
		return e, nil
	}
	if _, err := e.Switch(ctx, cfg.DBPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// Hub returns the event hub.
func (e *Engine) Hub() *realtime.Hub {
	return e.hub
}

// Limits returns the search limits in effect.
func (e *Engine) Limits() search.Limits {
	return e.executor.Limits()
}

// Switch activates the database at path and returns the status it
// installed, which a concurrent switch cannot alter. A failed switch leaves
// the previously active database in place.
func (e *Engine) Switch(ctx context.Context, path string) (storage.Status, error) {
	status, err := e.manager.Switch(ctx, path)
	if err != nil {
		logger.Warnf("switch to %s failed: %v", path, err)
		metrics.ObserveSwitch(0, err)
		e.hub.Broadcast(realtime.NewEvent(realtime.EventSwitchFailed, map[string]any{
			"path":  path,
			"error": err.Error(),
		}))
		return storage.Status{}, err
	}
	return status, nil
}

// activated runs after every successful switch, before Switch returns.
func (e *Engine) activated(snap *storage.Snapshot) {
	tables := snap.Catalog.Tables()
	metrics.ObserveSwitch(len(tables), nil)
	e.hub.Broadcast(realtime.NewEvent(realtime.EventDatabaseSwitched, map[string]any{
		"path":          snap.Path(),
		"tables":        len(tables),
		"fts_available": snap.Catalog.FTSAvailable(),
	}))

	if !e.opts.AutoIndex || !snap.Catalog.FTSAvailable() {
		return
	}
	for _, td := range tables {
		if len(td.FreeTextFields) == 0 || !td.HasRowID {
			continue
		}
		if _, err := e.ensureIndex(context.Background(), snap, td.Name, nil); err != nil {
			logger.Warnf("auto index of %s failed: %v", td.Name, err)
		}
	}
}

// Refresh rebuilds the catalog of the active database.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.manager.Refresh(ctx)
}

// Status reports the active database.
func (e *Engine) Status() storage.Status {
	return e.manager.Current()
}

func (e *Engine) acquire() (*storage.Snapshot, error) {
	return e.manager.Acquire()
}

// Tables lists the tables of the active database.
func (e *Engine) Tables() ([]schema.TableDescriptor, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	return snap.Catalog.Tables(), nil
}

// Describe returns one table.
func (e *Engine) Describe(table string) (schema.TableDescriptor, error) {
	snap, err := e.acquire()
	if err != nil {
		return schema.TableDescriptor{}, err
	}
	defer snap.Release()
	return snap.Catalog.Describe(table)
}

// Fields returns the fields of one table.
func (e *Engine) Fields(table string) ([]schema.FieldDescriptor, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	return snap.Catalog.Fields(table)
}

// SchemaInfo is the full catalog of the active database, tables keyed by
// name.
type SchemaInfo struct {
	Database             string                            `json:"database" yaml:"database"`
	Tables               map[string]schema.TableDescriptor `json:"tables" yaml:"tables"`
	TotalTables          int                               `json:"total_tables" yaml:"total_tables"`
	FTSAvailable         bool                              `json:"fts_available" yaml:"fts_available"`
	FTSTables            []string                          `json:"fts_tables" yaml:"fts_tables"`
	ClassificationLevels []string                          `json:"classification_levels" yaml:"classification_levels"`
}

// Schema returns the catalog of the active database.
func (e *Engine) Schema() (*SchemaInfo, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	tables := make(map[string]schema.TableDescriptor)
	for _, td := range snap.Catalog.Tables() {
		tables[td.Name] = td
	}
	return &SchemaInfo{
		Database:             snap.Path(),
		Tables:               tables,
		TotalTables:          len(tables),
		FTSAvailable:         index.Available(snap.Catalog),
		FTSTables:            snap.Catalog.IndexedTables(),
		ClassificationLevels: snap.Catalog.Vocabulary().Levels(),
	}, nil
}

// IndexInfo returns the full-text index of table. The bool is false when
// the table has none.
func (e *Engine) IndexInfo(table string) (index.Info, bool, error) {
	snap, err := e.acquire()
	if err != nil {
		return index.Info{}, false, err
	}
	defer snap.Release()
	if _, err := snap.Catalog.Describe(table); err != nil {
		return index.Info{}, false, err
	}
	info, ok := index.Lookup(snap.Catalog, table)
	return info, ok, nil
}

// Search runs req against the active database.
func (e *Engine) Search(ctx context.Context, req *search.Request) (*search.Result, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	start := time.Now()
	res, err := e.executor.Search(ctx, snap.DB.DB(), snap.Catalog, req)
	if err != nil {
		metrics.ObserveSearch(search.ModeScan, time.Since(start), err)
		return nil, err
	}
	metrics.ObserveSearch(res.Mode, res.Took, nil)
	return res, nil
}

// Record returns one row by identifier.
func (e *Engine) Record(ctx context.Context, table, id string) (map[string]any, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	return search.Record(ctx, snap.DB.DB(), snap.Catalog, table, id)
}

// EnsureIndex builds or rebuilds the full-text index of table.
func (e *Engine) EnsureIndex(ctx context.Context, table string, fields []string) (*index.Info, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	return e.ensureIndex(ctx, snap, table, fields)
}

func (e *Engine) ensureIndex(ctx context.Context, snap *storage.Snapshot, table string, fields []string) (*index.Info, error) {
	info, err := e.indexer.Ensure(ctx, snap.DB.DB(), snap.Catalog, table, fields)
	metrics.ObserveIndexBuild(err)
	if err != nil {
		return nil, err
	}
	e.hub.Broadcast(realtime.NewEvent(realtime.EventIndexBuilt, map[string]any{
		"table":     info.Table,
		"index":     info.Name,
		"fields":    info.Fields,
		"documents": info.Documents,
		"recreated": info.Recreated,
	}))
	return info, nil
}

// Export renders the rows selected by req as KML or KMZ.
func (e *Engine) Export(ctx context.Context, req *export.Request) (*export.Document, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	doc, err := e.exporter.Export(ctx, snap.DB.DB(), snap.Catalog, req)
	if err != nil {
		return nil, err
	}
	metrics.ObserveExport(doc.Metadata.Exported, doc.Metadata.Skipped)
	return doc, nil
}

// Stats extends the catalog statistics with file details.
type Stats struct {
	schema.Stats   `yaml:",inline"`
	Database       string       `json:"database" yaml:"database"`
	LoadedAt       time.Time    `json:"loaded_at" yaml:"loaded_at"`
	CatalogBuiltAt time.Time    `json:"catalog_built_at" yaml:"catalog_built_at"`
	Tables         []TableStats `json:"tables" yaml:"tables"`
}

// TableStats summarizes one table.
type TableStats struct {
	Name    string `json:"name" yaml:"name"`
	Rows    int64  `json:"rows" yaml:"rows"`
	Fields  int    `json:"fields" yaml:"fields"`
	Indexed bool   `json:"indexed" yaml:"indexed"`
	MGRS    bool   `json:"mgrs" yaml:"mgrs"`
	Highest string `json:"highest_classification,omitempty" yaml:"highest_classification,omitempty"`
}

// Stats returns statistics of the active database.
func (e *Engine) Stats() (*Stats, error) {
	snap, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	s := &Stats{
		Stats:          snap.Catalog.Stats(),
		Database:       snap.Path(),
		LoadedAt:       snap.LoadedAt,
		CatalogBuiltAt: snap.Catalog.BuiltAt(),
		Tables:         []TableStats{},
	}
	s.DatabaseSize = snap.DB.Size()
	for _, td := range snap.Catalog.Tables() {
		s.Tables = append(s.Tables, TableStats{
			Name:    td.Name,
			Rows:    td.RowCount,
			Fields:  len(td.Fields),
			Indexed: td.Indexed,
			MGRS:    len(td.MGRSFields) > 0,
			Highest: td.HighestClassification,
		})
	}
	return s, nil
}

// Health is the payload of health checks.
type Health struct {
	Status            string `json:"status"`
	DatabaseConnected bool   `json:"database_connected"`
	TablesAccessible  bool   `json:"tables_accessible"`
	FTSAvailable      bool   `json:"fts_available"`
	TotalTables       int    `json:"total_tables"`
	Database          string `json:"database"`
}

// Health pings the active database and checks that its tables can be read.
func (e *Engine) Health(ctx context.Context) Health {
	snap, err := e.acquire()
	if err != nil {
		return Health{Status: "no_database"}
	}
	defer snap.Release()

	h := Health{
		Status:       "healthy",
		FTSAvailable: index.Available(snap.Catalog),
		Database:     snap.Path(),
	}
	tables := snap.Catalog.Tables()
	h.TotalTables = len(tables)
	if err := snap.DB.DB().PingContext(ctx); err != nil {
		logger.Warnf("health ping failed: %v", err)
		h.Status = "unhealthy"
		return h
	}
	h.DatabaseConnected = true

	h.TablesAccessible = true
	if len(tables) > 0 {
		var one int
		q := "SELECT 1 FROM " + schema.Quote(tables[0].Name) + " LIMIT 1"
		if err := snap.DB.DB().QueryRowContext(ctx, q).Scan(&one); err != nil && !errors.Is(err, sql.ErrNoRows) {
			logger.Warnf("health query failed: %v", err)
			h.TablesAccessible = false
			h.Status = "unhealthy"
		}
	}
	return h
}

// Close releases the active database and every event listener.
func (e *Engine) Close() error {
	e.hub.Close()
	return e.manager.Close()
}
