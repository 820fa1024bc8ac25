package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/log"
)

var logger = log.ForService("schema")

// IndexSuffix names the full-text index of a table: <table>_fts.
const IndexSuffix = "_fts"

// Shadow tables FTS5 creates next to a virtual table.
var ftsShadowSuffixes = []string{"_data", "_idx", "_content", "_docsize", "_config"}

// TableDescriptor describes one table of the active database.
type TableDescriptor struct {
	Name                  string            `json:"name" yaml:"name"`
	Fields                []FieldDescriptor `json:"fields" yaml:"fields"`
	RowCount              int64             `json:"row_count" yaml:"row_count"`
	SearchableFields      []string          `json:"searchable_fields" yaml:"searchable_fields"`
	SortableFields        []string          `json:"sortable_fields" yaml:"sortable_fields"`
	FilterableFields      []string          `json:"filterable_fields" yaml:"filterable_fields"`
	MGRSFields            []string          `json:"mgrs_fields" yaml:"mgrs_fields"`
	IDFields              []string          `json:"id_fields" yaml:"id_fields"`
	FreeTextFields        []string          `json:"free_text_fields" yaml:"free_text_fields"`
	ClassificationFields  []string          `json:"classification_fields" yaml:"classification_fields"`
	HighestClassification string            `json:"highest_classification" yaml:"highest_classification"`
	PrimaryKey            []string          `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	HasRowID              bool              `json:"has_rowid" yaml:"has_rowid"`
	Indexed               bool              `json:"indexed" yaml:"indexed"`
	IndexFields           []string          `json:"index_fields,omitempty" yaml:"index_fields,omitempty"`
}

// Field looks a column up by name. SQLite identifiers are case-insensitive,
// so an exact match is preferred and a case-folded match accepted.
func (t TableDescriptor) Field(name string) (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Stats summarizes the catalog.
type Stats struct {
	TotalTables  int      `json:"total_tables" yaml:"total_tables"`
	TotalRows    int64    `json:"total_rows" yaml:"total_rows"`
	FTSAvailable bool     `json:"fts_available" yaml:"fts_available"`
	FTSTables    []string `json:"fts_tables" yaml:"fts_tables"`
	DatabaseSize int64    `json:"database_size" yaml:"database_size"`
}

// Options control catalog construction.
type Options struct {
	SampleSize        int
	FreeTextMinLength int
	Vocabulary        *Vocabulary
	DefaultLevel      string
	Rules             []Rule
}

func (o *Options) defaults() {
	if o.SampleSize <= 0 {
		o.SampleSize = 100
	}
	if o.Vocabulary == nil {
		o.Vocabulary = NewVocabulary()
	}
	if o.DefaultLevel == "" {
		o.DefaultLevel = "UNCLASSIFIED"
	}
}

// Catalog is the discovered schema of one database handle. Descriptors are
// immutable once built; only the index status changes afterwards.
type Catalog struct {
	tables       []TableDescriptor
	byName       map[string]int
	ftsAvailable bool
	builtAt      time.Time
	vocabulary   *Vocabulary

	mu      sync.RWMutex
	indexes map[string][]string
}

// Build discovers every user table of db and classifies its columns.
func Build(ctx context.Context, db *sql.DB, opts Options) (*Catalog, error) {
	opts.defaults()
	start := time.Now()

	entries, err := listMaster(ctx, db)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		byName:     make(map[string]int),
		indexes:    make(map[string][]string),
		builtAt:    time.Now(),
		vocabulary: opts.Vocabulary,
	}
	c.ftsAvailable = detectFTS5(ctx, db)

	classifier := NewClassifier(ClassifierOptions{FreeTextMinLength: opts.FreeTextMinLength}, opts.Rules...)
	virtual := map[string]masterEntry{}
	for _, e := range entries {
		if e.virtual {
			virtual[strings.ToLower(e.name)] = e
		}
	}

	for _, e := range entries {
		if e.virtual || isShadowTable(e.name, virtual) || strings.HasPrefix(strings.ToLower(e.name), "sqlite_") {
			continue
		}
		td, err := describeTable(ctx, db, e, classifier, opts)
		if err != nil {
			return nil, fmt.Errorf("describing table %s: %w", e.name, err)
		}
		c.byName[strings.ToLower(td.Name)] = len(c.tables)
		c.tables = append(c.tables, td)

		if v, ok := virtual[strings.ToLower(td.Name+IndexSuffix)]; ok && strings.Contains(strings.ToLower(v.sql), "fts5") {
			cols, err := tableColumns(ctx, db, v.name)
			if err != nil {
				logger.Warnf("reading index columns of %s: %v", v.name, err)
				continue
			}
			c.indexes[strings.ToLower(td.Name)] = cols
		}
	}

	logger.Debugf("catalog built: %d tables in %s (fts5=%t)", len(c.tables), time.Since(start), c.ftsAvailable)
	return c, nil
}

// Tables returns every table, ordered by name.
func (c *Catalog) Tables() []TableDescriptor {
	out := make([]TableDescriptor, len(c.tables))
	for i, t := range c.tables {
		out[i] = c.withIndex(t)
	}
	return out
}

// Describe returns the descriptor of table.
func (c *Catalog) Describe(table string) (TableDescriptor, error) {
	i, ok := c.byName[strings.ToLower(table)]
	if !ok {
		return TableDescriptor{}, core.NotFound("describe", "table %q not found", table)
	}
	return c.withIndex(c.tables[i]), nil
}

// Fields returns the field descriptors of table.
func (c *Catalog) Fields(table string) ([]FieldDescriptor, error) {
	td, err := c.Describe(table)
	if err != nil {
		return nil, err
	}
	return td.Fields, nil
}

// FTSAvailable reports whether the handle supports FTS5.
func (c *Catalog) FTSAvailable() bool {
	return c.ftsAvailable
}

// Vocabulary returns the classification ladder the catalog was built with.
func (c *Catalog) Vocabulary() *Vocabulary {
	return c.vocabulary
}

// BuiltAt returns when the catalog was built.
func (c *Catalog) BuiltAt() time.Time {
	return c.builtAt
}

// SetIndex records that table has a full-text index over columns.
func (c *Catalog) SetIndex(table string, columns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cols := make([]string, len(columns))
	copy(cols, columns)
	c.indexes[strings.ToLower(table)] = cols
}

// Index returns the indexed columns of table.
func (c *Catalog) Index(table string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cols, ok := c.indexes[strings.ToLower(table)]
	return cols, ok
}

// IndexedTables returns the names of tables with a full-text index.
func (c *Catalog) IndexedTables() []string {
	names := []string{}
	for _, t := range c.tables {
		if _, ok := c.Index(t.Name); ok {
			names = append(names, t.Name)
		}
	}
	return names
}

// Stats summarizes the catalog. DatabaseSize is left for the caller, which
// knows the file.
func (c *Catalog) Stats() Stats {
	s := Stats{
		TotalTables:  len(c.tables),
		FTSAvailable: c.ftsAvailable,
		FTSTables:    c.IndexedTables(),
	}
	for _, t := range c.tables {
		s.TotalRows += t.RowCount
	}
	return s
}

func (c *Catalog) withIndex(t TableDescriptor) TableDescriptor {
	if cols, ok := c.Index(t.Name); ok {
		t.Indexed = true
		t.IndexFields = cols
	}
	return t
}

type masterEntry struct {
	name    string
	sql     string
	virtual bool
}

func listMaster(ctx context.Context, db *sql.DB) ([]masterEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, COALESCE(sql, '') FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, core.Internal("catalog", fmt.Errorf("listing tables: %w", err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var entries []masterEntry
	for rows.Next() {
		var e masterEntry
		if err := rows.Scan(&e.name, &e.sql); err != nil {
			return nil, fmt.Errorf("scanning sqlite_master: %w", err)
		}
		e.virtual = strings.HasPrefix(strings.ToUpper(strings.TrimSpace(e.sql)), "CREATE VIRTUAL TABLE")
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func isShadowTable(name string, virtual map[string]masterEntry) bool {
	lower := strings.ToLower(name)
	for _, suffix := range ftsShadowSuffixes {
		if base, ok := strings.CutSuffix(lower, suffix); ok {
			if _, exists := virtual[base]; exists {
				return true
			}
		}
	}
	return false
}

// detectFTS5 creates and drops a throwaway FTS5 table in the temp schema of a
// pinned connection.
func detectFTS5(ctx context.Context, db *sql.DB) bool {
	conn, err := db.Conn(ctx)
	if err != nil {
		return false
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warnf("failed to close fts5 check connection: %v", err)
		}
	}()

	if _, err := conn.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS temp.scout_fts5_check USING fts5(body)`); err != nil {
		logger.Debugf("fts5 unavailable: %v", err)
		return false
	}
	if _, err := conn.ExecContext(ctx, `DROP TABLE temp.scout_fts5_check`); err != nil {
		logger.Warnf("dropping fts5 check table: %v", err)
	}
	return true
}

type tableColumn struct {
	Column
	cid int
}

func readColumns(ctx context.Context, db *sql.DB, table string) ([]tableColumn, error) {
	rows, err := db.QueryContext(ctx, `SELECT cid, name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("reading table info: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var cols []tableColumn
	for rows.Next() {
		var c tableColumn
		var notNull int
		if err := rows.Scan(&c.cid, &c.Name, &c.DeclaredType, &notNull, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scanning table info: %w", err)
		}
		c.NotNull = notNull != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	cols, err := readColumns(ctx, db, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names, nil
}

func describeTable(ctx context.Context, db *sql.DB, e masterEntry, classifier *Classifier, opts Options) (TableDescriptor, error) {
	cols, err := readColumns(ctx, db, e.name)
	if err != nil {
		return TableDescriptor{}, err
	}

	td := TableDescriptor{
		Name:                 e.name,
		HasRowID:             !strings.Contains(strings.ToUpper(e.sql), "WITHOUT ROWID"),
		SearchableFields:     []string{},
		SortableFields:       []string{},
		FilterableFields:     []string{},
		MGRSFields:           []string{},
		IDFields:             []string{},
		FreeTextFields:       []string{},
		ClassificationFields: []string{},
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Quote(e.name)).Scan(&td.RowCount); err != nil {
		return TableDescriptor{}, fmt.Errorf("counting rows: %w", err)
	}

	samples, err := sampleColumns(ctx, db, e.name, cols, opts.SampleSize)
	if err != nil {
		return TableDescriptor{}, err
	}

	type pkCol struct {
		name string
		pos  int
	}
	var pk []pkCol
	for i, col := range cols {
		f := classifier.Classify(col.Column, samples[i])
		td.Fields = append(td.Fields, f)
		if col.PrimaryKey > 0 {
			pk = append(pk, pkCol{col.Name, col.PrimaryKey})
		}
		if f.Searchable {
			td.SearchableFields = append(td.SearchableFields, f.Name)
		}
		if f.Sortable {
			td.SortableFields = append(td.SortableFields, f.Name)
		}
		if f.Filterable {
			td.FilterableFields = append(td.FilterableFields, f.Name)
		}
		switch f.Role {
		case RoleCoordinate:
			td.MGRSFields = append(td.MGRSFields, f.Name)
		case RoleIdentifier:
			td.IDFields = append(td.IDFields, f.Name)
		case RoleFreeText:
			td.FreeTextFields = append(td.FreeTextFields, f.Name)
		case RoleClassification:
			td.ClassificationFields = append(td.ClassificationFields, f.Name)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })
	for _, p := range pk {
		td.PrimaryKey = append(td.PrimaryKey, p.name)
	}

	td.HighestClassification, err = highestClassification(ctx, db, e.name, td.ClassificationFields, opts)
	if err != nil {
		return TableDescriptor{}, err
	}
	return td, nil
}

func sampleColumns(ctx context.Context, db *sql.DB, table string, cols []tableColumn, n int) ([]Sample, error) {
	samples := make([]Sample, len(cols))
	if len(cols) == 0 {
		return samples, nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = Quote(c.Name)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s LIMIT ?", strings.Join(names, ", "), Quote(table)), n)
	if err != nil {
		return nil, fmt.Errorf("sampling rows: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warnf("failed to close rows: %v", err)
		}
	}()

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		for i, v := range values {
			if v != nil {
				samples[i].Values = append(samples[i].Values, v)
			}
		}
	}
	return samples, rows.Err()
}

func highestClassification(ctx context.Context, db *sql.DB, table string, fields []string, opts Options) (string, error) {
	var values []string
	for _, f := range fields {
		q := fmt.Sprintf("SELECT DISTINCT CAST(%[1]s AS TEXT) FROM %[2]s WHERE %[1]s IS NOT NULL", Quote(f), Quote(table))
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return "", fmt.Errorf("reading classification values: %w", err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				_ = rows.Close()
				return "", fmt.Errorf("scanning classification value: %w", err)
			}
			values = append(values, v)
		}
		err = rows.Err()
		if cerr := rows.Close(); cerr != nil {
			logger.Warnf("failed to close rows: %v", cerr)
		}
		if err != nil {
			return "", err
		}
	}
	if level, ok := opts.Vocabulary.Highest(values); ok {
		return level, nil
	}
	return opts.DefaultLevel, nil
}

// Quote returns name as a double-quoted SQLite identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
