// Package index manages FTS5 external-content indexes over the tables of the
// active database.
//
// An index for table t is the virtual table t_fts with content='t'. It is
// filled with the FTS5 rebuild command, so building twice never duplicates
// entries.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/log"
	"github.com/rubiojr/scout/pkg/schema"
)

var logger = log.ForService("index")

// Info describes an index.
type Info struct {
	Table     string        `json:"table"`
	Name      string        `json:"index"`
	Fields    []string      `json:"fields"`
	Documents int64         `json:"documents"`
	Recreated bool          `json:"recreated"`
	Took      time.Duration `json:"-"`
}

// Builder creates and rebuilds indexes. Builds are serialized.
type Builder struct {
	mu sync.Mutex
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Name returns the index table name of table.
func Name(table string) string {
	return table + schema.IndexSuffix
}

// Available reports whether the catalog's handle supports FTS5.
func Available(cat *schema.Catalog) bool {
	return cat.FTSAvailable()
}

// Lookup returns the index of table when one exists.
func Lookup(cat *schema.Catalog, table string) (Info, bool) {
	td, err := cat.Describe(table)
	if err != nil || !td.Indexed {
		return Info{}, false
	}
	return Info{Table: td.Name, Name: Name(td.Name), Fields: td.IndexFields}, true
}

// Ensure indexes fields of table, defaulting to its free-text fields. An
// index over the same columns is rebuilt in place; one over different
// columns is replaced.
func (b *Builder) Ensure(ctx context.Context, db *sql.DB, cat *schema.Catalog, table string, fields []string) (*Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	td, err := cat.Describe(table)
	if err != nil {
		return nil, err
	}
	if !cat.FTSAvailable() {
		return nil, core.IndexUnavailable("index", "FTS5 is not available in this SQLite build")
	}
	if !td.HasRowID {
		return nil, core.IndexUnavailable("index", "table %q is WITHOUT ROWID and cannot back an external-content index", td.Name)
	}

	if _, err := cat.Describe(Name(td.Name)); err == nil {
		return nil, core.IndexUnavailable("index", "a regular table named %q already exists", Name(td.Name))
	}

	cols, err := resolveFields(td, fields)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	info := &Info{Table: td.Name, Name: Name(td.Name), Fields: cols}
	existing, exists := cat.Index(td.Name)
	info.Recreated = exists && !slices.Equal(existing, cols)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.Internal("index", fmt.Errorf("starting transaction: %w", err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logger.Warnf("failed to rollback index transaction: %v", err)
		}
	}()

	if !exists || info.Recreated {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.Quote(info.Name)); err != nil {
			return nil, core.Internal("index", fmt.Errorf("dropping old index: %w", err))
		}
		if _, err := tx.ExecContext(ctx, createStatement(td.Name, cols)); err != nil {
			return nil, core.Internal("index", fmt.Errorf("creating index: %w", err))
		}
	}

	rebuild := fmt.Sprintf("INSERT INTO %[1]s(%[1]s) VALUES('rebuild')", schema.Quote(info.Name))
	if _, err := tx.ExecContext(ctx, rebuild); err != nil {
		return nil, core.Internal("index", fmt.Errorf("rebuilding index: %w", err))
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.Quote(td.Name)).Scan(&info.Documents); err != nil {
		return nil, core.Internal("index", fmt.Errorf("counting documents: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, core.Internal("index", fmt.Errorf("committing index: %w", err))
	}

	cat.SetIndex(td.Name, cols)
	info.Took = time.Since(start)
	logger.Infof("indexed %s over %s (%d documents, %s)", td.Name, strings.Join(cols, ", "), info.Documents, info.Took.Round(time.Millisecond))
	return info, nil
}

func resolveFields(td schema.TableDescriptor, fields []string) ([]string, error) {
	if len(fields) == 0 {
		if len(td.FreeTextFields) == 0 {
			return nil, core.IndexUnavailable("index", "table %q has no free-text fields to index", td.Name)
		}
		return slices.Clone(td.FreeTextFields), nil
	}

	var cols []string
	for _, name := range fields {
		f, ok := td.Field(name)
		if !ok {
			return nil, core.IndexUnavailable("index", "unknown field %q in table %q", name, td.Name)
		}
		if !slices.Contains(cols, f.Name) {
			cols = append(cols, f.Name)
		}
	}
	return cols, nil
}

func createStatement(table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = schema.Quote(c)
	}
	return fmt.Sprintf("CREATE VIRTUAL TABLE %s USING fts5(%s, content=%s, content_rowid='rowid')",
		schema.Quote(Name(table)), strings.Join(quoted, ", "), literal(table))
}

func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
