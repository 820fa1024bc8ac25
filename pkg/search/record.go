package search

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/query"
	"github.com/rubiojr/scout/pkg/schema"
)

// Record returns the row of table whose identifier is id. The synthesized
// identifier is tried first, then every identifier field in turn.
func Record(ctx context.Context, db *sql.DB, cat *schema.Catalog, table, id string) (map[string]any, error) {
	td, err := cat.Describe(table)
	if err != nil {
		return nil, err
	}

	exprs := []string{query.IDExpression(td)}
	integer := []bool{len(td.PrimaryKey) == 0 || integerKey(td)}
	for _, f := range td.IDFields {
		col := query.Column(f)
		if col == exprs[0] {
			continue
		}
		fd, _ := td.Field(f)
		exprs = append(exprs, col)
		integer = append(integer, fd.Affinity == schema.AffinityInteger)
	}

	for i, expr := range exprs {
		var arg any = id
		if integer[i] {
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				arg = n
			}
		}
		q := fmt.Sprintf("SELECT %s.* FROM %s AS %s WHERE %s = ? LIMIT 1", query.Alias, schema.Quote(td.Name), query.Alias, expr)
		row, err := queryRecord(ctx, db, q, arg)
		if err != nil {
			return nil, err
		}
		if row != nil {
			return row, nil
		}
	}
	return nil, core.NotFound("record", "no record %q in table %q", id, td.Name)
}

func integerKey(td schema.TableDescriptor) bool {
	if len(td.PrimaryKey) != 1 {
		return false
	}
	f, ok := td.Field(td.PrimaryKey[0])
	return ok && f.Affinity == schema.AffinityInteger
}

func queryRecord(ctx context.Context, db *sql.DB, q string, arg any) (map[string]any, error) {
	rows, err := db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, core.Internal("record", fmt.Errorf("querying record: %w", err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warnf("failed to close rows: %v", err)
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, core.Internal("record", err)
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	values, err := scanRow(rows, len(cols))
	if err != nil {
		return nil, err
	}
	row := make(map[string]any, len(cols))
	for i, c := range cols {
		row[c] = values[i]
	}
	return row, nil
}
