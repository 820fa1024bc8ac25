package search

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/index"
	"github.com/rubiojr/scout/pkg/log"
	"github.com/rubiojr/scout/pkg/query"
	"github.com/rubiojr/scout/pkg/schema"
)

var logger = log.ForService("search")

// Modes reported in Result.Mode.
const (
	ModeScan  = "scan"
	ModeIndex = "index"
)

const (
	idColumn    = "_scout_id"
	scoreColumn = "_scout_score"
)

// Request is a search over one table.
type Request struct {
	Table   string
	Query   string
	Fields  []string
	Filters map[string]any
	Sort    []query.SortKey
	// Size 0 means the configured default.
	Size         int
	From         int
	Aggregations map[string]Aggregation
	Facets       []string
	// SkipFacets disables the default classification facets.
	SkipFacets bool
	// UseDSL parses Query with the query language; otherwise every word is
	// a plain term.
	UseDSL bool
	// Format selects the response envelope: "simple" or "es". Empty lets the
	// caller decide.
	Format string
}

// Aggregation is a terms aggregation over one field.
type Aggregation struct {
	Field string `json:"field"`
	Size  int    `json:"size,omitempty"`
}

// Hit is one matching row.
type Hit struct {
	ID     any            `json:"id"`
	Score  float64        `json:"score"`
	Source map[string]any `json:"source"`
}

// Bucket is one distinct value of an aggregation.
type Bucket struct {
	Key   any   `json:"key"`
	Count int64 `json:"count"`
}

// Result is the canonical search result.
type Result struct {
	Table        string              `json:"table"`
	Total        int64               `json:"total"`
	Hits         []Hit               `json:"hits"`
	MaxScore     float64             `json:"max_score"`
	Aggregations map[string][]Bucket `json:"aggregations"`
	Mode         string              `json:"mode"`
	TookMS       int64               `json:"took_ms"`
	Took         time.Duration       `json:"-"`
}

// Limits bound request sizes.
type Limits struct {
	DefaultSize  int
	MaxSize      int
	FacetSize    int
	MaxFacetSize int
}

// DefaultLimits are used for zero fields of the Limits given to NewExecutor.
var DefaultLimits = Limits{DefaultSize: 10, MaxSize: 10000, FacetSize: 10, MaxFacetSize: 100}

// Executor runs searches.
type Executor struct {
	limits Limits
}

func NewExecutor(limits Limits) *Executor {
	if limits.DefaultSize <= 0 {
		limits.DefaultSize = DefaultLimits.DefaultSize
	}
	if limits.MaxSize <= 0 {
		limits.MaxSize = DefaultLimits.MaxSize
	}
	if limits.FacetSize <= 0 {
		limits.FacetSize = DefaultLimits.FacetSize
	}
	if limits.MaxFacetSize <= 0 {
		limits.MaxFacetSize = DefaultLimits.MaxFacetSize
	}
	return &Executor{limits: limits}
}

// Limits returns the limits in effect.
func (e *Executor) Limits() Limits {
	return e.limits
}

// plan is a translated request ready to run.
type plan struct {
	table    schema.TableDescriptor
	from     string
	join     string
	joinArgs []any
	where    string
	args     []any
	score    string
	order    string
	mode     string
}

// Search runs req against db, resolving the table through cat.
func (e *Executor) Search(ctx context.Context, db *sql.DB, cat *schema.Catalog, req *Request) (*Result, error) {
	start := time.Now()

	p, err := e.plan(cat, req)
	if err != nil {
		return nil, err
	}
	size, from := e.page(req)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.Internal("search", fmt.Errorf("starting read transaction: %w", err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logger.Warnf("failed to rollback read transaction: %v", err)
		}
	}()

	res := &Result{Table: p.table.Name, Hits: []Hit{}, Aggregations: map[string][]Bucket{}, Mode: p.mode}

	countSQL := "SELECT COUNT(*) FROM " + p.from + p.whereSQL()
	if err := tx.QueryRowContext(ctx, countSQL, p.args...).Scan(&res.Total); err != nil {
		return nil, queryError("counting matches", err)
	}

	if res.Total > int64(from) {
		hits, err := p.fetch(ctx, tx, size, from)
		if err != nil {
			return nil, err
		}
		res.Hits = hits
	}
	for _, h := range res.Hits {
		res.MaxScore = max(res.MaxScore, h.Score)
	}

	aggs, err := e.aggregations(p.table, req)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(aggs) {
		buckets, err := p.aggregate(ctx, tx, aggs[name])
		if err != nil {
			return nil, err
		}
		res.Aggregations[name] = buckets
	}

	res.Took = time.Since(start)
	res.TookMS = res.Took.Milliseconds()
	logger.Debugf("search %s %q: %d total, %d hits, mode %s, %s", p.table.Name, req.Query, res.Total, len(res.Hits), res.Mode, res.Took)
	return res, nil
}

func (e *Executor) page(req *Request) (size, from int) {
	size = req.Size
	switch {
	case size == 0:
		size = e.limits.DefaultSize
	case size < 1:
		size = 1
	case size > e.limits.MaxSize:
		size = e.limits.MaxSize
	}
	return size, max(req.From, 0)
}

func (e *Executor) plan(cat *schema.Catalog, req *Request) (*plan, error) {
	td, err := cat.Describe(req.Table)
	if err != nil {
		return nil, err
	}

	var n query.Node
	if req.UseDSL {
		n, err = query.Parse(req.Query)
		if err != nil {
			return nil, err
		}
	} else {
		n = query.Literal(req.Query)
	}

	clause, err := query.Translate(n, td, query.Options{Fields: req.Fields})
	if err != nil {
		return nil, err
	}
	filters, err := query.CompileFilters(req.Filters, td)
	if err != nil {
		return nil, err
	}

	p := &plan{
		table: td,
		from:  schema.Quote(td.Name) + " AS " + query.Alias,
		score: "1.0",
		mode:  ModeScan,
	}
	var conds []string
	if clause.Where != "" {
		conds = append(conds, clause.Where)
		p.args = append(p.args, clause.Args...)
	}
	if filters.Where != "" {
		conds = append(conds, filters.Where)
		p.args = append(p.args, filters.Args...)
	}
	if len(conds) == 1 {
		p.where = conds[0]
	} else if len(conds) > 1 {
		p.where = "(" + strings.Join(conds, ") AND (") + ")"
	}

	if clause.Match != "" {
		fts := schema.Quote(index.Name(td.Name))
		p.join = fmt.Sprintf(" LEFT JOIN (SELECT rowid AS fts_rowid, -bm25(%[1]s) AS fts_rank FROM %[1]s WHERE %[1]s MATCH ?) AS fts ON fts.fts_rowid = %[2]s.rowid",
			fts, query.Alias)
		p.joinArgs = []any{clause.Match}
		p.score = "(1.0 + COALESCE(fts.fts_rank, 0))"
		p.mode = ModeIndex
	}

	p.order, err = query.OrderBy(req.Sort, td, scoreColumn)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) whereSQL() string {
	if p.where == "" {
		return ""
	}
	return " WHERE " + p.where
}

func (p *plan) fetch(ctx context.Context, tx *sql.Tx, size, from int) ([]Hit, error) {
	q := fmt.Sprintf("SELECT %s AS %s, %s AS %s, %s.* FROM %s%s%s ORDER BY %s LIMIT ? OFFSET ?",
		query.IDExpression(p.table), idColumn, p.score, scoreColumn, query.Alias, p.from, p.join, p.whereSQL(), p.order)

	args := make([]any, 0, len(p.joinArgs)+len(p.args)+2)
	args = append(args, p.joinArgs...)
	args = append(args, p.args...)
	args = append(args, size, from)

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, queryError("fetching hits", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warnf("failed to close rows: %v", err)
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, core.Internal("search", err)
	}

	hits := []Hit{}
	for rows.Next() {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		h := Hit{ID: values[0], Source: make(map[string]any, len(cols)-2)}
		h.Score, _ = values[1].(float64)
		for i := 2; i < len(cols); i++ {
			h.Source[cols[i]] = values[i]
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("reading hits", err)
	}
	return hits, nil
}

// aggregations returns the aggregations to compute: the explicit ones, the
// requested facets, or the classification fields of the table.
func (e *Executor) aggregations(td schema.TableDescriptor, req *Request) (map[string]Aggregation, error) {
	aggs := map[string]Aggregation{}
	for name, a := range req.Aggregations {
		aggs[name] = a
	}
	for _, f := range req.Facets {
		aggs[f] = Aggregation{Field: f}
	}
	if len(req.Aggregations) == 0 && len(req.Facets) == 0 && !req.SkipFacets {
		for _, f := range td.ClassificationFields {
			aggs[f] = Aggregation{Field: f}
		}
	}

	for name, a := range aggs {
		if a.Field == "" {
			return nil, core.InvalidQuery("search", "aggregation %q has no field", name)
		}
		f, ok := td.Field(a.Field)
		if !ok {
			return nil, core.InvalidQuery("search", "unknown aggregation field %q in table %q", a.Field, td.Name)
		}
		if !f.Filterable {
			return nil, core.InvalidQuery("search", "field %q cannot be aggregated", f.Name)
		}
		a.Field = f.Name
		switch {
		case a.Size <= 0:
			a.Size = e.limits.FacetSize
		case a.Size > e.limits.MaxFacetSize:
			a.Size = e.limits.MaxFacetSize
		}
		aggs[name] = a
	}
	return aggs, nil
}

func (p *plan) aggregate(ctx context.Context, tx *sql.Tx, a Aggregation) ([]Bucket, error) {
	col := query.Column(a.Field)
	conds := []string{col + " IS NOT NULL"}
	if p.where != "" {
		conds = append(conds, p.where)
	}
	q := fmt.Sprintf("SELECT %[1]s AS k, COUNT(*) AS c FROM %[2]s WHERE %[3]s GROUP BY %[1]s ORDER BY c DESC, k ASC LIMIT ?",
		col, p.from, strings.Join(conds, " AND "))

	args := append(slices.Clone(p.args), a.Size)
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, queryError("aggregating "+a.Field, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warnf("failed to close rows: %v", err)
		}
	}()

	buckets := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, core.Internal("search", fmt.Errorf("scanning bucket: %w", err))
		}
		b.Key = normalize(b.Key)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, core.Internal("search", fmt.Errorf("scanning row: %w", err))
	}
	for i, v := range values {
		values[i] = normalize(v)
	}
	return values, nil
}

// normalize turns driver values into JSON friendly ones.
func normalize(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// queryError maps SQLite failures caused by user input, such as FTS5 syntax
// errors, to invalid queries.
func queryError(doing string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "fts5") || strings.Contains(msg, "malformed MATCH") {
		return core.InvalidQuery("search", "%s: %v", doing, err)
	}
	return core.Internal("search", fmt.Errorf("%s: %w", doing, err))
}
