// Package search executes queries against one table of the active database.
//
// # Overview
//
// A search names a table, a query string, optional structured filters, sort
// keys, a page window and aggregations. The Executor resolves the table in
// the schema catalog, parses the query with pkg/query, translates it to a
// parameterized WHERE clause and runs it against the table.
//
// Every search runs in a single read transaction: the total count, the page
// of hits and every aggregation see the same data.
//
// # Modes
//
//   - scan: bare terms match every searchable column with LIKE. Hits score 1.0.
//   - index: the table has a full-text index (see pkg/index). Bare terms also
//     match the index, and hits score 1 + the negated bm25 rank, so better
//     matches score higher.
//
// Field queries (field:value, ranges, comparisons) always run against the
// table columns, whatever the mode.
//
// # Usage Examples
//
// Query language search with a filter and a facet:
//
//	exec := search.NewExecutor(search.DefaultLimits)
//	res, err := exec.Search(ctx, db, catalog, &search.Request{
//		Table:   "reports",
//		Query:   "border AND date:[2024-01-01 TO 2024-06-30]",
//		Filters: map[string]any{"page_count": map[string]any{"gte": 5}},
//		Facets:  []string{"locations"},
//		Size:    20,
//		UseDSL:  true,
//	})
//
// Parsing HTTP parameters:
//
//	// In an HTTP handler
//	req, err := search.ParseParams(r.URL.Query())
//	if err != nil {
//		// core.InvalidQuery, answer 400
//		return
//	}
//	req.Table = chi.URLParam(r, "table")
//
// # Results
//
// Result is the one canonical shape. Simple and Elastic adapt it to the two
// response envelopes served by the API; Envelope picks one from a format
// name.
//
// # Limits
//
// Page sizes are clamped to [1, MaxSize]. Aggregation sizes are clamped to
// [1, MaxFacetSize]. When a request names no aggregations and no facets, the
// classification columns of the table are faceted unless SkipFacets is set.
package search
