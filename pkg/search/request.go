package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/query"
)

// Envelope formats.
const (
	FormatSimple  = "simple"
	FormatElastic = "es"
)

// UnmarshalJSON accepts both {"field": "f", "size": 5} and the
// search-engine form {"terms": {"field": "f", "size": 5}}.
func (a *Aggregation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field string          `json:"field"`
		Size  json.RawMessage `json:"size"`
		Terms *struct {
			Field string          `json:"field"`
			Size  json.RawMessage `json:"size"`
		} `json:"terms"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.InvalidQuery("search", "malformed aggregation: %v", err)
	}
	field, size := raw.Field, raw.Size
	if raw.Terms != nil {
		field, size = raw.Terms.Field, raw.Terms.Size
	}
	n, err := intValue("aggregation size", size)
	if err != nil {
		return err
	}
	a.Field, a.Size = field, n
	return nil
}

// ParseParams builds a request from GET query parameters: q, fields,
// filters (JSON object), sort, size, from, facets, format and
// use_elasticsearch_query.
func ParseParams(v url.Values) (*Request, error) {
	req := &Request{UseDSL: true}

	req.Query = v.Get("q")
	if req.Query == "" {
		req.Query = v.Get("query")
	}
	req.Fields = splitList(v.Get("fields"))
	req.Facets = splitList(v.Get("facets"))
	req.Format = v.Get("format")

	if f := v.Get("filters"); f != "" {
		filters, err := decodeFilters([]byte(f))
		if err != nil {
			return nil, err
		}
		req.Filters = filters
	}

	var err error
	if req.Sort, err = query.ParseSortString(v.Get("sort")); err != nil {
		return nil, err
	}
	if req.Size, err = intParam("size", v.Get("size"), true); err != nil {
		return nil, err
	}
	if req.From, err = intParam("from", v.Get("from"), false); err != nil {
		return nil, err
	}
	if s := v.Get("use_elasticsearch_query"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, core.InvalidQuery("search", "use_elasticsearch_query must be true or false, got %q", s)
		}
		req.UseDSL = b
	}
	return req, nil
}

type body struct {
	Query        json.RawMessage        `json:"query"`
	Fields       []string               `json:"fields"`
	Filters      json.RawMessage        `json:"filters"`
	Sort         any                    `json:"sort"`
	Size         json.RawMessage        `json:"size"`
	From         json.RawMessage        `json:"from"`
	Aggregations map[string]Aggregation `json:"aggregations"`
	Aggs         map[string]Aggregation `json:"aggs"`
	Facets       []string               `json:"facets"`
	UseDSL       *bool                  `json:"use_elasticsearch_query"`
	Format       string                 `json:"format"`
}

// DecodeRequest reads a JSON search body. The query may be a string, a
// {"query_string": {"query": "..."}} object or {"match_all": {}}. An empty
// body searches everything.
func DecodeRequest(r io.Reader) (*Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	req := &Request{UseDSL: true}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, nil
	}

	var b body
	if err := json.Unmarshal(data, &b); err != nil {
		var qe *core.Error
		if errors.As(err, &qe) {
			return nil, err
		}
		return nil, core.InvalidQuery("search", "malformed request body: %v", err)
	}

	if req.Query, err = decodeQuery(b.Query); err != nil {
		return nil, err
	}
	req.Fields = b.Fields
	req.Facets = b.Facets
	req.Format = b.Format
	if b.UseDSL != nil {
		req.UseDSL = *b.UseDSL
	}

	if len(b.Filters) > 0 && string(b.Filters) != "null" {
		if req.Filters, err = decodeFilters(b.Filters); err != nil {
			return nil, err
		}
	}
	if req.Sort, err = query.ParseSort(b.Sort); err != nil {
		return nil, err
	}
	if req.Size, err = intValue("size", b.Size); err != nil {
		return nil, err
	}
	if len(b.Size) > 0 && req.Size < 1 {
		req.Size = 1
	}
	if req.From, err = intValue("from", b.From); err != nil {
		return nil, err
	}

	req.Aggregations = b.Aggregations
	if len(req.Aggregations) == 0 {
		req.Aggregations = b.Aggs
	}
	return req, nil
}

func decodeQuery(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		QueryString *struct {
			Query string `json:"query"`
		} `json:"query_string"`
		MatchAll *struct{} `json:"match_all"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", core.InvalidQuery("search", "query must be a string or an object: %v", err)
	}
	switch {
	case obj.QueryString != nil:
		return obj.QueryString.Query, nil
	case obj.MatchAll != nil:
		return "", nil
	}
	return "", core.InvalidQuery("search", "unsupported query object %s", raw)
}

func decodeFilters(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var filters map[string]any
	if err := dec.Decode(&filters); err != nil {
		return nil, core.InvalidQuery("search", "filters must be a JSON object: %v", err)
	}
	return filters, nil
}

// intParam parses a query parameter. An explicit size below one becomes one.
func intParam(name, s string, isSize bool) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, core.InvalidQuery("search", "%s must be an integer, got %q", name, s)
	}
	if isSize && n < 1 {
		n = 1
	}
	return n, nil
}

func intValue(name string, raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return intParam(name, s, false)
		}
		return 0, core.InvalidQuery("search", "%s must be an integer, got %s", name, raw)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, core.InvalidQuery("search", "%s must be an integer, got %s", name, raw)
	}
	return int(f), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
