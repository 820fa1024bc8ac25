package search

import (
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/query"
)

func TestParseParams(t *testing.T) {
	v := url.Values{}
	v.Set("q", "border")
	v.Set("fields", "full_text, keywords")
	v.Set("filters", `{"page_count": {"gte": 5}}`)
	v.Set("sort", "page_count:desc,id")
	v.Set("size", "0")
	v.Set("from", "20")
	v.Set("facets", "highest_classification")
	v.Set("format", "es")

	req, err := ParseParams(v)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if req.Query != "border" || !req.UseDSL || req.Format != "es" {
		t.Errorf("unexpected request %+v", req)
	}
	if !reflect.DeepEqual(req.Fields, []string{"full_text", "keywords"}) {
		t.Errorf("fields: %v", req.Fields)
	}
	if req.Size != 1 || req.From != 20 {
		t.Errorf("paging: size %d from %d", req.Size, req.From)
	}
	if want := []query.SortKey{{Field: "page_count", Desc: true}, {Field: "id"}}; !reflect.DeepEqual(req.Sort, want) {
		t.Errorf("sort: expected %v, got %v", want, req.Sort)
	}
	rng, ok := req.Filters["page_count"].(map[string]any)
	if !ok || rng["gte"] != json.Number("5") {
		t.Errorf("filters: %v", req.Filters)
	}

	req, err = ParseParams(url.Values{"q": {"a:b"}, "use_elasticsearch_query": {"false"}})
	if err != nil {
		t.Fatal(err)
	}
	if req.UseDSL {
		t.Error("use_elasticsearch_query=false should disable the query language")
	}
}

func TestParseParamsErrors(t *testing.T) {
	bad := []url.Values{
		{"size": {"ten"}},
		{"from": {"1.5"}},
		{"filters": {"[1, 2]"}},
		{"sort": {"id:up"}},
		{"use_elasticsearch_query": {"maybe"}},
	}
	for _, v := range bad {
		if _, err := ParseParams(v); !errors.Is(err, core.ErrInvalidQuery) {
			t.Errorf("ParseParams(%v): expected invalid query, got %v", v, err)
		}
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Request
	}{
		{"empty", "", Request{UseDSL: true}},
		{"string query", `{"query": "border", "size": 5, "from": 10}`, Request{Query: "border", Size: 5, From: 10, UseDSL: true}},
		{"query_string", `{"query": {"query_string": {"query": "id:r1"}}}`, Request{Query: "id:r1", UseDSL: true}},
		{"match_all", `{"query": {"match_all": {}}}`, Request{UseDSL: true}},
		{"explicit zero size", `{"size": 0}`, Request{Size: 1, UseDSL: true}},
		{"literal", `{"query": "a:b", "use_elasticsearch_query": false}`, Request{Query: "a:b"}},
		{
			"terms aggregation",
			`{"aggregations": {"levels": {"terms": {"field": "highest_classification", "size": 3}}}}`,
			Request{UseDSL: true, Aggregations: map[string]Aggregation{"levels": {Field: "highest_classification", Size: 3}}},
		},
		{
			"aggs alias",
			`{"aggs": {"levels": {"field": "highest_classification"}}}`,
			Request{UseDSL: true, Aggregations: map[string]Aggregation{"levels": {Field: "highest_classification"}}},
		},
		{
			"sort",
			`{"sort": [{"page_count": {"order": "desc"}}, "_score"]}`,
			Request{UseDSL: true, Sort: []query.SortKey{{Field: "page_count", Desc: true}, {Field: "_score"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest(strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			if !reflect.DeepEqual(*req, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, *req)
			}
		})
	}
}

func TestDecodeRequestFilters(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(`{"filters": {"id": ["r1", "r2"], "page_count": 3}}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.Filters["page_count"] != json.Number("3") {
		t.Errorf("numbers should stay exact, got %#v", req.Filters["page_count"])
	}
	if ids, ok := req.Filters["id"].([]any); !ok || len(ids) != 2 {
		t.Errorf("list filter: %#v", req.Filters["id"])
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	bad := []string{
		`{`,
		`{"size": 2.5}`,
		`{"from": "x"}`,
		`{"query": 42}`,
		`{"query": {"bool": {}}}`,
		`{"filters": "x"}`,
		`{"aggs": {"a": {"field": "x", "size": "big"}}}`,
	}
	for _, body := range bad {
		if _, err := DecodeRequest(strings.NewReader(body)); !errors.Is(err, core.ErrInvalidQuery) {
			t.Errorf("DecodeRequest(%s): expected invalid query, got %v", body, err)
		}
	}
}

func TestEnvelopes(t *testing.T) {
	res := &Result{
		Table:        "reports",
		Total:        7,
		MaxScore:     2.5,
		TookMS:       3,
		Hits:         []Hit{{ID: "r1", Score: 2.5, Source: map[string]any{"id": "r1", "page_count": int64(3)}}},
		Aggregations: map[string][]Bucket{"highest_classification": {{Key: "SECRET", Count: 4}}},
	}

	simple := Simple(res)
	if simple.Total != 7 || simple.Took != 3 || len(simple.Hits) != 1 {
		t.Fatalf("unexpected simple envelope %+v", simple)
	}
	if h := simple.Hits[0]; h["_id"] != "r1" || h["_score"] != 2.5 || h["page_count"] != int64(3) {
		t.Errorf("simple hit: %v", h)
	}
	if f := simple.Facets["highest_classification"]; len(f) != 1 || f[0] != (Facet{Value: "SECRET", Count: 4}) {
		t.Errorf("facets: %v", simple.Facets)
	}
	if _, ok := res.Hits[0].Source["_id"]; ok {
		t.Error("Simple must not modify the canonical result")
	}

	es := Elastic(res)
	if es.TimedOut || es.Hits.Total != (ElasticTotal{Value: 7, Relation: "eq"}) || es.Hits.MaxScore != 2.5 {
		t.Errorf("unexpected es envelope %+v", es)
	}
	if h := es.Hits.Hits[0]; h.Index != "reports" || h.Type != "_doc" || h.ID != "r1" {
		t.Errorf("es hit: %+v", h)
	}
	if b := es.Aggregations["highest_classification"].Buckets; len(b) != 1 || b[0].DocCount != 4 {
		t.Errorf("es buckets: %+v", b)
	}

	data, err := json.Marshal(Envelope(res, "", FormatElastic))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"timed_out":false`) {
		t.Errorf("default es envelope expected, got %s", data)
	}
	if _, ok := Envelope(res, FormatSimple, FormatElastic).(*SimpleResponse); !ok {
		t.Error("format override ignored")
	}
}
