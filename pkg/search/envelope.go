package search

// Facet is one entry of the facets map shared by both envelopes.
type Facet struct {
	Value any   `json:"value"`
	Count int64 `json:"count"`
}

// SimpleResponse is returned by GET searches.
type SimpleResponse struct {
	Total  int64              `json:"total"`
	Hits   []map[string]any   `json:"hits"`
	Took   int64              `json:"took"`
	Facets map[string][]Facet `json:"facets"`
}

// ElasticResponse mirrors the response layout of common search engines so
// existing clients can talk to scout.
type ElasticResponse struct {
	Took         int64                         `json:"took"`
	TimedOut     bool                          `json:"timed_out"`
	Hits         ElasticHits                   `json:"hits"`
	Aggregations map[string]ElasticAggregation `json:"aggregations"`
	Facets       map[string][]Facet            `json:"facets"`
}

type ElasticHits struct {
	Total    ElasticTotal `json:"total"`
	MaxScore float64      `json:"max_score"`
	Hits     []ElasticHit `json:"hits"`
}

type ElasticTotal struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

type ElasticHit struct {
	Index  string         `json:"_index"`
	Type   string         `json:"_type"`
	ID     any            `json:"_id"`
	Score  float64        `json:"_score"`
	Source map[string]any `json:"_source"`
}

type ElasticAggregation struct {
	Buckets []ElasticBucket `json:"buckets"`
}

type ElasticBucket struct {
	Key      any   `json:"key"`
	DocCount int64 `json:"doc_count"`
}

// Simple adapts res to the simple envelope: each hit is its source row plus
// _id and _score.
func Simple(res *Result) *SimpleResponse {
	out := &SimpleResponse{
		Total:  res.Total,
		Hits:   make([]map[string]any, 0, len(res.Hits)),
		Took:   res.TookMS,
		Facets: facets(res),
	}
	for _, h := range res.Hits {
		row := make(map[string]any, len(h.Source)+2)
		for k, v := range h.Source {
			row[k] = v
		}
		row["_id"] = h.ID
		row["_score"] = h.Score
		out.Hits = append(out.Hits, row)
	}
	return out
}

// Elastic adapts res to the search-engine envelope.
func Elastic(res *Result) *ElasticResponse {
	out := &ElasticResponse{
		Took: res.TookMS,
		Hits: ElasticHits{
			Total:    ElasticTotal{Value: res.Total, Relation: "eq"},
			MaxScore: res.MaxScore,
			Hits:     make([]ElasticHit, 0, len(res.Hits)),
		},
		Aggregations: make(map[string]ElasticAggregation, len(res.Aggregations)),
		Facets:       facets(res),
	}
	for _, h := range res.Hits {
		out.Hits.Hits = append(out.Hits.Hits, ElasticHit{
			Index:  res.Table,
			Type:   "_doc",
			ID:     h.ID,
			Score:  h.Score,
			Source: h.Source,
		})
	}
	for name, buckets := range res.Aggregations {
		agg := ElasticAggregation{Buckets: make([]ElasticBucket, 0, len(buckets))}
		for _, b := range buckets {
			agg.Buckets = append(agg.Buckets, ElasticBucket{Key: b.Key, DocCount: b.Count})
		}
		out.Aggregations[name] = agg
	}
	return out
}

// Envelope picks the envelope for format, falling back to def.
func Envelope(res *Result, format, def string) any {
	if format == "" {
		format = def
	}
	if format == FormatElastic || format == "elasticsearch" {
		return Elastic(res)
	}
	return Simple(res)
}

func facets(res *Result) map[string][]Facet {
	out := make(map[string][]Facet, len(res.Aggregations))
	for name, buckets := range res.Aggregations {
		list := make([]Facet, 0, len(buckets))
		for _, b := range buckets {
			list = append(list, Facet{Value: b.Key, Count: b.Count})
		}
		out[name] = list
	}
	return out
}
