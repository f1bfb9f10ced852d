package search

import (
	"strconv"

	"github.com/tuexperto/taxsearch/internal/domain/channel"
)

// buildBody constructs the search request body for one channel. The lexical
// clause is always present; the knn clause is added only when a vector for the
// channel's space is available. The body is never empty.
func buildBody(d *channel.Descriptor, query string, vector []float32, topK int) map[string]any {
	body := map[string]any{
		"size":    topK,
		"_source": d.SourceFields(),
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":  query,
							"fields": boostedFieldNames(d.TextFields),
							"type":   "best_fields",
						},
					},
				},
			},
		},
	}

	if d.HasVector() && len(vector) > 0 {
		candidates := d.Candidates
		if candidates <= 0 {
			candidates = 50
		}
		body["knn"] = map[string]any{
			"field":          d.VectorField,
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": candidates,
		}
	}

	return body
}

// boostedFieldNames renders fields in the "name^boost" form; a boost of 1
// stays a bare name.
func boostedFieldNames(fields []channel.BoostedField) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Boost > 0 && f.Boost != 1.0 {
			names = append(names, f.Name+"^"+strconv.FormatFloat(f.Boost, 'f', -1, 64))
			continue
		}
		names = append(names, f.Name)
	}
	return names
}
