package pipeline

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/searchterm-cli/internal/model"
)

// Combine merges the aggregated search/shopping terms with the PMax category
// rows into a single dataset. Every row keeps its provenance tag and rows
// are never merged across tags, so each one classifies independently.
func Combine(terms []model.AggregatedTerm, categories []model.CategoryRecord) []model.CombinedTerm {
	out := make([]model.CombinedTerm, 0, len(terms)+len(categories))

	for _, t := range terms {
		out = append(out, model.CombinedTerm{
			Term:    t.Term,
			Source:  model.ProvenanceForChannel(t.Channel),
			Metrics: t.Metrics,
		})
	}

	for _, c := range categories {
		term := strings.ToLower(c.Category)
		if term == "" {
			term = "uncategorized"
		}
		out = append(out, model.CombinedTerm{
			Term:    term,
			Source:  model.ProvenancePMax,
			Metrics: c.Metrics,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Impressions != out[j].Impressions {
			return out[i].Impressions > out[j].Impressions
		}
		if out[i].Term != out[j].Term {
			return out[i].Term < out[j].Term
		}
		return out[i].Source < out[j].Source
	})

	zap.L().Info("combine: complete",
		zap.Int("search_shopping_rows", len(terms)),
		zap.Int("pmax_rows", len(categories)),
		zap.Int("combined_rows", len(out)),
	)
	return out
}
