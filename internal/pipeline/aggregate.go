package pipeline

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/searchterm-cli/internal/model"
)

// Aggregate collapses raw rows into one row per (normalized term, channel)
// pair with summed metrics. The same text under different channels stays
// separate. Channel values are normalized during key construction because
// the API mixes enum names with numeric codes ("2", "4") in the same export.
// Output is sorted by impressions descending; ties keep input order.
func Aggregate(records []model.RawTermRecord) []model.AggregatedTerm {
	type key struct {
		term    string
		channel model.Channel
	}

	groups := make(map[key]*model.AggregatedTerm)
	order := make([]key, 0)
	clamped := 0

	for _, rec := range records {
		term := model.NormalizeTerm(rec.Term)
		if term == "" {
			continue
		}

		metrics := rec.Metrics
		if clampNegative(&metrics) {
			clamped++
		}

		k := key{term: term, channel: model.ParseChannel(string(rec.Channel))}
		agg, ok := groups[k]
		if !ok {
			agg = &model.AggregatedTerm{Term: term, Channel: k.channel}
			groups[k] = agg
			order = append(order, k)
		}
		agg.Metrics.Add(metrics)
		agg.GroupCount++
	}

	if clamped > 0 {
		// Negative counters show up occasionally in API exports (adjustment
		// rows). They would corrupt sums downstream, so floor them at zero.
		zap.L().Warn("aggregate: clamped negative metrics to zero",
			zap.Int("rows", clamped),
		)
	}

	out := make([]model.AggregatedTerm, 0, len(groups))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Impressions > out[j].Impressions
	})

	zap.L().Info("aggregate: complete",
		zap.Int("raw_rows", len(records)),
		zap.Int("unique_terms", len(out)),
	)
	return out
}

// AggregateCategories collapses PMax category rows into one row per category
// label with summed metrics, dropping the per-campaign breakdown.
func AggregateCategories(records []model.CategoryRecord) []model.CategoryRecord {
	groups := make(map[string]*model.CategoryRecord)
	order := make([]string, 0)

	for _, rec := range records {
		category := rec.Category
		if category == "" {
			category = "Uncategorized"
		}

		metrics := rec.Metrics
		clampNegative(&metrics)

		agg, ok := groups[category]
		if !ok {
			agg = &model.CategoryRecord{Category: category}
			groups[category] = agg
			order = append(order, category)
		}
		agg.Metrics.Add(metrics)
	}

	out := make([]model.CategoryRecord, 0, len(groups))
	for _, c := range order {
		out = append(out, *groups[c])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Impressions > out[j].Impressions
	})
	return out
}

func clampNegative(m *model.Metrics) bool {
	clamped := false
	if m.Impressions < 0 {
		m.Impressions = 0
		clamped = true
	}
	if m.Clicks < 0 {
		m.Clicks = 0
		clamped = true
	}
	if m.CostMicros < 0 {
		m.CostMicros = 0
		clamped = true
	}
	if m.Conversions < 0 {
		m.Conversions = 0
		clamped = true
	}
	if m.ConversionsValue < 0 {
		m.ConversionsValue = 0
		clamped = true
	}
	return clamped
}
