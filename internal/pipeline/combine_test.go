package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/searchterm-cli/internal/model"
)

func TestCombineTagsProvenance(t *testing.T) {
	terms := []model.AggregatedTerm{
		{Term: "acme shoes", Channel: model.ChannelSearch, Metrics: model.Metrics{Impressions: 150}},
		{Term: "acme shoes", Channel: model.ChannelShopping, Metrics: model.Metrics{Impressions: 30}},
	}
	categories := []model.CategoryRecord{
		{Category: "Hiking Boots", Metrics: model.Metrics{Impressions: 80}},
	}

	out := Combine(terms, categories)
	require.Len(t, out, 3)

	bySource := make(map[model.Provenance]int)
	for _, row := range out {
		bySource[row.Source]++
	}
	assert.Equal(t, 1, bySource[model.ProvenanceSearch])
	assert.Equal(t, 1, bySource[model.ProvenanceShopping])
	assert.Equal(t, 1, bySource[model.ProvenancePMax])
}

func TestCombineKeepsDuplicateTermsAcrossSources(t *testing.T) {
	// The same text under two provenance tags stays two rows; each one
	// classifies on its own.
	terms := []model.AggregatedTerm{
		{Term: "hiking boots", Channel: model.ChannelSearch, Metrics: model.Metrics{Impressions: 100}},
	}
	categories := []model.CategoryRecord{
		{Category: "hiking boots", Metrics: model.Metrics{Impressions: 50}},
	}

	out := Combine(terms, categories)
	require.Len(t, out, 2)
	assert.Equal(t, out[0].Term, out[1].Term)
	assert.NotEqual(t, out[0].Source, out[1].Source)
}

func TestCombineLowercasesCategoryLabels(t *testing.T) {
	out := Combine(nil, []model.CategoryRecord{
		{Category: "Hiking Boots", Metrics: model.Metrics{Impressions: 1}},
		{Category: "", Metrics: model.Metrics{Impressions: 2}},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "uncategorized", out[0].Term)
	assert.Equal(t, "hiking boots", out[1].Term)
}

func TestCombineSortsByImpressionsDesc(t *testing.T) {
	out := Combine([]model.AggregatedTerm{
		{Term: "small", Channel: model.ChannelSearch, Metrics: model.Metrics{Impressions: 5}},
		{Term: "big", Channel: model.ChannelSearch, Metrics: model.Metrics{Impressions: 500}},
	}, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "big", out[0].Term)
}

func TestCombineEmptyInputs(t *testing.T) {
	assert.Empty(t, Combine(nil, nil))
}
