package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const haiku = "claude-haiku-4-5-20251001"

func TestClaudeDirectCost(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// 1M input at $0.80 plus 1M output at $4.00.
	got := c.Claude(haiku, false, 1_000_000, 1_000_000, 0, 0)
	assert.InDelta(t, 4.80, got, 1e-9)
}

func TestClaudeBatchDiscount(t *testing.T) {
	c := NewCalculator(DefaultRates())

	direct := c.Claude(haiku, false, 1_000_000, 1_000_000, 0, 0)
	batch := c.Claude(haiku, true, 1_000_000, 1_000_000, 0, 0)
	assert.InDelta(t, direct/2, batch, 1e-9)
}

func TestClaudeCacheTokens(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// Cache writes bill at 1.25x input rate, reads at 0.1x.
	write := c.Claude(haiku, false, 0, 0, 1_000_000, 0)
	assert.InDelta(t, 0.80*1.25, write, 1e-9)

	read := c.Claude(haiku, false, 0, 0, 0, 1_000_000)
	assert.InDelta(t, 0.80*0.1, read, 1e-9)
}

func TestClaudeUnknownModel(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.Zero(t, c.Claude("claude-nonexistent", false, 1_000_000, 1_000_000, 0, 0))
}

func TestEstimateClassification(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// 1000 terms at 15 input + 5 output tokens each, batch priced.
	got := c.EstimateClassification(haiku, 1000)
	want := c.Claude(haiku, true, 15_000, 5_000, 0, 0)
	assert.InDelta(t, want, got, 1e-12)
	assert.Greater(t, got, 0.0)
}

func TestRatesFromConfigOverrides(t *testing.T) {
	rates := RatesFromConfig(map[string]ModelRate{
		haiku:          {Input: 1.00, Output: 2.00, BatchDiscount: 0.5},
		"custom-model": {Input: 9.99, Output: 9.99, BatchDiscount: 1.0},
	})

	assert.InDelta(t, 1.00, rates.Anthropic[haiku].Input, 1e-9)
	assert.Contains(t, rates.Anthropic, "custom-model")
	// Untouched defaults survive.
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
}
