package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// corpus100 builds a 100-term corpus where "widgetco" appears in 15 terms
// and "floodword" in 40.
func corpus100() []string {
	terms := make([]string, 0, 100)
	for i := 0; i < 15; i++ {
		terms = append(terms, fmt.Sprintf("widgetco product %d", i))
	}
	for i := 0; i < 40; i++ {
		terms = append(terms, fmt.Sprintf("floodword item %d", i))
	}
	for i := 0; i < 45; i++ {
		terms = append(terms, fmt.Sprintf("filler term number%d", i))
	}
	return terms
}

func TestDetectSoldBrandsFrequencyThresholds(t *testing.T) {
	candidates := DetectSoldBrands(corpus100(), nil, nil, DefaultNgramConfig())

	// 15/100 clears minFrequency=10 and stays under maxGeneric=0.30.
	assert.Contains(t, candidates, "widgetco")
	// 40/100 is above maxGeneric and must be excluded.
	assert.NotContains(t, candidates, "floodword")
}

func TestDetectSoldBrandsExcludesOwnBrandAndCompetitors(t *testing.T) {
	candidates := DetectSoldBrands(corpus100(), []string{"widgetco"}, nil, DefaultNgramConfig())
	assert.NotContains(t, candidates, "widgetco")

	candidates = DetectSoldBrands(corpus100(), nil, []string{"WidgetCo"}, DefaultNgramConfig())
	assert.NotContains(t, candidates, "widgetco")
}

func TestDetectSoldBrandsExcludesGenericWords(t *testing.T) {
	terms := make([]string, 50)
	for i := range terms {
		terms[i] = fmt.Sprintf("buy brandx online %d", i)
	}
	// Only 50 terms, so brandx appears in 100% of them; widen maxGeneric to
	// isolate the stoplist behavior.
	cfg := DefaultNgramConfig()
	cfg.MaxGeneric = 1.0

	candidates := DetectSoldBrands(terms, nil, nil, cfg)
	assert.Contains(t, candidates, "brandx")
	assert.NotContains(t, candidates, "buy")
	assert.NotContains(t, candidates, "online")
}

func TestDetectSoldBrandsCountsOncePerTerm(t *testing.T) {
	// One term repeating a word many times contributes one occurrence.
	terms := []string{"dupword dupword dupword dupword"}
	for i := 0; i < 99; i++ {
		terms = append(terms, fmt.Sprintf("other %d", i))
	}

	candidates := DetectSoldBrands(terms, nil, nil, DefaultNgramConfig())
	assert.NotContains(t, candidates, "dupword")
}

func TestDetectSoldBrandsBigrams(t *testing.T) {
	terms := make([]string, 0, 100)
	for i := 0; i < 12; i++ {
		terms = append(terms, fmt.Sprintf("northface jacket style%d", i))
	}
	for i := 0; i < 88; i++ {
		terms = append(terms, fmt.Sprintf("misc term %d", i))
	}

	candidates := DetectSoldBrands(terms, nil, nil, DefaultNgramConfig())
	assert.Contains(t, candidates, "northface jacket")
}

func TestDetectSoldBrandsShortWordsSkipped(t *testing.T) {
	terms := make([]string, 20)
	for i := range terms {
		terms[i] = fmt.Sprintf("zz item %d", i)
	}
	cfg := DefaultNgramConfig()
	cfg.MaxGeneric = 1.0

	candidates := DetectSoldBrands(terms, nil, nil, cfg)
	assert.NotContains(t, candidates, "zz")
}

func TestDetectSoldBrandsTopN(t *testing.T) {
	terms := make([]string, 0, 400)
	for brand := 0; brand < 40; brand++ {
		for i := 0; i < 10; i++ {
			terms = append(terms, fmt.Sprintf("brand%02d variant %d", brand, i))
		}
	}

	cfg := DefaultNgramConfig()
	cfg.TopN = 5
	candidates := DetectSoldBrands(terms, nil, nil, cfg)
	assert.Len(t, candidates, 5)
}

func TestDetectSoldBrandsEmptyCorpus(t *testing.T) {
	assert.Empty(t, DetectSoldBrands(nil, nil, nil, DefaultNgramConfig()))
}
