package pipeline

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/searchterm-cli/internal/model"
)

// genericTerms never qualify as brand candidates: stop words, universal
// shopping vocabulary, sizes, proximity words and colors.
var genericTerms = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "all": {},
	"set": {}, "sets": {}, "of": {}, "in": {}, "to": {}, "a": {}, "an": {},
	"online": {}, "shop": {}, "store": {}, "buy": {}, "sale": {}, "cheap": {},
	"best": {}, "top": {}, "price": {}, "cost": {}, "new": {}, "free": {},
	"shipping": {}, "delivery": {}, "clearance": {}, "outlet": {}, "discount": {},
	"size": {}, "sizes": {}, "large": {}, "small": {}, "medium": {},
	"xl": {}, "xxl": {}, "xs": {},
	"near": {}, "me": {}, "local": {}, "nearby": {},
	"black": {}, "white": {}, "blue": {}, "red": {}, "pink": {}, "green": {},
	"navy": {}, "grey": {}, "gray": {}, "brown": {},
}

// NgramConfig holds sold-brand detection thresholds.
type NgramConfig struct {
	MinFrequency int     // minimum term occurrences for a candidate
	MaxGeneric   float64 // exclude n-grams appearing in more than this fraction of terms
	MinLength    int     // minimum word length for unigrams
	TopN         int     // number of candidates to keep
}

// DefaultNgramConfig returns the standard detection thresholds.
func DefaultNgramConfig() NgramConfig {
	return NgramConfig{
		MinFrequency: 10,
		MaxGeneric:   0.30,
		MinLength:    3,
		TopN:         30,
	}
}

type ngramCount struct {
	gram  string
	count int
}

// DetectSoldBrands finds reseller brand names in the term corpus with a
// frequency heuristic: unigrams and bigrams that recur in at least
// MinFrequency terms but in no more than MaxGeneric of the corpus, ranked
// by frequency. N-grams containing the account's own brand or a known
// competitor are excluded up front, so the rule layers above this one keep
// exclusive claim on those terms.
func DetectSoldBrands(terms []string, brandTerms, competitorTerms []string, cfg NgramConfig) []string {
	if cfg.MinFrequency <= 0 {
		cfg.MinFrequency = 10
	}
	if cfg.MaxGeneric <= 0 {
		cfg.MaxGeneric = 0.30
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 3
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 30
	}

	excluded := make([]string, 0, len(brandTerms)+len(competitorTerms))
	for _, t := range append(append([]string{}, brandTerms...), competitorTerms...) {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			excluded = append(excluded, t)
		}
	}

	unigrams := make(map[string]int)
	bigrams := make(map[string]int)
	total := 0

	for _, term := range terms {
		normalized := model.NormalizeTerm(term)
		if normalized == "" {
			continue
		}
		total++

		words := strings.Fields(normalized)

		// Count each n-gram once per term so one long query cannot promote
		// a word past the frequency threshold on its own.
		seen := make(map[string]struct{})
		for _, w := range words {
			if len(w) < cfg.MinLength {
				continue
			}
			seen[w] = struct{}{}
		}
		for i := 0; i+1 < len(words); i++ {
			seen[words[i]+" "+words[i+1]] = struct{}{}
		}

		for gram := range seen {
			if strings.Contains(gram, " ") {
				bigrams[gram]++
			} else {
				unigrams[gram]++
			}
		}
	}

	if total == 0 {
		return nil
	}
	maxAllowed := int(float64(total) * cfg.MaxGeneric)

	candidates := make([]ngramCount, 0)
	for gram, count := range unigrams {
		if count < cfg.MinFrequency || count > maxAllowed {
			continue
		}
		if _, generic := genericTerms[gram]; generic {
			continue
		}
		if containsAny(gram, excluded) {
			continue
		}
		candidates = append(candidates, ngramCount{gram: gram, count: count})
	}
	for gram, count := range bigrams {
		if count < cfg.MinFrequency || count > maxAllowed {
			continue
		}
		if allGeneric(gram) {
			continue
		}
		if containsAny(gram, excluded) {
			continue
		}
		candidates = append(candidates, ngramCount{gram: gram, count: count})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].gram < candidates[j].gram
	})
	if len(candidates) > cfg.TopN {
		candidates = candidates[:cfg.TopN]
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.gram
	}

	zap.L().Info("ngram: sold brand candidates detected",
		zap.Int("corpus_terms", total),
		zap.Int("candidates", len(out)),
	)
	return out
}

func allGeneric(bigram string) bool {
	for _, w := range strings.Fields(bigram) {
		if _, ok := genericTerms[w]; !ok {
			return false
		}
	}
	return true
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
