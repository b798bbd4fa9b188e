package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/searchterm-cli/internal/model"
)

// similarityGroup is one known-term list the similarity layer matches
// against, with the category a match assigns.
type similarityGroup struct {
	category string
	needles  []string
}

// similarityStrategy catches misspellings of known brand terms. Only
// single-word terms are candidates; a multi-word query that survived the
// substring rules is usually a real phrase, not a typo. Confidence is the
// edit-distance similarity of the best match, so a closer misspelling
// scores higher.
type similarityStrategy struct {
	min    float64
	groups []similarityGroup
}

func (s *similarityStrategy) Name() string { return "similarity" }

func (s *similarityStrategy) Classify(_ context.Context, terms []StrategyTerm) (map[int]model.Classification, error) {
	matches := make(map[int]model.Classification)
	for _, st := range terms {
		words := strings.Fields(st.Term)
		if len(words) != 1 {
			continue
		}
		category, score := s.bestMatch(words[0])
		if category == "" {
			continue
		}
		matches[st.Index] = model.Classification{
			Category:   category,
			Confidence: score,
			Method:     model.MethodRule,
		}
	}
	return matches, nil
}

// bestMatch scans every known list for the closest term. Equal scores fall
// to the phonetic match so "zoogs" prefers a brand it sounds like.
func (s *similarityStrategy) bestMatch(word string) (string, float64) {
	var (
		bestCategory string
		bestScore    float64
		bestSound    bool
	)
	for _, g := range s.groups {
		for _, needle := range g.needles {
			score := similarityScore(word, needle)
			sound := soundsLike(word, needle)
			if score > bestScore || (score == bestScore && sound && !bestSound) {
				bestCategory, bestScore, bestSound = g.category, score, sound
			}
		}
	}
	if bestScore < s.min {
		return "", 0
	}
	return bestCategory, bestScore
}

// similarityScore is normalized edit distance: 1 for identical strings,
// approaching 0 as they diverge.
func similarityScore(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein is the classic two-row edit distance.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(b); j++ {
		curr[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[i] = min3(curr[i-1]+1, prev[i]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

var soundexCodes = map[byte]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// soundex encodes a word phonetically as a letter plus three digits.
func soundex(s string) string {
	var word []byte
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			word = append(word, byte(r))
		}
	}
	if len(word) == 0 {
		return "0000"
	}

	out := []byte{word[0] - 'a' + 'A'}
	last := soundexCodes[word[0]]
	for i := 1; i < len(word) && len(out) < 4; i++ {
		code := soundexCodes[word[i]]
		if code != 0 && code != last {
			out = append(out, code)
		}
		last = code
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

func soundsLike(a, b string) bool {
	return soundex(a) == soundex(b)
}
