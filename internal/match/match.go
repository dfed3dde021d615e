// Package match scores free-text queries against card names. Scoring is
// purely deterministic: the same query/candidate pair always yields the
// same score, with no external state involved.
package match

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const (
	// substringBase is the floor score for candidates containing the whole
	// query. The remaining headroom is filled proportionally to how much of
	// the candidate the query covers, so tighter matches rank first.
	substringBase = 0.8

	tokenWeight = 0.6
	editWeight  = 0.25
)

// Matcher implements fuzzy name scoring: exact-substring bonus, token
// overlap, and an edit-distance term for near-miss spellings.
type Matcher struct{}

// New returns a Matcher.
func New() *Matcher { return &Matcher{} }

// Normalize lowercases s, replaces punctuation with spaces, and collapses
// runs of whitespace. Both sides of a comparison must be normalized with
// this before calling Score.
func (m *Matcher) Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Score returns the relevance of a normalized candidate to a normalized
// query in [0, 1]. Identical strings score 1; a candidate containing the
// query as a substring scores at least substringBase; otherwise the score
// combines token overlap with edit-distance similarity.
func (m *Matcher) Score(normQuery, normCandidate string) float64 {
	if normQuery == "" || normCandidate == "" {
		return 0
	}
	if normQuery == normCandidate {
		return 1
	}
	if strings.Contains(normCandidate, normQuery) {
		coverage := float64(len(normQuery)) / float64(len(normCandidate))
		return substringBase + (1-substringBase)*coverage
	}

	overlap := tokenOverlap(normQuery, normCandidate)
	editSim := editSimilarity(normQuery, normCandidate)
	score := tokenWeight*overlap + editWeight*editSim
	// A near-miss spelling shares no tokens, so edit similarity must be able
	// to carry the score on its own.
	if editSim > score {
		score = editSim
	}
	if score > 1 {
		score = 1
	}
	return score
}

// tokenOverlap is the ratio of shared whitespace-delimited tokens over the
// union of tokens from both strings.
func tokenOverlap(a, b string) float64 {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}

	aSet := make(map[string]bool, len(aTokens))
	for _, t := range aTokens {
		aSet[t] = true
	}
	bSet := make(map[string]bool, len(bTokens))
	for _, t := range bTokens {
		bSet[t] = true
	}

	shared := 0
	for t := range bSet {
		if aSet[t] {
			shared++
		}
	}
	union := len(aSet) + len(bSet) - shared
	return float64(shared) / float64(union)
}

// editSimilarity maps Levenshtein distance to [0, 1], where 1 is identical.
func editSimilarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}
