// Package planner turns a chat message (plus any explicit structured
// filters) into an inventory search filter. It is deterministic parsing
// only — no generative call is ever made here.
package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/derpdot/cardshop/internal/inventory"
)

var (
	betweenPattern  = regexp.MustCompile(`(?i)\bbetween\s+\$?(\d+(?:\.\d+)?)\s+and\s+\$?(\d+(?:\.\d+)?)`)
	maxPattern      = regexp.MustCompile(`(?i)\b(?:under|below|less than|at most|up to|cheaper than|within)\s+\$?(\d+(?:\.\d+)?)`)
	minPattern      = regexp.MustCompile(`(?i)\b(?:over|above|more than|at least)\s+\$?(\d+(?:\.\d+)?)`)
	orLessPattern   = regexp.MustCompile(`(?i)\$?(\d+(?:\.\d+)?)\s+(?:or less|and under|max)\b`)
	leadingCurrency = regexp.MustCompile(`^\s*\$(\d+(?:\.\d+)?)\b`)
	setPattern      = regexp.MustCompile(`(?i)\bfrom\s+(?:the\s+)?([a-z0-9' ]+?)\s+set\b`)
	outOfStock      = regexp.MustCompile(`(?i)\b(?:out of stock|sold out)\b`)
)

// Ordered longest-first so "near mint" wins over "mint" and "uncommon"
// over "common".
var conditionKeywords = []string{
	"moderately played", "lightly played", "heavily played", "near mint",
	"mint", "damaged",
}

var rarityKeywords = []string{
	"mythic rare", "uncommon", "legendary", "mythic", "common", "rare", "special",
}

// fillerWords are conversational tokens stripped before treating the
// remainder as a card-name phrase.
var fillerWords = map[string]bool{
	"a": true, "an": true, "any": true, "card": true, "cards": true,
	"carry": true, "do": true, "find": true, "for": true, "got": true,
	"have": true, "hello": true, "hey": true, "hi": true, "how": true,
	"i": true, "im": true, "in": true, "is": true, "looking": true,
	"many": true, "me": true, "much": true, "need": true, "of": true,
	"please": true, "price": true, "sell": true, "show": true, "some": true,
	"stock": true, "search": true, "the": true, "want": true, "what": true,
	"whats": true, "you": true, "your": true,
}

// Plan builds a SearchFilter from free text, then overlays any explicit
// structured filters field-by-field (explicit always wins). Unrecognized
// text degrades to a filter with only Text set.
func Plan(rawText string, explicit *inventory.SearchFilter) inventory.SearchFilter {
	f := fromText(rawText)
	if explicit == nil {
		return f
	}

	if explicit.Text != "" {
		f.Text = explicit.Text
	}
	if explicit.SetName != "" {
		f.SetName = explicit.SetName
	}
	if explicit.Condition != "" {
		f.Condition = explicit.Condition
	}
	if explicit.Rarity != "" {
		f.Rarity = explicit.Rarity
	}
	if explicit.MinPrice != nil {
		f.MinPrice = explicit.MinPrice
	}
	if explicit.MaxPrice != nil {
		f.MaxPrice = explicit.MaxPrice
	}
	if explicit.MaxResults > 0 {
		f.MaxResults = explicit.MaxResults
	}
	f.InStockOnly = explicit.InStockOnly
	return f
}

// fromText extracts price bounds, condition/rarity/set keywords, and a
// candidate card-name phrase from free text.
func fromText(raw string) inventory.SearchFilter {
	f := inventory.DefaultFilter()
	remainder := raw

	if outOfStock.MatchString(remainder) {
		f.InStockOnly = false
		remainder = outOfStock.ReplaceAllString(remainder, " ")
	}

	remainder = extractPrices(remainder, &f)

	if m := setPattern.FindStringSubmatch(remainder); m != nil {
		f.SetName = strings.TrimSpace(m[1])
		remainder = setPattern.ReplaceAllString(remainder, " ")
	}

	lower := strings.ToLower(remainder)
	for _, kw := range conditionKeywords {
		if idx := indexWord(lower, kw); idx >= 0 {
			f.Condition = kw
			remainder = remainder[:idx] + " " + remainder[idx+len(kw):]
			break
		}
	}
	lower = strings.ToLower(remainder)
	for _, kw := range rarityKeywords {
		if idx := indexWord(lower, kw); idx >= 0 {
			f.Rarity = kw
			remainder = remainder[:idx] + " " + remainder[idx+len(kw):]
			break
		}
	}

	f.Text = namePhrase(remainder)
	return f
}

func extractPrices(text string, f *inventory.SearchFilter) string {
	if m := betweenPattern.FindStringSubmatch(text); m != nil {
		f.MinPrice = parsePrice(m[1])
		f.MaxPrice = parsePrice(m[2])
		return betweenPattern.ReplaceAllString(text, " ")
	}
	if m := maxPattern.FindStringSubmatch(text); m != nil {
		f.MaxPrice = parsePrice(m[1])
		text = maxPattern.ReplaceAllString(text, " ")
	} else if m := orLessPattern.FindStringSubmatch(text); m != nil {
		f.MaxPrice = parsePrice(m[1])
		text = orLessPattern.ReplaceAllString(text, " ")
	} else if m := leadingCurrency.FindStringSubmatch(text); m != nil {
		// A message opening with a bare dollar amount reads as a budget.
		f.MaxPrice = parsePrice(m[1])
		text = leadingCurrency.ReplaceAllString(text, " ")
	}
	if m := minPattern.FindStringSubmatch(text); m != nil {
		f.MinPrice = parsePrice(m[1])
		text = minPattern.ReplaceAllString(text, " ")
	}
	return text
}

func parsePrice(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// indexWord finds kw in s on word boundaries, or -1.
func indexWord(s, kw string) int {
	for offset := 0; ; {
		idx := strings.Index(s[offset:], kw)
		if idx < 0 {
			return -1
		}
		idx += offset
		before := idx == 0 || !isWordChar(s[idx-1])
		afterIdx := idx + len(kw)
		after := afterIdx >= len(s) || !isWordChar(s[afterIdx])
		if before && after {
			return idx
		}
		offset = idx + len(kw)
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// namePhrase strips punctuation and conversational filler, returning what is
// left as the fuzzy-search text. Returns "" when nothing meaningful remains.
func namePhrase(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\'':
			// Keep apostrophes: card names like "Gaea's Cradle" depend on them.
			b.WriteRune(r)
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if fillerWords[strings.ToLower(tok)] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
