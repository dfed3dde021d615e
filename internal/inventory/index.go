package inventory

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

const (
	defaultMaxResults = 10
	resultCeiling     = 50

	// suggestionMinScore is stricter than the query threshold: a "did you
	// mean" hint for a wrong guess is worse than no hint at all.
	suggestionMinScore = 0.55
	maxSuggestions     = 3

	defaultBrowseResults = 3
)

// gameSets maps a game keyword to the set names the shop files under it.
var gameSets = map[string][]string{
	"magic":   {"Alpha", "Beta", "Unlimited", "Urza's Saga", "Tempest", "Ice Age", "Commander", "Modern"},
	"pokemon": {"Base Set", "Jungle", "Fossil", "Team Rocket"},
	"yugioh":  {"Legend of Blue Eyes", "Metal Raiders", "Pharaoh's Servant", "Starter Deck"},
}

var gameAliases = map[string]string{
	"mtg":                 "magic",
	"magic the gathering": "magic",
	"yu-gi-oh":            "yugioh",
	"yu gi oh":            "yugioh",
}

// Scorer ranks free-text queries against candidate card names.
// Implemented by match.Matcher.
type Scorer interface {
	// Normalize lowercases and collapses whitespace/punctuation.
	Normalize(s string) string
	// Score compares a normalized query against a normalized candidate,
	// returning a relevance in [0, 1]. Deterministic.
	Score(normQuery, normCandidate string) float64
}

// Index holds the current inventory snapshot and answers structured queries
// over it. The snapshot is replaced atomically on reload; in-flight queries
// complete against whichever snapshot they started with.
type Index struct {
	scorer   Scorer
	minScore float64
	snap     atomic.Pointer[Snapshot]
}

// New creates an empty Index. minScore is the fuzzy-match cutoff below which
// candidates are excluded from text queries; pass 0 for the default (0.4).
func New(scorer Scorer, minScore float64) *Index {
	if minScore <= 0 {
		minScore = 0.4
	}
	return &Index{scorer: scorer, minScore: minScore}
}

// Load parses a CSV table and swaps it in as the current snapshot. Invalid
// rows are rejected individually and reported; the load only fails (keeping
// any previous snapshot) when the table is unreadable or yields zero valid
// rows.
func (ix *Index) Load(r io.Reader) (LoadReport, error) {
	records, rejections, err := readTable(r)
	if err != nil {
		return LoadReport{}, fmt.Errorf("parsing inventory table: %w", err)
	}
	for _, rej := range rejections {
		slog.Warn("inventory row rejected", "line", rej.Line, "reason", rej.Reason)
	}
	if len(records) == 0 {
		return LoadReport{Rejected: rejections}, ErrNoValidRows
	}

	ix.snap.Store(newSnapshot(records, ix.scorer.Normalize))
	slog.Info("inventory loaded", "cards", len(records), "rejected", len(rejections))
	return LoadReport{Loaded: len(records), Rejected: rejections}, nil
}

// LoadFile loads the inventory from a CSV file on disk.
func (ix *Index) LoadFile(path string) (LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadReport{}, fmt.Errorf("opening inventory file: %w", err)
	}
	defer f.Close()
	return ix.Load(f)
}

// Len returns the number of records in the current snapshot.
func (ix *Index) Len() int {
	snap := ix.snap.Load()
	if snap == nil {
		return 0
	}
	return snap.Len()
}

// Query applies the filter against the current snapshot. Predicate order:
// set/condition/rarity contains-filters, price bounds, stock filter, then
// free-text relevance. With text present, results sort by descending score
// (ties by ascending id); otherwise table order is preserved. Results are
// truncated to the filter's MaxResults, capped at the index ceiling.
func (ix *Index) Query(f SearchFilter) []CardRecord {
	snap := ix.snap.Load()
	if snap == nil {
		return nil
	}

	limit := f.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	if limit > resultCeiling {
		limit = resultCeiling
	}

	var normQuery string
	if f.Text != "" {
		normQuery = ix.scorer.Normalize(f.Text)
	}

	type scoredHit struct {
		idx   int
		score float64
	}
	var hits []scoredHit
	for i, rec := range snap.records {
		if !containsFold(rec.SetName, f.SetName) {
			continue
		}
		if !containsFold(rec.Condition, f.Condition) {
			continue
		}
		if !containsFold(rec.Rarity, f.Rarity) {
			continue
		}
		if f.MinPrice != nil && rec.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && rec.Price > *f.MaxPrice {
			continue
		}
		if f.InStockOnly && !rec.InStock() {
			continue
		}
		var score float64
		if normQuery != "" {
			score = ix.scorer.Score(normQuery, snap.normNames[i])
			if score < ix.minScore {
				continue
			}
		}
		hits = append(hits, scoredHit{idx: i, score: score})
	}

	if normQuery != "" {
		sort.Slice(hits, func(a, b int) bool {
			if hits[a].score != hits[b].score {
				return hits[a].score > hits[b].score
			}
			return snap.records[hits[a].idx].ID < snap.records[hits[b].idx].ID
		})
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]CardRecord, len(hits))
	for i, h := range hits {
		out[i] = snap.records[h.idx]
	}
	return out
}

// GetByID returns the record with the given id or ErrNotFound.
func (ix *Index) GetByID(id int) (CardRecord, error) {
	snap := ix.snap.Load()
	if snap == nil {
		return CardRecord{}, ErrNotFound
	}
	i, ok := snap.byID[id]
	if !ok {
		return CardRecord{}, ErrNotFound
	}
	return snap.records[i], nil
}

// Statistics aggregates the current snapshot: unique cards, copies, value,
// and counts by set and rarity.
func (ix *Index) Statistics() Stats {
	snap := ix.snap.Load()
	if snap == nil {
		return Stats{BySet: map[string]int{}, ByRarity: map[string]int{}}
	}
	return snap.stats()
}

// CheckStock summarizes availability for a card name. When no name contains
// the query, near-miss fuzzy matches are returned as suggestions instead.
func (ix *Index) CheckStock(name string) StockSummary {
	snap := ix.snap.Load()
	if snap == nil {
		return StockSummary{}
	}

	normQuery := ix.scorer.Normalize(name)
	if normQuery == "" {
		return StockSummary{}
	}

	var summary StockSummary
	for i, norm := range snap.normNames {
		if strings.Contains(norm, normQuery) {
			rec := snap.records[i]
			summary.Found = true
			summary.Variants++
			summary.InStockCopies += rec.Quantity
			summary.Cards = append(summary.Cards, rec)
		}
	}
	if summary.Found {
		return summary
	}

	type scoredHit struct {
		idx   int
		score float64
	}
	var near []scoredHit
	for i, norm := range snap.normNames {
		if score := ix.scorer.Score(normQuery, norm); score >= suggestionMinScore {
			near = append(near, scoredHit{idx: i, score: score})
		}
	}
	sort.Slice(near, func(a, b int) bool {
		if near[a].score != near[b].score {
			return near[a].score > near[b].score
		}
		return snap.records[near[a].idx].ID < snap.records[near[b].idx].ID
	})
	if len(near) > maxSuggestions {
		near = near[:maxSuggestions]
	}
	for _, h := range near {
		summary.Suggestions = append(summary.Suggestions, snap.records[h.idx])
	}
	return summary
}

// BrowseByGame lists the priciest cards filed under a game's sets, highest
// price first. Unknown games degrade to a set-name substring match, so a
// bare set name still browses something sensible.
func (ix *Index) BrowseByGame(game string, limit int) []CardRecord {
	snap := ix.snap.Load()
	if snap == nil {
		return nil
	}
	if limit <= 0 {
		limit = defaultBrowseResults
	}
	if limit > resultCeiling {
		limit = resultCeiling
	}

	key := strings.ToLower(strings.TrimSpace(game))
	if canon, ok := gameAliases[key]; ok {
		key = canon
	}
	sets, ok := gameSets[key]
	if !ok {
		sets = []string{game}
	}

	var out []CardRecord
	for _, rec := range snap.records {
		for _, s := range sets {
			if containsFold(rec.SetName, s) {
				out = append(out, rec)
				break
			}
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Price != out[b].Price {
			return out[a].Price > out[b].Price
		}
		return out[a].ID < out[b].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// containsFold reports whether haystack contains needle case-insensitively.
// An empty needle matches everything.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
