package inventory

import "strings"

// Snapshot is an immutable point-in-time view of the inventory table plus
// derived lookup structures. Snapshots are built once and swapped wholesale;
// nothing mutates one after newSnapshot returns, so any number of concurrent
// readers can share it without locking.
type Snapshot struct {
	records   []CardRecord
	normNames []string       // normalized name per record, index-aligned
	byID      map[int]int    // id -> records index
	bySet     map[string][]int
	byRarity  map[string][]int
}

func newSnapshot(records []CardRecord, normalize func(string) string) *Snapshot {
	s := &Snapshot{
		records:   records,
		normNames: make([]string, len(records)),
		byID:      make(map[int]int, len(records)),
		bySet:     make(map[string][]int),
		byRarity:  make(map[string][]int),
	}
	for i, rec := range records {
		s.normNames[i] = normalize(rec.Name)
		s.byID[rec.ID] = i
		setKey := strings.ToLower(rec.SetName)
		s.bySet[setKey] = append(s.bySet[setKey], i)
		rarityKey := strings.ToLower(rec.Rarity)
		s.byRarity[rarityKey] = append(s.byRarity[rarityKey], i)
	}
	return s
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int { return len(s.records) }

func (s *Snapshot) stats() Stats {
	st := Stats{
		UniqueCards: len(s.records),
		BySet:       make(map[string]int),
		ByRarity:    make(map[string]int),
	}
	for _, rec := range s.records {
		st.TotalCopies += rec.Quantity
		st.TotalValue += rec.Price * float64(rec.Quantity)
		st.BySet[rec.SetName]++
		st.ByRarity[rec.Rarity]++
		if rec.InStock() {
			st.InStockCards++
			st.InStockCopies += rec.Quantity
		}
	}
	return st
}
