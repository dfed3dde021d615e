package inventory

import "errors"

// ErrNotFound is returned when a requested card does not exist.
var ErrNotFound = errors.New("card not found")

// ErrNoValidRows is returned when a load produces zero usable records.
var ErrNoValidRows = errors.New("no valid inventory rows")

// CardRecord is a single inventory row. ID is unique across a loaded table.
// A record with Quantity == 0 is out of stock but remains searchable unless
// the caller filters to in-stock only.
type CardRecord struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	SetName     string  `json:"set_name"`
	Rarity      string  `json:"rarity"`
	Condition   string  `json:"condition"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	ImageURL    string  `json:"image_url,omitempty"`
	Description string  `json:"description,omitempty"`
}

// InStock reports whether at least one copy is available.
func (c CardRecord) InStock() bool { return c.Quantity > 0 }

// SearchFilter describes one structured inventory query. Zero-value string
// fields and nil price bounds mean "no constraint". An entirely empty filter
// returns the table head up to MaxResults.
type SearchFilter struct {
	Text        string   `json:"text,omitempty"`
	SetName     string   `json:"set_name,omitempty"`
	Condition   string   `json:"condition,omitempty"`
	Rarity      string   `json:"rarity,omitempty"`
	MinPrice    *float64 `json:"min_price,omitempty"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
	InStockOnly bool     `json:"in_stock_only"`
	MaxResults  int      `json:"max_results,omitempty"`
}

// DefaultFilter returns a filter with the defaults callers expect when no
// structured fields are supplied: in-stock only, unset result cap.
func DefaultFilter() SearchFilter {
	return SearchFilter{InStockOnly: true}
}

// IsEmpty reports whether the filter constrains nothing beyond stock status.
func (f SearchFilter) IsEmpty() bool {
	return f.Text == "" && f.SetName == "" && f.Condition == "" && f.Rarity == "" &&
		f.MinPrice == nil && f.MaxPrice == nil
}

// Rejection records one inventory row that failed validation during a load.
type Rejection struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// LoadReport summarizes a completed load or reload.
type LoadReport struct {
	Loaded   int         `json:"loaded"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Stats aggregates the loaded table for the statistics endpoint.
type Stats struct {
	UniqueCards   int            `json:"unique_cards"`
	TotalCopies   int            `json:"total_copies"`
	InStockCards  int            `json:"in_stock_cards"`
	InStockCopies int            `json:"in_stock_copies"`
	TotalValue    float64        `json:"total_value"`
	BySet         map[string]int `json:"by_set"`
	ByRarity      map[string]int `json:"by_rarity"`
}

// StockSummary answers "do you have X?" for a card name, including fuzzy
// suggestions when nothing matches directly.
type StockSummary struct {
	Found         bool         `json:"found"`
	Variants      int          `json:"variants"`
	InStockCopies int          `json:"in_stock_copies"`
	Cards         []CardRecord `json:"cards,omitempty"`
	Suggestions   []CardRecord `json:"suggestions,omitempty"`
}
