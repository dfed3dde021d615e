package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var requiredColumns = []string{"id", "name", "set_name", "rarity", "condition", "price", "quantity"}

// readTable parses a CSV inventory table into records, collecting per-row
// rejections instead of failing on the first bad row. The header row is
// required; column order is free. Duplicate ids keep the first occurrence.
func readTable(r io.Reader) ([]CardRecord, []Rejection, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// Rows with missing trailing optional columns are still usable.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", req)
		}
	}

	var (
		records    []CardRecord
		rejections []Rejection
		seen       = make(map[int]bool)
		line       = 1
	)
	for {
		line++
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rejections = append(rejections, Rejection{Line: line, Reason: err.Error()})
			continue
		}

		rec, err := parseRow(row, cols)
		if err != nil {
			rejections = append(rejections, Rejection{Line: line, Reason: err.Error()})
			continue
		}
		if seen[rec.ID] {
			rejections = append(rejections, Rejection{Line: line, Reason: fmt.Sprintf("duplicate id %d", rec.ID)})
			continue
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}

	return records, rejections, nil
}

func parseRow(row []string, cols map[string]int) (CardRecord, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for _, req := range requiredColumns {
		if field(req) == "" {
			return CardRecord{}, fmt.Errorf("missing %s", req)
		}
	}

	id, err := strconv.Atoi(field("id"))
	if err != nil || id <= 0 {
		return CardRecord{}, fmt.Errorf("invalid id %q", field("id"))
	}
	price, err := strconv.ParseFloat(field("price"), 64)
	if err != nil || price < 0 {
		return CardRecord{}, fmt.Errorf("invalid price %q", field("price"))
	}
	quantity, err := strconv.Atoi(field("quantity"))
	if err != nil || quantity < 0 {
		return CardRecord{}, fmt.Errorf("invalid quantity %q", field("quantity"))
	}

	return CardRecord{
		ID:          id,
		Name:        field("name"),
		SetName:     field("set_name"),
		Rarity:      field("rarity"),
		Condition:   field("condition"),
		Price:       price,
		Quantity:    quantity,
		ImageURL:    field("image_url"),
		Description: field("description"),
	}, nil
}
