package composer

import (
	"strings"
	"time"

	"github.com/derpdot/cardshop/internal/inventory"
)

// SuggestedAction is a follow-up the UI can offer after a reply.
type SuggestedAction struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	CardID      int    `json:"card_id,omitempty"`
}

// StructuredReply is the final answer for one chat message. Cards is the
// authoritative, inventory-verified record set; the prose may describe fewer
// cards but can never add to it.
type StructuredReply struct {
	Text             string                 `json:"text"`
	Cards            []inventory.CardRecord `json:"cards"`
	SuggestedActions []SuggestedAction      `json:"suggested_actions"`
	SessionID        string                 `json:"session_id"`
	Timestamp        time.Time              `json:"timestamp"`
}

const (
	priceDisclaimer    = "Prices are subject to change and may vary with card condition."
	stockDisclaimer    = "Stock levels are updated regularly but may change; please confirm availability before visiting."
	purchaseDisclaimer = "Purchases are completed in-store or through our website with proper payment processing."
)

const maxSuggestedActions = 3

// Compose merges generated prose with the verified matched records. The
// prose is kept as-is (apart from appended disclaimers); the Cards field is
// always exactly matchedRecords, so a hallucinated card can never reach the
// machine-readable side of the reply.
func Compose(generatedText string, matchedRecords []inventory.CardRecord, filterUsed inventory.SearchFilter, userMsg string) StructuredReply {
	text := strings.TrimSpace(generatedText)

	if ds := disclaimers(userMsg, text); len(ds) > 0 {
		text += "\n\n" + strings.Join(ds, "\n")
	}

	cards := matchedRecords
	if cards == nil {
		cards = []inventory.CardRecord{}
	}

	return StructuredReply{
		Text:             text,
		Cards:            cards,
		SuggestedActions: suggestActions(matchedRecords, filterUsed, userMsg),
	}
}

// disclaimers returns the shop-policy notes triggered by the message and
// prose content.
func disclaimers(userMsg, prose string) []string {
	combined := strings.ToLower(userMsg + " " + prose)

	var out []string
	if strings.Contains(combined, "price") || strings.Contains(combined, "$") ||
		strings.Contains(combined, "cost") || strings.Contains(combined, "worth") {
		out = append(out, "• "+priceDisclaimer)
	}
	if strings.Contains(combined, "stock") || strings.Contains(combined, "available") ||
		strings.Contains(combined, "availability") {
		out = append(out, "• "+stockDisclaimer)
	}
	if strings.Contains(combined, "buy") || strings.Contains(combined, "purchase") ||
		strings.Contains(combined, "order") || strings.Contains(combined, "cart") {
		out = append(out, "• "+purchaseDisclaimer)
	}
	return out
}

// suggestActions derives follow-ups from the result shape: zero results
// suggest broadening, a single hit suggests its detail view, several hits
// suggest narrowing.
func suggestActions(records []inventory.CardRecord, f inventory.SearchFilter, userMsg string) []SuggestedAction {
	var actions []SuggestedAction

	switch {
	case len(records) == 0:
		actions = append(actions, SuggestedAction{
			Action:      "broaden_search",
			Description: "Try fewer filters or a shorter card name",
		})
		if f.InStockOnly {
			actions = append(actions, SuggestedAction{
				Action:      "include_out_of_stock",
				Description: "Include out-of-stock cards in the search",
			})
		}
	case len(records) == 1:
		actions = append(actions, SuggestedAction{
			Action:      "view_details",
			Description: "See full details for " + records[0].Name,
			CardID:      records[0].ID,
		})
	default:
		actions = append(actions, SuggestedAction{
			Action:      "view_more",
			Description: "Browse more cards like these",
		})
		actions = append(actions, SuggestedAction{
			Action:      "ask_condition",
			Description: "Ask about the condition of a specific card",
		})
	}

	lowerMsg := strings.ToLower(userMsg)
	if f.MaxPrice == nil && f.MinPrice == nil && strings.Contains(lowerMsg, "price") {
		actions = append(actions, SuggestedAction{
			Action:      "search_by_price",
			Description: "Find cards within your budget",
		})
	}

	actions = append(actions, SuggestedAction{
		Action:      "contact_support",
		Description: "Speak with our trading card experts",
	})

	if len(actions) > maxSuggestedActions {
		actions = actions[:maxSuggestedActions]
	}
	return actions
}
