// Package composer assembles generative prompts from grounded inventory
// facts and composes the final structured reply. The structured card list in
// a reply always comes from verified inventory records, never from prose.
package composer

import (
	"fmt"
	"strings"

	"github.com/derpdot/cardshop/internal/inventory"
	"github.com/derpdot/cardshop/internal/ollama"
	"github.com/derpdot/cardshop/internal/session"
)

const defaultMaxContextTokens = 3000

const systemPrompt = `You are a helpful assistant for Derpdot Cards, a trading card shop.
Only discuss trading cards, card games, and the shop's inventory.
The [Inventory Facts] section below is the only source of truth for prices, stock, and availability — never invent or adjust those numbers.
If the facts show no matching cards, say so and invite the customer to try a different search.
Keep replies short, friendly, and professional.`

// Composer builds chat prompts within a token budget. The budget bounds the
// injected facts and history, not the customer's message itself.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (3000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// BuildPrompt assembles the message sequence for the generative backend:
// system instructions with grounded facts, then the bounded recent turn
// history, then the new customer message. History is dropped oldest-first
// when the budget would be exceeded.
func (c *Composer) BuildPrompt(facts string, history []session.Turn, userMsg string) []ollama.Message {
	sys := systemPrompt
	if facts != "" {
		sys += "\n\n[Inventory Facts]\n" + facts
	}

	budget := c.MaxContextTokens - EstimateTokens(sys)

	// Walk history newest-first until the budget is spent, then emit in order.
	var kept []session.Turn
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Text)
		if cost > budget {
			break
		}
		kept = append(kept, history[i])
		budget -= cost
	}

	msgs := make([]ollama.Message, 0, len(kept)+2)
	msgs = append(msgs, ollama.Message{Role: "system", Content: sys})
	for i := len(kept) - 1; i >= 0; i-- {
		msgs = append(msgs, ollama.Message{Role: string(kept[i].Role), Content: kept[i].Text})
	}
	msgs = append(msgs, ollama.Message{Role: "user", Content: userMsg})
	return msgs
}

// FormatFacts renders matched records as the fact block injected into the
// system prompt. Facts carry exact price, quantity, and condition so the
// model has no reason to guess.
func FormatFacts(records []inventory.CardRecord, summary inventory.StockSummary) string {
	var sb strings.Builder

	switch {
	case len(records) == 0 && summary.Found && summary.InStockCopies == 0:
		// The card exists, it just isn't on the shelf. Saying "not found"
		// here would tell the customer we don't carry it at all.
		sb.WriteString("Matching cards exist but are currently out of stock:\n")
		for _, rec := range summary.Cards {
			fmt.Fprintf(&sb, "- %s (%s, %s) — $%.2f, out of stock\n",
				rec.Name, rec.SetName, rec.Condition, rec.Price)
		}
	case len(records) == 0:
		sb.WriteString("No matching cards were found in the current inventory.\n")
	default:
		fmt.Fprintf(&sb, "%d matching card(s):\n", len(records))
		for _, rec := range records {
			fmt.Fprintf(&sb, "- %s (%s, %s, %s) — $%.2f, %d in stock [id %d]\n",
				rec.Name, rec.SetName, rec.Rarity, rec.Condition, rec.Price, rec.Quantity, rec.ID)
		}
	}

	if !summary.Found && len(summary.Suggestions) > 0 {
		sb.WriteString("Close-match suggestions:\n")
		for _, rec := range summary.Suggestions {
			fmt.Fprintf(&sb, "- %s (%s) — $%.2f, %d in stock\n",
				rec.Name, rec.SetName, rec.Price, rec.Quantity)
		}
	}

	return sb.String()
}

// EstimateTokens provides a rough token count using a 4-chars-per-token
// heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
