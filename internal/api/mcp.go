package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/derpdot/cardshop/internal/inventory"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Index *inventory.Index
}

// NewMCPServer creates an MCP server exposing the inventory as tools, so an
// agent can ground its answers on the same verified records the chat
// pipeline uses.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cardshop",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cardshop — trading card inventory for Derpdot Cards. Search, stock checks, and per-card details."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_cards",
			mcp.WithDescription("Search the card inventory by fuzzy name and structured filters."),
			mcp.WithString("query", mcp.Description("Free-text card name to match")),
			mcp.WithString("set_name", mcp.Description("Filter by set name (substring match)")),
			mcp.WithString("condition", mcp.Description("Filter by condition, e.g. Near Mint")),
			mcp.WithString("rarity", mcp.Description("Filter by rarity, e.g. Rare Holo")),
			mcp.WithNumber("min_price", mcp.Description("Minimum price in dollars")),
			mcp.WithNumber("max_price", mcp.Description("Maximum price in dollars")),
			mcp.WithBoolean("in_stock_only", mcp.Description("Only return cards with stock (default true)")),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchCards(deps),
	)

	s.AddTool(
		mcp.NewTool("check_stock",
			mcp.WithDescription("Check availability for a card name, with close-match suggestions when nothing matches."),
			mcp.WithString("name", mcp.Description("Card name to check"), mcp.Required()),
		),
		mcpCheckStock(deps),
	)

	s.AddTool(
		mcp.NewTool("card_details",
			mcp.WithDescription("Fetch one card record by its inventory id."),
			mcp.WithNumber("id", mcp.Description("Card id"), mcp.Required()),
		),
		mcpCardDetails(deps),
	)

	s.AddTool(
		mcp.NewTool("browse_by_game",
			mcp.WithDescription("Browse the priciest cards for a game: magic, pokemon, or yugioh."),
			mcp.WithString("game_type", mcp.Description("Card game to browse: magic, pokemon, yugioh"), mcp.Required()),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of cards to show (default 3)")),
		),
		mcpBrowseByGame(deps),
	)

	s.AddTool(
		mcp.NewTool("inventory_stats",
			mcp.WithDescription("Aggregate inventory statistics: unique cards, copies, value, counts by set and rarity."),
		),
		mcpInventoryStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"inventory://stats",
			"Inventory Statistics",
			mcp.WithResourceDescription("Current inventory aggregates as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpSearchCards(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f := inventory.DefaultFilter()
		f.Text = req.GetString("query", "")
		f.SetName = req.GetString("set_name", "")
		f.Condition = req.GetString("condition", "")
		f.Rarity = req.GetString("rarity", "")
		f.InStockOnly = req.GetBool("in_stock_only", true)
		f.MaxResults = req.GetInt("max_results", 0)

		if v := req.GetFloat("min_price", -1); v >= 0 {
			f.MinPrice = &v
		}
		if v := req.GetFloat("max_price", -1); v >= 0 {
			f.MaxPrice = &v
		}

		records := deps.Index.Query(f)
		if len(records) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(records)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCheckStock(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		summary := deps.Index.CheckStock(name)
		b, err := json.Marshal(summary)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCardDetails(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		rec, err := deps.Index.GetByID(id)
		if errors.Is(err, inventory.ErrNotFound) {
			return mcpError(fmt.Sprintf("card %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		b, err := json.Marshal(rec)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal card: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpBrowseByGame(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		game, err := req.RequireString("game_type")
		if err != nil {
			return mcpError("game_type is required"), nil
		}

		records := deps.Index.BrowseByGame(game, req.GetInt("max_results", 0))
		if len(records) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(records)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpInventoryStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Index.Statistics())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Index.Statistics())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
