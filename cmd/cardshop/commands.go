package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derpdot/cardshop/internal/config"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the card inventory",
	Long: `Search the card inventory.

Examples:
  cardshop search "charizard"
  cardshop search "pikachu" --set "Base Set" --max-price 50
  cardshop search --rarity "Rare Holo" --include-out-of-stock`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setName, _ := cmd.Flags().GetString("set")
		condition, _ := cmd.Flags().GetString("condition")
		rarity, _ := cmd.Flags().GetString("rarity")
		minPrice, _ := cmd.Flags().GetFloat64("min-price")
		maxPrice, _ := cmd.Flags().GetFloat64("max-price")
		outOfStock, _ := cmd.Flags().GetBool("include-out-of-stock")
		limit, _ := cmd.Flags().GetInt("limit")

		params := url.Values{}
		if len(args) > 0 {
			params.Set("query", strings.Join(args, " "))
		}
		if setName != "" {
			params.Set("set_name", setName)
		}
		if condition != "" {
			params.Set("condition", condition)
		}
		if rarity != "" {
			params.Set("rarity", rarity)
		}
		if minPrice > 0 {
			params.Set("min_price", strconv.FormatFloat(minPrice, 'f', -1, 64))
		}
		if maxPrice > 0 {
			params.Set("max_price", strconv.FormatFloat(maxPrice, 'f', -1, 64))
		}
		if outOfStock {
			params.Set("in_stock_only", "false")
		}
		if limit > 0 {
			params.Set("max_results", strconv.Itoa(limit))
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/inventory/search?"+params.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Cards []struct {
				ID        int     `json:"id"`
				Name      string  `json:"name"`
				SetName   string  `json:"set_name"`
				Rarity    string  `json:"rarity"`
				Condition string  `json:"condition"`
				Price     float64 `json:"price"`
				Quantity  int     `json:"quantity"`
			} `json:"cards"`
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Count == 0 {
			fmt.Println("No cards found.")
			return nil
		}

		for _, c := range result.Cards {
			stock := fmt.Sprintf("%d in stock", c.Quantity)
			if c.Quantity == 0 {
				stock = colorize(colorYellow, "out of stock")
			}
			fmt.Printf("%s  %s (%s, %s, %s) — $%.2f, %s\n",
				colorize(colorCyan, fmt.Sprintf("#%d", c.ID)),
				colorize(colorBold, c.Name),
				c.SetName, c.Rarity, c.Condition, c.Price, stock,
			)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("set", "", "filter by set name")
	searchCmd.Flags().String("condition", "", "filter by condition")
	searchCmd.Flags().String("rarity", "", "filter by rarity")
	searchCmd.Flags().Float64("min-price", 0, "minimum price in dollars")
	searchCmd.Flags().Float64("max-price", 0, "maximum price in dollars")
	searchCmd.Flags().Bool("include-out-of-stock", false, "include cards with zero stock")
	searchCmd.Flags().Int("limit", 0, "maximum number of results")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one chat message to the shop assistant",
	Long: `Send one chat message to the shop assistant.

Pass --session to continue an earlier conversation; the reply prints the
session id to reuse.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"message": strings.Join(args, " ")}
		if sessionID != "" {
			body["session_id"] = sessionID
		}

		resp, err := client.post(cmd.Context(), "/chat", body)
		if err != nil {
			return err
		}

		var reply struct {
			Text  string `json:"text"`
			Cards []struct {
				ID       int     `json:"id"`
				Name     string  `json:"name"`
				SetName  string  `json:"set_name"`
				Price    float64 `json:"price"`
				Quantity int     `json:"quantity"`
			} `json:"cards"`
			SuggestedActions []struct {
				Action      string `json:"action"`
				Description string `json:"description"`
			} `json:"suggested_actions"`
			SessionID string `json:"session_id"`
		}
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		fmt.Println(reply.Text)
		if len(reply.Cards) > 0 {
			fmt.Println()
			for _, c := range reply.Cards {
				fmt.Printf("  %s %s (%s) — $%.2f, %d in stock\n",
					colorize(colorCyan, fmt.Sprintf("#%d", c.ID)), c.Name, c.SetName, c.Price, c.Quantity)
			}
		}
		if len(reply.SuggestedActions) > 0 {
			fmt.Println()
			for _, a := range reply.SuggestedActions {
				fmt.Printf("  %s %s\n", colorize(colorBold, a.Action+":"), a.Description)
			}
		}
		printStatus("Session", "%s", reply.SessionID)
		return nil
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session id to continue")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inventory statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/inventory/stats")
		if err != nil {
			return err
		}

		var stats any
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

// --- reload ---

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the inventory (admin)",
	Long: `Reload the inventory (admin).

Without flags the server re-reads its configured inventory file. With
--file the given CSV replaces the current table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var resp *http.Response
		if file != "" {
			f, openErr := os.Open(file)
			if openErr != nil {
				return fmt.Errorf("opening inventory file: %w", openErr)
			}
			defer f.Close()
			resp, err = client.postRaw(cmd.Context(), "/inventory/reload", f, "text/csv")
		} else {
			resp, err = client.postRaw(cmd.Context(), "/inventory/reload", nil, "")
		}
		if err != nil {
			return err
		}

		var report struct {
			Loaded   int `json:"loaded"`
			Rejected []struct {
				Line   int    `json:"line"`
				Reason string `json:"reason"`
			} `json:"rejected"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printSuccess("Loaded %d cards", report.Loaded)
		for _, rej := range report.Rejected {
			printWarning("line %d rejected: %s", rej.Line, rej.Reason)
		}
		return nil
	},
}

func init() {
	reloadCmd.Flags().String("file", "", "CSV file to upload (default: server re-reads its own)")
}

// --- transcripts ---

var transcriptsCmd = &cobra.Command{
	Use:   "transcripts",
	Short: "List recent chat transcripts (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		if sessionID != "" {
			params.Set("session_id", sessionID)
		}

		resp, err := client.get(cmd.Context(), "/transcripts?"+params.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Transcripts []struct {
				ID        string `json:"id"`
				SessionID string `json:"session_id"`
				CreatedAt string `json:"created_at"`
				UserText  string `json:"user_text"`
				Outcome   string `json:"outcome"`
				LatencyMs int64  `json:"latency_ms"`
			} `json:"transcripts"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Transcripts) == 0 {
			fmt.Println("No transcripts found.")
			return nil
		}

		for _, t := range result.Transcripts {
			text := t.UserText
			if len(text) > 60 {
				text = text[:60] + "..."
			}
			fmt.Printf("%s  %s  %-13s %4dms  %s\n",
				colorize(colorCyan, t.ID[:8]),
				t.CreatedAt,
				t.Outcome,
				t.LatencyMs,
				text,
			)
		}
		return nil
	},
}

func init() {
	transcriptsCmd.Flags().Int("limit", 20, "maximum number of transcripts to list")
	transcriptsCmd.Flags().String("session", "", "only show one session's transcripts")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
