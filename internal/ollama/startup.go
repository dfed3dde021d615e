package ollama

import (
	"context"
	"fmt"
	"io"
	"time"
)

// EnsureReady checks that the generative backend is running and the chat
// model is available, pulling it with progress output written to w when it
// is missing. The model is then warmed with a trivial request so the first
// customer message doesn't pay the cold-load penalty.
// Returns a non-nil error if the backend is unreachable.
func EnsureReady(ctx context.Context, c *Client, chatModel string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running. Start it with: ollama serve")
	}

	if c.HasModel(ctx, chatModel) {
		fmt.Fprintf(w, "model %s: ready\n", chatModel)
	} else {
		fmt.Fprintf(w, "model %s: pulling...\n", chatModel)
		err := c.PullModel(ctx, chatModel, func(p pullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", chatModel, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", chatModel)
	}

	fmt.Fprintf(w, "model %s: warming up...\n", chatModel)
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := c.Chat(warmCtx, chatModel, []Message{
		{Role: "user", Content: "ping"},
	})
	if err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", chatModel, err)
	} else {
		fmt.Fprintf(w, "model %s: warm\n", chatModel)
	}

	return nil
}
