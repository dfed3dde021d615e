// Package chat sequences the per-message pipeline: validation, rate
// limiting, content assessment, inventory grounding, the generative call,
// and reply composition. Every stage has a deterministic terminal reply, so
// a customer message is always answered even when the generative backend is
// down.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/derpdot/cardshop/internal/composer"
	"github.com/derpdot/cardshop/internal/guard"
	"github.com/derpdot/cardshop/internal/inventory"
	"github.com/derpdot/cardshop/internal/ollama"
	"github.com/derpdot/cardshop/internal/planner"
	"github.com/derpdot/cardshop/internal/session"
	"github.com/derpdot/cardshop/internal/storage"
)

// Terminal outcomes of one handled message.
const (
	OutcomeDelivered     = "delivered"
	OutcomeFallback      = "fallback"
	OutcomeRejectedInput = "rejected_input"
	OutcomeThrottled     = "throttled"
	OutcomeBlocked       = "blocked"
	OutcomeRedirected    = "redirected"
)

const defaultGenerateTimeout = 10 * time.Second

// Chatter is the generative backend. Implemented by ollama.Client.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// TranscriptSaver persists handled messages. Implemented by storage.Store.
type TranscriptSaver interface {
	SaveTranscript(t storage.Transcript) error
}

// Deps holds the orchestrator's collaborators.
type Deps struct {
	Index     *inventory.Index
	Validator *guard.Validator
	Limiter   *guard.Limiter
	Content   *guard.ContentGuard
	Sessions  *session.Store
	Composer  *composer.Composer
	Chatter   Chatter
	Model     string
	// GenerateTimeout bounds the single generative attempt (default 10s).
	GenerateTimeout time.Duration
	// Transcripts is optional; nil disables persistence.
	Transcripts TranscriptSaver
}

// Meta captures diagnostic information about one handled message.
type Meta struct {
	Outcome    string
	RetryAfter time.Duration
	DurationMs int64
}

// Orchestrator runs the message pipeline.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator wires an Orchestrator. GenerateTimeout <= 0 selects the
// default.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.GenerateTimeout <= 0 {
		deps.GenerateTimeout = defaultGenerateTimeout
	}
	return &Orchestrator{deps: deps}
}

// Handle processes one customer message and always returns a reply. Gate
// failures (validation, rate limit, content policy) short-circuit with
// locally composed replies; generative failures degrade to a templated
// inventory-grounded fallback. No fault propagates to the caller.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, rawText, originKey string) (reply composer.StructuredReply, meta Meta) {
	start := time.Now()
	defer func() {
		meta.DurationMs = time.Since(start).Milliseconds()
		reply = o.finish(reply.SessionID, rawText, reply, &meta, start)
	}()

	// Validated.
	if err := o.deps.Validator.SessionID(sessionID); err != nil {
		meta.Outcome = OutcomeRejectedInput
		reply = rejectedReply(err.Error())
		reply.SessionID = sessionID
		return
	}
	if err := o.deps.Validator.Message(rawText); err != nil {
		meta.Outcome = OutcomeRejectedInput
		reply = rejectedReply(err.Error())
		reply.SessionID = sessionID
		return
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	clean := guard.Sanitize(rawText)

	// RateChecked.
	decision := o.deps.Limiter.Check(originKey)
	if !decision.Allowed {
		meta.Outcome = OutcomeThrottled
		meta.RetryAfter = decision.RetryAfter
		reply = throttledReply(decision.RetryAfter)
		reply.SessionID = sessionID
		return
	}

	// ContentChecked. Blocked and redirected messages never reach the
	// generative backend, and are kept out of the session window so they
	// cannot poison later prompts.
	verdict := o.deps.Content.Assess(clean, o.deps.Sessions.Texts(sessionID))
	switch verdict.Action {
	case guard.Block:
		meta.Outcome = OutcomeBlocked
		slog.Warn("message blocked", "category", verdict.Category, "session", sessionID)
		reply = guardReply(verdict.Reply)
		reply.SessionID = sessionID
		return
	case guard.Redirect:
		meta.Outcome = OutcomeRedirected
		slog.Debug("message redirected", "category", verdict.Category, "session", sessionID)
		reply = guardReply(verdict.Reply)
		reply.SessionID = sessionID
		return
	}

	o.deps.Sessions.Serialize(sessionID, func() {
		reply = o.answer(ctx, sessionID, clean, &meta)
	})
	reply.SessionID = sessionID
	return
}

// answer runs the grounded stages (Searched through Composed) for an
// accepted message. Runs under the session's processing lock so turn order
// matches acceptance order.
func (o *Orchestrator) answer(ctx context.Context, sessionID, clean string, meta *Meta) composer.StructuredReply {
	// Searched.
	filter := planner.Plan(clean, nil)
	records := o.deps.Index.Query(filter)
	var summary inventory.StockSummary
	if len(records) == 0 && filter.Text != "" {
		summary = o.deps.Index.CheckStock(filter.Text)
	}
	facts := composer.FormatFacts(records, summary)

	// History is captured before the user turn is appended so the new
	// message appears exactly once in the prompt.
	history := o.deps.Sessions.History(sessionID)
	o.deps.Sessions.Append(sessionID, session.RoleUser, clean)

	// Generated: one timeout-bounded attempt, fallback already in hand.
	genCtx, cancel := context.WithTimeout(ctx, o.deps.GenerateTimeout)
	defer cancel()

	prompt := o.deps.Composer.BuildPrompt(facts, history, clean)
	text, err := o.deps.Chatter.Chat(genCtx, o.deps.Model, prompt)
	if err != nil {
		slog.Warn("generative call failed, using fallback", "error", err, "session", sessionID)
		text = fallbackText(records, summary)
		meta.Outcome = OutcomeFallback
	} else {
		meta.Outcome = OutcomeDelivered
	}

	// Composed: the structured card list always comes from the verified
	// records, whatever the prose claims.
	reply := composer.Compose(text, records, filter, clean)
	o.deps.Sessions.Append(sessionID, session.RoleAssistant, reply.Text)
	return reply
}

// finish stamps the timestamp and persists the transcript.
func (o *Orchestrator) finish(sessionID, userText string, reply composer.StructuredReply, meta *Meta, start time.Time) composer.StructuredReply {
	reply.Timestamp = time.Now().UTC()

	if o.deps.Transcripts != nil {
		ids := make([]int, len(reply.Cards))
		for i, c := range reply.Cards {
			ids[i] = c.ID
		}
		cardIDs, _ := json.Marshal(ids)
		err := o.deps.Transcripts.SaveTranscript(storage.Transcript{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			CreatedAt: start.UTC(),
			UserText:  userText,
			ReplyText: reply.Text,
			Outcome:   meta.Outcome,
			CardIDs:   string(cardIDs),
			LatencyMs: meta.DurationMs,
		})
		if err != nil {
			slog.Warn("saving transcript failed", "error", err)
		}
	}
	return reply
}

func rejectedReply(reason string) composer.StructuredReply {
	return composer.StructuredReply{
		Text:  reason,
		Cards: []inventory.CardRecord{},
		SuggestedActions: []composer.SuggestedAction{
			{Action: "try_again", Description: "Rephrase your question about trading cards"},
		},
	}
}

func throttledReply(retryAfter time.Duration) composer.StructuredReply {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return composer.StructuredReply{
		Text:  fmt.Sprintf("You're sending messages a little too quickly. Please wait about %d seconds and try again.", secs),
		Cards: []inventory.CardRecord{},
		SuggestedActions: []composer.SuggestedAction{
			{Action: "wait_and_retry", Description: "Retry after the rate limit window passes"},
		},
	}
}

func guardReply(text string) composer.StructuredReply {
	return composer.StructuredReply{
		Text:  text,
		Cards: []inventory.CardRecord{},
		SuggestedActions: []composer.SuggestedAction{
			{Action: "browse_inventory", Description: "Browse our card inventory"},
			{Action: "try_again", Description: "Ask about trading cards"},
		},
	}
}

// fallbackText renders a deterministic reply from grounded records when the
// generative backend is unreachable or too slow.
func fallbackText(records []inventory.CardRecord, summary inventory.StockSummary) string {
	if len(records) == 0 {
		if summary.Found && summary.InStockCopies == 0 {
			var sb strings.Builder
			sb.WriteString("We do carry that card, but it's currently out of stock:\n")
			for _, rec := range summary.Cards {
				fmt.Fprintf(&sb, "- %s (%s, %s) — $%.2f\n",
					rec.Name, rec.SetName, rec.Condition, rec.Price)
			}
			sb.WriteString("Check back soon, or ask about similar cards.")
			return sb.String()
		}
		if len(summary.Suggestions) > 0 {
			names := make([]string, len(summary.Suggestions))
			for i, rec := range summary.Suggestions {
				names[i] = rec.Name
			}
			return "I couldn't find that exact card. Did you mean: " + strings.Join(names, ", ") + "?"
		}
		return "I couldn't find matching cards in our inventory right now. Try a different name or fewer filters."
	}

	var sb strings.Builder
	sb.WriteString("Here's what our inventory shows:\n")
	for _, rec := range records {
		fmt.Fprintf(&sb, "- %s (%s, %s) — $%.2f, %d in stock\n",
			rec.Name, rec.SetName, rec.Condition, rec.Price, rec.Quantity)
	}
	return sb.String()
}
