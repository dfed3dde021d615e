package guard

import (
	"regexp"
	"strings"
)

// Action is the outcome class of a content assessment.
type Action int

const (
	Allow Action = iota
	Redirect
	Block
)

func (a Action) String() string {
	switch a {
	case Redirect:
		return "redirect"
	case Block:
		return "block"
	default:
		return "allow"
	}
}

// Rule pairs a detection pattern with its category and outcome. Keeping the
// rules as data rather than inline conditionals lets each one be tested and
// extended independently.
type Rule struct {
	Pattern  *regexp.Regexp
	Category string
	Action   Action
	Reply    string
}

// Verdict is the result of assessing one message.
type Verdict struct {
	Action   Action
	Category string
	// Reply is the caller-facing text for redirect/block outcomes.
	Reply string
}

const (
	injectionReply = "I can't follow instructions embedded in messages. I'm happy to help you find trading cards — what are you looking for?"
	abuseReply     = "I can only help with trading cards and our shop inventory."
	offTopicReply  = "I'm here to help with trading cards and our shop inventory. What cards are you looking for?"
)

var defaultRules = []Rule{
	{regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior)\s+instructions`), "prompt_injection", Block, injectionReply},
	{regexp.MustCompile(`(?i)disregard\s+(?:all\s+)?(?:previous|prior)`), "prompt_injection", Block, injectionReply},
	{regexp.MustCompile(`(?i)forget\s+everything`), "prompt_injection", Block, injectionReply},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s`), "prompt_injection", Block, injectionReply},
	{regexp.MustCompile(`(?i)new\s+instructions\s*:`), "prompt_injection", Block, injectionReply},
	{regexp.MustCompile(`(?i)reveal\s+(?:your\s+)?(?:system\s+prompt|instructions|configuration)`), "prompt_injection", Block, injectionReply},
	// Not anchored: messages are whitespace-collapsed before assessment, so
	// a role tag can sit anywhere in the text.
	{regexp.MustCompile(`(?i)\b(?:system|assistant|user)\s*:`), "prompt_injection", Block, injectionReply},
	{regexp.MustCompile(`(?i)<\s*/?\s*(?:system|assistant|user)\s*>`), "prompt_injection", Block, injectionReply},

	{regexp.MustCompile(`(?i)\b(?:hack|break)\s+into\b`), "abuse", Block, abuseReply},
	{regexp.MustCompile(`(?i)\bsteal\s+credit\b`), "abuse", Block, abuseReply},
	{regexp.MustCompile(`(?i)\b(?:fraud|scam|counterfeit)\b`), "abuse", Block, abuseReply},
	{regexp.MustCompile(`(?i)\blaunder\b`), "abuse", Block, abuseReply},

	{regexp.MustCompile(`(?i)\b(?:weather|politics|election)\b`), "off_topic", Redirect, offTopicReply},
	{regexp.MustCompile(`(?i)\b(?:cooking|recipe|travel|flights?)\b`), "off_topic", Redirect, offTopicReply},
	{regexp.MustCompile(`(?i)\b(?:cryptocurrency|bitcoin|real\s+estate)\b`), "off_topic", Redirect, offTopicReply},
}

// cardTerms mark a message as on-topic. A message with none of these and
// enough words to carry a subject is treated as off-topic.
var cardTerms = []string{
	"card", "cards", "deck", "magic", "pokemon", "yugioh", "yu-gi-oh", "mtg",
	"tcg", "booster", "pack", "rare", "common", "uncommon", "mythic",
	"legendary", "foil", "holo", "holographic", "set", "collection", "trade",
	"trading", "buy", "sell", "price", "value", "condition", "mint", "played",
	"damaged", "inventory", "stock", "have",
}

// ContentGuard classifies cleaned messages as allow, redirect, or block
// using an ordered rule table plus an on-topic keyword heuristic.
type ContentGuard struct {
	rules []Rule
}

// NewContentGuard returns a guard with the built-in rule table.
func NewContentGuard() *ContentGuard {
	return &ContentGuard{rules: defaultRules}
}

// NewContentGuardWithRules returns a guard with a custom rule table,
// evaluated in order. First match wins.
func NewContentGuardWithRules(rules []Rule) *ContentGuard {
	return &ContentGuard{rules: rules}
}

// Assess classifies a message. history carries recent turn texts from the
// same session: a short follow-up ("how much is it?") in an on-topic
// conversation is allowed even when it names no card term itself.
func (g *ContentGuard) Assess(msg string, history []string) Verdict {
	for _, rule := range g.rules {
		if rule.Pattern.MatchString(msg) {
			return Verdict{Action: rule.Action, Category: rule.Category, Reply: rule.Reply}
		}
	}

	if !isCardRelated(msg) && len(strings.Fields(msg)) > 3 && !recentlyOnTopic(history) {
		return Verdict{
			Action:   Redirect,
			Category: "off_topic",
			Reply:    "I specialize in trading cards. Are you looking for specific cards, or would you like to browse our inventory?",
		}
	}

	return Verdict{Action: Allow}
}

func isCardRelated(msg string) bool {
	lower := strings.ToLower(msg)
	for _, term := range cardTerms {
		if indexWord(lower, term) >= 0 {
			return true
		}
	}
	return false
}

func recentlyOnTopic(history []string) bool {
	// Only the tail of the window matters; an on-topic opener five turns ago
	// does not excuse a drifted conversation.
	start := len(history) - 4
	if start < 0 {
		start = 0
	}
	for _, h := range history[start:] {
		if isCardRelated(h) {
			return true
		}
	}
	return false
}

// indexWord finds term in s on word boundaries, or -1.
func indexWord(s, term string) int {
	for offset := 0; ; {
		idx := strings.Index(s[offset:], term)
		if idx < 0 {
			return -1
		}
		idx += offset
		before := idx == 0 || !isWordChar(s[idx-1])
		afterIdx := idx + len(term)
		after := afterIdx >= len(s) || !isWordChar(s[afterIdx])
		if before && after {
			return idx
		}
		offset = idx + len(term)
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
