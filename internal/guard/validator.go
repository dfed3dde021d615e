// Package guard holds the pre-generation safety gates: input validation,
// content assessment, and per-origin rate limiting. Every gate runs before
// a message can reach the generative backend.
package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	defaultMaxMessageLen = 1000
	maxSessionIDLen      = 100
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validator rejects malformed raw input before any further processing.
// Rejection is always explicit — input is never silently truncated, since
// truncation would change query semantics.
type Validator struct {
	maxMessageLen int
}

// NewValidator creates a Validator. maxMessageLen <= 0 selects the default
// (1000 characters).
func NewValidator(maxMessageLen int) *Validator {
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &Validator{maxMessageLen: maxMessageLen}
}

// MaxMessageLen returns the configured message length cap.
func (v *Validator) MaxMessageLen() int { return v.maxMessageLen }

// Message validates a raw chat message. The returned error text is safe to
// show to the caller.
func (v *Validator) Message(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if n := len([]rune(raw)); n > v.maxMessageLen {
		return fmt.Errorf("message too long: %d characters, maximum is %d", n, v.maxMessageLen)
	}
	for _, r := range raw {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("message contains unsupported control characters")
		}
	}
	return nil
}

// SessionID validates a caller-supplied session identifier. An empty id is
// fine — one will be generated.
func (v *Validator) SessionID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > maxSessionIDLen {
		return fmt.Errorf("session id too long: maximum is %d characters", maxSessionIDLen)
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("session id may only contain letters, digits, hyphens, and underscores")
	}
	return nil
}

// Sanitize collapses excess whitespace in an already-validated message.
func Sanitize(msg string) string {
	return strings.Join(strings.Fields(msg), " ")
}
