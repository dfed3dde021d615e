package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/derpdot/cardshop/internal/chat"
)

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		origin := originKey(r)
		reply, meta := deps.Orchestrator.Handle(r.Context(), req.SessionID, req.Message, origin)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(deps.Limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(deps.Limiter.Remaining(origin)))
		w.Header().Set("X-RateLimit-Window", deps.Limiter.Window().String())

		code := http.StatusOK
		if meta.Outcome == chat.OutcomeThrottled {
			code = http.StatusTooManyRequests
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(meta.RetryAfter)))
		}
		writeJSON(w, code, reply)
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// originKey partitions rate limiting by caller: the first X-Forwarded-For
// hop when present, otherwise the remote address without its port.
func originKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
