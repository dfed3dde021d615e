package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestChatPost(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chat": `{"text":"We have it!","cards":[{"id":1,"name":"Charizard"}],"session_id":"s-1"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/chat", map[string]any{"message": "got charizard?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reply struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(resp, &reply); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if reply.Text != "We have it!" {
		t.Errorf("text = %q", reply.Text)
	}
	if reply.SessionID != "s-1" {
		t.Errorf("session_id = %q, want s-1", reply.SessionID)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/chat" {
		t.Errorf("request = %s %s, want POST /chat", r.Method, r.Path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["message"] != "got charizard?" {
		t.Errorf("body.message = %v", body["message"])
	}
}

func TestSearchGet(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /inventory/search": `{"cards":[{"id":3,"name":"Pikachu","price":12.5,"quantity":4}],"count":1}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/inventory/search?query=pikachu&max_price=50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("count = %d, want 1", result.Count)
	}

	r := ts.requests[0]
	if !strings.Contains(r.Path, "query=pikachu") || !strings.Contains(r.Path, "max_price=50") {
		t.Errorf("query params not forwarded, path = %q", r.Path)
	}
}

func TestReloadSendsAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /inventory/reload": `{"loaded":42}`,
	})

	client := ts.client()
	resp, err := client.postRaw(ctx, "/inventory/reload", strings.NewReader("id,name\n"), "text/csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var report struct {
		Loaded int `json:"loaded"`
	}
	if err := decodeJSON(resp, &report); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if report.Loaded != 42 {
		t.Errorf("loaded = %d, want 42", report.Loaded)
	}

	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	if r.Body != "id,name\n" {
		t.Errorf("body = %q, CSV not forwarded verbatim", r.Body)
	}
}

func TestDecodeJSONErrorBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	client := ts.client()
	resp, err := client.get(ctx, "/nope")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response, got nil")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention status 404", err)
	}
}
