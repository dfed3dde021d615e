package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies the transcript indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_transcripts_session", "idx_transcripts_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func sampleTranscript(id, sessionID string, at time.Time) Transcript {
	return Transcript{
		ID:        id,
		SessionID: sessionID,
		CreatedAt: at,
		UserText:  "do you have charizard?",
		ReplyText: "We have 2 in stock.",
		Outcome:   "delivered",
		CardIDs:   "[7]",
		LatencyMs: 120,
	}
}

func TestSaveAndGetTranscript(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	if err := s.SaveTranscript(sampleTranscript("t-1", "s-1", now)); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.GetTranscript("t-1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}

	if got.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got.SessionID)
	}
	if got.UserText != "do you have charizard?" {
		t.Errorf("UserText = %q", got.UserText)
	}
	if got.Outcome != "delivered" {
		t.Errorf("Outcome = %q, want delivered", got.Outcome)
	}
	if got.CardIDs != "[7]" {
		t.Errorf("CardIDs = %q, want [7]", got.CardIDs)
	}
	if got.LatencyMs != 120 {
		t.Errorf("LatencyMs = %d, want 120", got.LatencyMs)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}

func TestGetTranscript_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetTranscript("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveTranscript_Defaults(t *testing.T) {
	s := openTestStore(t)

	tr := sampleTranscript("t-1", "s-1", time.Now().UTC())
	tr.Outcome = ""
	tr.CardIDs = ""
	if err := s.SaveTranscript(tr); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.GetTranscript("t-1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.Outcome != "delivered" {
		t.Errorf("empty outcome should default to delivered, got %q", got.Outcome)
	}
	if got.CardIDs != "[]" {
		t.Errorf("empty card ids should default to [], got %q", got.CardIDs)
	}
}

func TestGetRecentTranscripts_NewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		tr := sampleTranscript(fmt.Sprintf("t-%d", i), "s-1", base.Add(time.Duration(i)*time.Second))
		if err := s.SaveTranscript(tr); err != nil {
			t.Fatalf("SaveTranscript: %v", err)
		}
	}

	got, err := s.GetRecentTranscripts(3)
	if err != nil {
		t.Fatalf("GetRecentTranscripts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d transcripts, want 3", len(got))
	}
	if got[0].ID != "t-4" || got[1].ID != "t-3" || got[2].ID != "t-2" {
		t.Errorf("order = %s, %s, %s; want t-4, t-3, t-2", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestGetSessionTranscripts_OldestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		tr := sampleTranscript(fmt.Sprintf("a-%d", i), "s-a", base.Add(time.Duration(i)*time.Second))
		if err := s.SaveTranscript(tr); err != nil {
			t.Fatalf("SaveTranscript: %v", err)
		}
	}
	if err := s.SaveTranscript(sampleTranscript("b-0", "s-b", base)); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, err := s.GetSessionTranscripts("s-a", 10)
	if err != nil {
		t.Fatalf("GetSessionTranscripts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d transcripts, want 3", len(got))
	}
	for i, tr := range got {
		if tr.ID != fmt.Sprintf("a-%d", i) {
			t.Errorf("got[%d].ID = %s, want a-%d", i, tr.ID, i)
		}
		if tr.SessionID != "s-a" {
			t.Errorf("foreign session transcript leaked: %+v", tr)
		}
	}
}

func TestCountByOutcome(t *testing.T) {
	s := openTestStore(t)

	outcomes := []string{"delivered", "delivered", "fallback", "blocked"}
	for i, o := range outcomes {
		tr := sampleTranscript(fmt.Sprintf("t-%d", i), "s-1", time.Now().UTC())
		tr.Outcome = o
		if err := s.SaveTranscript(tr); err != nil {
			t.Fatalf("SaveTranscript: %v", err)
		}
	}

	counts, err := s.CountByOutcome()
	if err != nil {
		t.Fatalf("CountByOutcome: %v", err)
	}
	if counts["delivered"] != 2 || counts["fallback"] != 1 || counts["blocked"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
