package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "state.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndFinalizeRun(t *testing.T) {
	s := newTestStore(t)
	r := &Run{RunID: "r1", TaskID: "t1", Channel: "whatsapp", Sender: "Tess", SenderID: "u1", Objective: "hello", RiskLevel: "low", MaxIterations: 1}
	if err := s.CreateRun(r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun("r1")
	if err != nil || got == nil {
		t.Fatalf("GetRun: %v %v", got, err)
	}
	if got.Status != RunInProgress {
		t.Fatalf("expected in_progress, got %v", got.Status)
	}

	if err := s.FinalizeRun("r1", RunVerified, "done"); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}
	got, _ = s.GetRun("r1")
	if got.Status != RunVerified || got.ResultText != "done" {
		t.Fatalf("unexpected finalized run: %+v", got)
	}
}

func TestSupersedeNeedsInput(t *testing.T) {
	s := newTestStore(t)
	r := &Run{RunID: "r1", TaskID: "t1", Channel: "whatsapp", Sender: "Tess", SenderID: "u1", Objective: "hello", RiskLevel: "low", MaxIterations: 1}
	if err := s.CreateRun(r); err != nil {
		t.Fatal(err)
	}
	if err := s.FinalizeRun("r1", RunNeedsInput, "need more info"); err != nil {
		t.Fatal(err)
	}

	ids, err := s.SupersedeNeedsInput("whatsapp", "u1", time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("SupersedeNeedsInput: %v", err)
	}
	if len(ids) != 1 || ids[0] != "r1" {
		t.Fatalf("expected r1 superseded, got %v", ids)
	}

	got, _ := s.GetRun("r1")
	if got.Status != RunRejected {
		t.Fatalf("expected rejected, got %v", got.Status)
	}

	events, err := s.ListEvents("r1")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range events {
		if e.Kind == "superseded_by_new_message" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a superseded_by_new_message event, got %v", events)
	}
}

func TestPendingMessageTTLRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := PendingMessage{MessageID: "m", Channel: "whatsapp", Sender: "t", SenderID: "123", ChatRef: "123@c.us", ReplyRef: "abc"}
	if err := s.RememberPending(p, time.Minute); err != nil {
		t.Fatalf("RememberPending: %v", err)
	}

	got, err := s.ReadPending("whatsapp", "m")
	if err != nil || got == nil {
		t.Fatalf("ReadPending: %v %v", got, err)
	}

	if err := s.ClearPending("m"); err != nil {
		t.Fatalf("ClearPending: %v", err)
	}
	got, err = s.ReadPending("whatsapp", "m")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil after clear, got %+v", got)
	}
}

func TestPendingMessageExpiredNotReturned(t *testing.T) {
	s := newTestStore(t)
	p := PendingMessage{MessageID: "m2", Channel: "whatsapp", Sender: "t", SenderID: "123"}
	if err := s.RememberPending(p, -time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadPending("whatsapp", "m2")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected expired row to be hidden, got %+v", got)
	}

	n, err := s.CleanupExpiredPending()
	if err != nil {
		t.Fatalf("CleanupExpiredPending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
	n, err = s.CleanupExpiredPending()
	if err != nil || n != 0 {
		t.Fatalf("expected cleanup to be idempotent, got n=%d err=%v", n, err)
	}
}

func TestUpsertMemoryConfidenceNeverDecreases(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertMemory("rec1", "u1", "preferences", "update_style", "concise bullets", 0.9, "r1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMemory("rec1", "u1", "preferences", "update_style", "concise bullets, rephrased", 0.4, "r2"); err != nil {
		t.Fatal(err)
	}

	rows, err := s.MemoryForUser("u1", "preferences")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row (upsert, not insert), got %d", len(rows))
	}
	if rows[0].Confidence != 0.9 {
		t.Fatalf("expected confidence to never decrease below 0.9, got %v", rows[0].Confidence)
	}
}
