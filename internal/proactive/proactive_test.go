package proactive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/envelope"
	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/store"
)

func TestInQuietHoursWrapsPastMidnight(t *testing.T) {
	hours := config.QuietHours{Start: "22:00", End: "07:00"}

	at := func(hh, mm int) time.Time {
		return time.Date(2026, 1, 1, hh, mm, 0, 0, time.UTC)
	}

	if !InQuietHours(hours, at(23, 0)) {
		t.Fatal("expected 23:00 to be inside the wrap-around window")
	}
	if !InQuietHours(hours, at(6, 59)) {
		t.Fatal("expected 06:59 to be inside the wrap-around window")
	}
	if InQuietHours(hours, at(7, 0)) {
		t.Fatal("expected 07:00 to be outside the window (exclusive end)")
	}
	if InQuietHours(hours, at(12, 0)) {
		t.Fatal("expected noon to be outside the window")
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(store.Config{Path: filepath.Join(dir, "state.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	q := queue.New(
		filepath.Join(dir, "incoming"), filepath.Join(dir, "processing"),
		filepath.Join(dir, "outgoing"), filepath.Join(dir, "files"), nil)

	sched := New(s, q, config.QuietHours{Start: "22:00", End: "07:00"}, "08:00",
		filepath.Join(dir, "memory", "raw"), filepath.Join(dir, "memory", "daily"),
		filepath.Join(dir, "deferred.jsonl"), nil)
	return sched, s
}

func TestEnqueueDefersDuringQuietHoursAndFlushesAfter(t *testing.T) {
	sched, _ := newTestScheduler(t)

	quiet := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	env := &envelope.Envelope{Channel: "cli", SenderID: "u1", Message: "hello", MessageID: "m1"}
	if err := sched.Enqueue(env, quiet, false); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	files, err := listDir(sched.Queue.Outgoing)
	if err != nil {
		t.Fatalf("listDir: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected nothing in outgoing during quiet hours, got %v", files)
	}

	awake := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	if err := sched.FlushDeferred(awake); err != nil {
		t.Fatalf("FlushDeferred: %v", err)
	}

	files, err = listDir(sched.Queue.Outgoing)
	if err != nil {
		t.Fatalf("listDir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one flushed outgoing message, got %v", files)
	}
}

func TestEnqueueUrgentBypassesQuietHours(t *testing.T) {
	sched, _ := newTestScheduler(t)

	quiet := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	env := &envelope.Envelope{Channel: "cli", SenderID: "u1", Message: "ack", MessageID: "m2"}
	if err := sched.Enqueue(env, quiet, true); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	files, err := listDir(sched.Queue.Outgoing)
	if err != nil {
		t.Fatalf("listDir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected urgent message to bypass quiet hours, got %v", files)
	}
}

func TestRunBlockedOutreachSkipsTooRecentRuns(t *testing.T) {
	sched, s := newTestScheduler(t)

	run := &store.Run{
		RunID: "run1", Channel: "cli", Sender: "u1", SenderID: "u1",
		Objective: "book a flight", RiskLevel: "low", AssignedAgent: "default", MaxIterations: 1,
	}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.FinalizeRun(run.RunID, store.RunNeedsInput, "need more info"); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}

	// Immediately after creation the run is younger than blockedMinAge, so
	// no outreach should fire yet.
	if err := sched.RunBlockedOutreach(time.Now().UTC()); err != nil {
		t.Fatalf("RunBlockedOutreach: %v", err)
	}
	hist, err := s.OutreachHistoryForRun(run.RunID)
	if err != nil {
		t.Fatalf("OutreachHistoryForRun: %v", err)
	}
	if hist.Count != 0 {
		t.Fatalf("expected no outreach yet for a freshly blocked run, got count=%d", hist.Count)
	}
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
