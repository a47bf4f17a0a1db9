package harness

import (
	"context"
	"testing"

	"github.com/tinyagi/tinyagi/internal/gate"
	"github.com/tinyagi/tinyagi/internal/risk"
	"github.com/tinyagi/tinyagi/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(store.Config{Path: dir + "/state.db"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &Orchestrator{
		Store:     s,
		Gate:      gate.New(gate.AllowAll, nil),
		SkillsDir: dir + "/skills",
	}
}

func TestRunVerifiesOnFirstPass(t *testing.T) {
	o := newTestOrchestrator(t)

	req := Request{
		ConversationID: "conv1",
		MessageID:      "msg1",
		AgentID:        "default",
		Channel:        "cli",
		SenderID:       "user1",
		UserID:         "user1",
		Objective:      "what is the weather",
		Generate: func(ctx context.Context, objective, prior, feedback string) (string, error) {
			return "it is sunny today", nil
		},
		Verify: func(ctx context.Context, candidate string) (string, error) {
			return "PASS", nil
		},
	}

	out, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != store.RunVerified {
		t.Fatalf("expected verified status, got %v", out.Status)
	}
	if out.ResultText != "it is sunny today" {
		t.Fatalf("unexpected result text %q", out.ResultText)
	}

	events, err := o.Store.ListEvents(out.RunID)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	var sawVerified bool
	for _, e := range events {
		if e.Kind == "verified" {
			sawVerified = true
		}
	}
	if !sawVerified {
		t.Fatalf("expected a verified event, got %+v", events)
	}
}

func TestRunExhaustsToNeedsInput(t *testing.T) {
	o := newTestOrchestrator(t)

	req := Request{
		ConversationID: "conv2",
		MessageID:      "msg2",
		AgentID:        "default",
		Channel:        "cli",
		SenderID:       "user1",
		UserID:         "user1",
		Objective:      "do something low risk",
		Generate: func(ctx context.Context, objective, prior, feedback string) (string, error) {
			return "a candidate answer", nil
		},
		Verify: func(ctx context.Context, candidate string) (string, error) {
			return "CRITICAL_FAIL still wrong", nil
		},
		Revise: func(ctx context.Context, objective, prior, feedback string) (string, error) {
			return "a revised answer", nil
		},
	}

	out, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != store.RunNeedsInput {
		t.Fatalf("expected needs_input status, got %v", out.Status)
	}
}

func TestRunRoutesBrowserPastGate(t *testing.T) {
	o := newTestOrchestrator(t)
	var executed bool

	req := Request{
		ConversationID: "conv3",
		MessageID:      "msg3",
		AgentID:        "default",
		Channel:        "cli",
		SenderID:       "user1",
		UserID:         "user1",
		Objective:      "navigate to the dashboard and click login",
		Generate: func(ctx context.Context, objective, prior, feedback string) (string, error) {
			return "navigated and logged in", nil
		},
		Verify: func(ctx context.Context, candidate string) (string, error) {
			return "PASS", nil
		},
		Execute: func(ctx context.Context, runID string, route risk.Route, objective, candidate string) (string, error) {
			executed = true
			if route != risk.RouteBrowser {
				t.Fatalf("expected browser route, got %v", route)
			}
			return "done", nil
		},
	}

	out, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !executed {
		t.Fatal("expected route executor to run for a browser-routed objective")
	}
	if out.ResultText != "done" {
		t.Fatalf("expected executor's text to win, got %q", out.ResultText)
	}
}

func TestRunTranslatesKnownSubprocessError(t *testing.T) {
	o := newTestOrchestrator(t)

	req := Request{
		ConversationID: "conv4",
		MessageID:      "msg4",
		AgentID:        "default",
		Channel:        "cli",
		SenderID:       "user1",
		UserID:         "user1",
		Objective:      "anything",
		Generate: func(ctx context.Context, objective, prior, feedback string) (string, error) {
			return "", errLike("binary_missing: exec: \"agent\": executable file not found")
		},
		Verify: func(ctx context.Context, candidate string) (string, error) {
			return "PASS", nil
		},
	}

	out, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != store.RunFailed {
		t.Fatalf("expected failed status, got %v", out.Status)
	}
	if out.ResultText == "" {
		t.Fatal("expected a translated user-facing error message")
	}
}

type errLike string

func (e errLike) Error() string { return string(e) }
