package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/envelope"
	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/store"
)

func TestClassifyIntentPrefersQuestion(t *testing.T) {
	if got := ClassifyIntent("What time is it?"); got != IntentQuestion {
		t.Fatalf("expected question, got %v", got)
	}
	if got := ClassifyIntent("please navigate to the login page"); got != IntentBrowser {
		t.Fatalf("expected browser_task, got %v", got)
	}
	if got := ClassifyIntent("npm install is failing with a stack trace"); got != IntentEngineer {
		t.Fatalf("expected engineering_task, got %v", got)
	}
	if got := ClassifyIntent("remind me to water the plants"); got != IntentGeneral {
		t.Fatalf("expected general_task, got %v", got)
	}
}

func TestAggregateBranchesSingleIsRaw(t *testing.T) {
	got := aggregateBranches([]branchResponse{{AgentID: "alpha", Text: "all done"}})
	if got != "all done" {
		t.Fatalf("expected raw text for single branch, got %q", got)
	}
}

func TestAggregateBranchesMultipleJoinsWithSeparator(t *testing.T) {
	got := aggregateBranches([]branchResponse{
		{AgentID: "alpha", Text: "first"},
		{AgentID: "beta", Text: "second"},
	})
	want := "@alpha: first\n------\n@beta: second"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func newTestProcessor(t *testing.T) (*Processor, string) {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"incoming", "processing", "outgoing", "files"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("MkdirAll %s: %v", sub, err)
		}
	}
	q := queue.New(
		filepath.Join(dir, "incoming"), filepath.Join(dir, "processing"),
		filepath.Join(dir, "outgoing"), filepath.Join(dir, "files"), nil)
	s, err := store.Open(store.Config{Path: filepath.Join(dir, "state.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	dirCfg := config.NewDirectory(config.AgentsConfig{IDs: []string{"default"}})
	p := New(q, s, nil, dirCfg, []string{"default"}, nil, "", false, nil)
	p.Agent = func(ctx context.Context, agentID, objective, prior, feedback string) (string, error) {
		return "Done! handled: " + objective, nil
	}
	return p, dir
}

func TestTickProcessesNonTeamMessageToOutgoing(t *testing.T) {
	p, dir := newTestProcessor(t)

	env := &envelope.Envelope{
		Channel: "cli", Sender: "u1", SenderID: "u1", Message: "please do a thing",
		MessageID: "m1",
	}
	if _, err := p.Queue.EnqueueExternal(env); err != nil {
		t.Fatalf("EnqueueExternal: %v", err)
	}

	waitForChains(p)
	p.Tick(context.Background())
	waitForChains(p)

	entries, err := os.ReadDir(filepath.Join(dir, "outgoing"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one outgoing file, got %d", len(entries))
	}

	processing, err := os.ReadDir(filepath.Join(dir, "processing"))
	if err != nil {
		t.Fatalf("ReadDir processing: %v", err)
	}
	if len(processing) != 0 {
		t.Fatalf("expected processing dir empty after completion, got %d entries", len(processing))
	}
}

// waitForChains polls briefly until every known chain has drained, avoiding
// a fixed sleep in a test that races a background goroutine.
func waitForChains(p *Processor) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		idle := true
		for _, c := range p.chains {
			c.mu.Lock()
			if c.running {
				idle = false
			}
			c.mu.Unlock()
		}
		empty := len(p.queuedFiles) == 0
		p.mu.Unlock()
		if idle && empty {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
