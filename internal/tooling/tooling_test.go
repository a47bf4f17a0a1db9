package tooling

import (
	"context"
	"testing"
)

func TestExtractCommandFindsAllowlistedLine(t *testing.T) {
	out := "Here's what I'll run:\n- npm --version\nThat should work."
	cmd, ok := ExtractCommand(out)
	if !ok || cmd != "npm --version" {
		t.Fatalf("expected 'npm --version', got %q ok=%v", cmd, ok)
	}
}

func TestSanitizeRejectsShellMetacharacters(t *testing.T) {
	_, err := Sanitize("npm install; rm -rf /")
	if err == nil {
		t.Fatalf("expected error for shell metacharacters")
	}
}

func TestSanitizeRejectsSudo(t *testing.T) {
	_, err := Sanitize("sudo npm install")
	if err == nil {
		t.Fatalf("expected error for sudo")
	}
}

func TestSanitizeRejectsNonAllowlistedTool(t *testing.T) {
	_, err := Sanitize("curl http://example.com")
	if err == nil {
		t.Fatalf("expected error for non-allowlisted tool")
	}
}

func TestSanitizeTokenizesQuoted(t *testing.T) {
	argv, err := Sanitize(`git commit -m "hello world"`)
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	want := []string{"git", "commit", "-m", "hello world"}
	if len(argv) != len(want) {
		t.Fatalf("expected %v, got %v", want, argv)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, argv)
		}
	}
}

type fakePerm struct {
	has     bool
	granted map[string]bool
}

func (f *fakePerm) HasActivePermission(userID, tool, action string) (bool, error) {
	if f.granted != nil && f.granted[userID+"|"+tool] {
		return true, nil
	}
	return f.has, nil
}
func (f *fakePerm) CreatePendingPermission(userID, tool, action string) (string, error) {
	return "perm_fixed", nil
}

type fakeTools struct{}

func (fakeTools) RegisterToolIfNew(name, source, trustClass string) error { return nil }

type fakeEvents struct{ kinds []string }

func (f *fakeEvents) RecordToolEvent(kind, userID, tool, command string) { f.kinds = append(f.kinds, kind) }
func (f *fakeEvents) IncrementMetric(name string, delta float64)        {}

func TestExecuteNeedsApprovalWithoutPermission(t *testing.T) {
	perm := &fakePerm{has: false}
	events := &fakeEvents{}
	ex := New(perm, fakeTools{}, events, nil)

	res, err := ex.Execute(context.Background(), "u", "check npm version", "npm --version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusNeedsApproval || res.RequestID != "perm_fixed" {
		t.Fatalf("expected needs_approval with requestId, got %+v", res)
	}
}

func TestExecuteRunsCommandWhenPermitted(t *testing.T) {
	perm := &fakePerm{has: true}
	events := &fakeEvents{}
	ex := New(perm, fakeTools{}, events, nil)

	res, err := ex.Execute(context.Background(), "u", "check npm version", "npm --version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %+v", res)
	}
	if res.Command != "npm --version" {
		t.Fatalf("expected command 'npm --version', got %q", res.Command)
	}
}
