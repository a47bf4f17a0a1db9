package agentrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFakeBinary(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestEnsureWorkspaceWritesTeammateContext(t *testing.T) {
	base := t.TempDir()
	dir, err := EnsureWorkspace(base, "agent-a", "# Teammates\n- agent-b\n")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "TEAMMATES.md"))
	if err != nil {
		t.Fatalf("read teammate file: %v", err)
	}
	if string(data) != "# Teammates\n- agent-b\n" {
		t.Fatalf("unexpected teammate content: %q", data)
	}
}

func TestInvokeOneShotFamilyReturnsStdout(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "fake-runner", `echo "hello from model"`)

	cfg := Config{
		Provider: Provider{
			Family: FamilyOneShot,
			Binary: bin,
			Model:  "model-a",
		},
		WorkspaceDir: dir,
		Message:      "hi",
		Timeout:      5 * time.Second,
	}

	res, err := Invoke(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Text != "hello from model" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestInvokeOneShotModelUnavailableFallsBack(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "fake-runner", `
if [ "$2" = "bad-model" ]; then
  echo "error: invalid model" >&2
  exit 1
fi
echo "fallback response"
`)

	cfg := Config{
		Provider: Provider{
			Family:        FamilyOneShot,
			Binary:        bin,
			Model:         "bad-model",
			FallbackModel: "good-model",
		},
		WorkspaceDir: dir,
		Message:      "hi",
		Timeout:      5 * time.Second,
	}

	res, err := Invoke(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Text != "fallback response" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestInvokeFramedFamilyUsesLastAgentMessage(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "fake-runner", `
echo '{"type":"agent_message","text":"first"}'
echo '{"type":"agent_message","text":"final answer"}'
`)

	cfg := Config{
		Provider: Provider{
			Family: FamilyFramed,
			Binary: bin,
			Model:  "model-b",
		},
		WorkspaceDir: dir,
		Timeout:      5 * time.Second,
	}

	res, err := Invoke(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Text != "final answer" {
		t.Fatalf("expected last agent_message to win, got %q", res.Text)
	}
}

func TestInvokeFramedFamilyFailsOnErrorFrame(t *testing.T) {
	dir := t.TempDir()
	bin := writeFakeBinary(t, dir, "fake-runner", `
echo '{"type":"agent_message","text":"partial"}'
echo '{"type":"error","error":"tool crashed"}'
`)

	cfg := Config{
		Provider: Provider{
			Family: FamilyFramed,
			Binary: bin,
			Model:  "model-b",
		},
		WorkspaceDir: dir,
		Timeout:      5 * time.Second,
	}

	_, err := Invoke(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected final error frame to fail the call")
	}
}

func TestInvokeBinaryMissingReturnsStructuredError(t *testing.T) {
	cfg := Config{
		Provider: Provider{
			Family: FamilyOneShot,
			Binary: "definitely-not-a-real-binary-xyz",
			Model:  "model-a",
		},
		WorkspaceDir: t.TempDir(),
		Timeout:      5 * time.Second,
	}

	_, err := Invoke(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	ie, ok := err.(*InvokeError)
	if !ok {
		t.Fatalf("expected *InvokeError, got %T", err)
	}
	if ie.Kind != ErrBinaryMissing {
		t.Fatalf("expected ErrBinaryMissing, got %v", ie.Kind)
	}
}
