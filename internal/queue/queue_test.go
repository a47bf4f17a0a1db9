package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyagi/tinyagi/internal/envelope"
)

func newTestSpooler(t *testing.T) *Spooler {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"incoming", "processing", "outgoing", "files"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return New(
		filepath.Join(root, "incoming"),
		filepath.Join(root, "processing"),
		filepath.Join(root, "outgoing"),
		filepath.Join(root, "files"),
		nil,
	)
}

func TestRecoverCrashedMovesFilesBack(t *testing.T) {
	s := newTestSpooler(t)
	if err := os.WriteFile(filepath.Join(s.Processing, "a.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := s.RecoverCrashed()
	if err != nil {
		t.Fatalf("RecoverCrashed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered file, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(s.Incoming, "a.json")); err != nil {
		t.Fatalf("expected file back in incoming: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Processing, "a.json")); !os.IsNotExist(err) {
		t.Fatalf("expected file gone from processing")
	}
}

func TestClaimAndCompleteRoundTrip(t *testing.T) {
	s := newTestSpooler(t)
	env := &envelope.Envelope{Channel: "whatsapp", Sender: "t", Message: "hello", Timestamp: 1, MessageID: "x"}
	name, err := s.EnqueueExternal(env)
	if err != nil {
		t.Fatalf("EnqueueExternal: %v", err)
	}

	files, err := s.ListIncoming()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != name {
		t.Fatalf("expected one incoming file named %q, got %v", name, files)
	}

	path, err := s.Claim(name)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected claimed file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Incoming, name)); !os.IsNotExist(err) {
		t.Fatalf("expected file gone from incoming after claim")
	}

	got, err := s.Read(name)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Message != "hello" {
		t.Fatalf("expected message 'hello', got %q", got.Message)
	}

	if err := s.Complete(name); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected claimed file removed after Complete")
	}
}

func TestReleasePutsFileBackInIncoming(t *testing.T) {
	s := newTestSpooler(t)
	env := &envelope.Envelope{Channel: "whatsapp", Sender: "t", Message: "hi", Timestamp: 1, MessageID: "y"}
	name, err := s.EnqueueExternal(env)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(name); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(name); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Incoming, name)); err != nil {
		t.Fatalf("expected file restored to incoming: %v", err)
	}
}

func TestListOutgoingReadAndComplete(t *testing.T) {
	s := newTestSpooler(t)
	env := &envelope.Envelope{Channel: "discord", SenderID: "chan1", Message: "hello", MessageID: "z"}
	name, err := s.EnqueueOutgoing(env, 1000)
	if err != nil {
		t.Fatal(err)
	}

	files, err := s.ListOutgoing()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != name {
		t.Fatalf("expected one outgoing file named %q, got %v", name, files)
	}

	got, err := s.ReadOutgoing(name)
	if err != nil {
		t.Fatalf("ReadOutgoing: %v", err)
	}
	if got.Message != "hello" {
		t.Fatalf("expected message 'hello', got %q", got.Message)
	}

	if err := s.CompleteOutgoing(name); err != nil {
		t.Fatalf("CompleteOutgoing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Outgoing, name)); !os.IsNotExist(err) {
		t.Fatalf("expected outgoing file removed after CompleteOutgoing")
	}
}

func TestEnqueueOutgoingHeartbeatUsesBareFilename(t *testing.T) {
	s := newTestSpooler(t)
	env := &envelope.Envelope{Channel: "heartbeat", Sender: "system", Message: "ok", Timestamp: 1, MessageID: "hb1"}
	name, err := s.EnqueueOutgoing(env, 1234)
	if err != nil {
		t.Fatal(err)
	}
	if name != "hb1.json" {
		t.Fatalf("expected bare heartbeat filename, got %q", name)
	}
}
