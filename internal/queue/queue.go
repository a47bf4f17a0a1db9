// Package queue implements the file-system message spooler described in
// spec.md §4.B: three directories under the state home (incoming,
// processing, outgoing), atomic same-filesystem renames for claiming work,
// and crash recovery of anything left in processing/ at startup.
package queue

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tinyagi/tinyagi/internal/envelope"
)

// Spooler owns the three queue directories.
type Spooler struct {
	Incoming   string
	Processing string
	Outgoing   string
	Files      string

	log *slog.Logger
}

// New constructs a Spooler rooted at the given directories. Callers
// typically pass paths.Home fields.
func New(incoming, processing, outgoing, files string, log *slog.Logger) *Spooler {
	if log == nil {
		log = slog.Default()
	}
	return &Spooler{
		Incoming:   incoming,
		Processing: processing,
		Outgoing:   outgoing,
		Files:      files,
		log:        log.With("component", "queue"),
	}
}

// RecoverCrashed moves every file left in processing/ back to incoming/,
// per spec.md §4.B's crash recovery rule. It returns the number of files
// recovered.
func (s *Spooler) RecoverCrashed() (int, error) {
	entries, err := os.ReadDir(s.Processing)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list processing dir: %w", err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		src := filepath.Join(s.Processing, e.Name())
		dst := filepath.Join(s.Incoming, e.Name())
		if err := os.Rename(src, dst); err != nil {
			s.log.Error("crash recovery rename failed", "file", e.Name(), "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Info("recovered files left in processing at startup", "count", n)
	}
	return n, nil
}

// IncomingFile pairs a file's path with its modification time, the ordering
// key spec.md §5 requires ("messages destined for the same agent execute in
// mtime order").
type IncomingFile struct {
	Path    string
	Name    string
	ModTime time.Time
}

// ListIncoming returns every *.json file in incoming/, sorted by mtime
// ascending.
func (s *Spooler) ListIncoming() ([]IncomingFile, error) {
	entries, err := os.ReadDir(s.Incoming)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list incoming dir: %w", err)
	}

	files := make([]IncomingFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, IncomingFile{
			Path:    filepath.Join(s.Incoming, e.Name()),
			Name:    e.Name(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	return files, nil
}

// Claim atomically moves a file from incoming/ to processing/, claiming it
// for exclusive handling. A failure leaves the file in incoming/ for retry
// on the next tick, per spec.md §4.N step 1.
func (s *Spooler) Claim(name string) (string, error) {
	src := filepath.Join(s.Incoming, name)
	dst := filepath.Join(s.Processing, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("claim %q: %w", name, err)
	}
	return dst, nil
}

// Release moves a claimed file back from processing/ to incoming/, used on
// handler exception per spec.md §4.N step 10.
func (s *Spooler) Release(name string) error {
	src := filepath.Join(s.Processing, name)
	dst := filepath.Join(s.Incoming, name)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("release %q: %w", name, err)
	}
	return nil
}

// Complete removes the claimed processing/ file once an outgoing envelope
// has been written for it.
func (s *Spooler) Complete(name string) error {
	path := filepath.Join(s.Processing, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("complete %q: %w", name, err)
	}
	return nil
}

// EnqueueIncoming writes env as a new incoming/ file using the internal
// handoff filename pattern, used for agent-to-agent re-enqueue.
func (s *Spooler) EnqueueIncoming(env *envelope.Envelope, nowMillis int64, rand string) (string, error) {
	name := envelope.InternalFilename(env.ConversationID, env.Agent, nowMillis, rand)
	path := filepath.Join(s.Incoming, name)
	if err := envelope.WriteFile(path, env); err != nil {
		return "", err
	}
	return name, nil
}

// EnqueueExternal writes env as a new incoming/ file using the
// adapter-prefixed filename, used by channel adapters.
func (s *Spooler) EnqueueExternal(env *envelope.Envelope) (string, error) {
	name := envelope.IncomingFilename(env.Channel, env.MessageID)
	path := filepath.Join(s.Incoming, name)
	if err := envelope.WriteFile(path, env); err != nil {
		return "", err
	}
	return name, nil
}

// EnqueueOutgoing writes env to outgoing/ using the channel/messageId/time
// naming rule (heartbeat gets the bare messageId filename).
func (s *Spooler) EnqueueOutgoing(env *envelope.Envelope, nowMillis int64) (string, error) {
	name := envelope.OutgoingFilename(env.Channel, env.MessageID, nowMillis)
	path := filepath.Join(s.Outgoing, name)
	if err := envelope.WriteFile(path, env); err != nil {
		return "", err
	}
	return name, nil
}

// Read parses the envelope at a claimed processing/ path.
func (s *Spooler) Read(name string) (*envelope.Envelope, error) {
	return envelope.ReadFile(filepath.Join(s.Processing, name))
}

// OutgoingFile pairs an outgoing queue file's path with its name, for
// channel adapters polling outgoing/ for messages to deliver externally.
type OutgoingFile struct {
	Path    string
	Name    string
	ModTime time.Time
}

// ListOutgoing returns every *.json file in outgoing/, sorted by mtime
// ascending, for a channel adapter's delivery loop to drain.
func (s *Spooler) ListOutgoing() ([]OutgoingFile, error) {
	entries, err := os.ReadDir(s.Outgoing)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list outgoing dir: %w", err)
	}

	files := make([]OutgoingFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, OutgoingFile{
			Path:    filepath.Join(s.Outgoing, e.Name()),
			Name:    e.Name(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	return files, nil
}

// ReadOutgoing parses the envelope at an outgoing/ path.
func (s *Spooler) ReadOutgoing(name string) (*envelope.Envelope, error) {
	return envelope.ReadFile(filepath.Join(s.Outgoing, name))
}

// CompleteOutgoing removes an outgoing/ file once a channel adapter has
// delivered it, or once the CLI has printed it to stdout.
func (s *Spooler) CompleteOutgoing(name string) error {
	path := filepath.Join(s.Outgoing, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("complete outgoing %q: %w", name, err)
	}
	return nil
}
