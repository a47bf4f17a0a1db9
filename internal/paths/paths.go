// Package paths resolves the process-wide state home and derives every other
// on-disk location (queue, logs, chats, events, harness db, memory, skills,
// settings) from it. Resolution happens once at startup; callers that need a
// different root for tests construct a Home directly instead of calling
// Resolve.
package paths

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// canonicalDirName is the current state-home directory name.
	canonicalDirName = ".tinyagi"
	// legacyDirName is the previous state-home directory name, migrated
	// automatically the first time Resolve runs against it.
	legacyDirName = ".tinyclaw"
)

// Home is every path derived from the state home.
type Home struct {
	Root string

	QueueIncoming   string
	QueueProcessing string
	QueueOutgoing   string
	Logs            string
	Chats           string
	Events          string
	Files           string
	HarnessDir      string
	HarnessDB       string
	ProactiveDeferred string
	BrowserAuditDir string
	ProfileMirrorDir string
	MemoryRawDir    string
	MemoryDailyDir  string
	SkillsDir       string
	SettingsFile    string
	PairingFile     string
}

// NewHome builds a Home rooted at root, creating every directory it names.
// Callers that need isolation (tests) should pass t.TempDir().
func NewHome(root string) (*Home, error) {
	h := &Home{
		Root:              root,
		QueueIncoming:     filepath.Join(root, "queue", "incoming"),
		QueueProcessing:   filepath.Join(root, "queue", "processing"),
		QueueOutgoing:     filepath.Join(root, "queue", "outgoing"),
		Logs:              filepath.Join(root, "logs"),
		Chats:             filepath.Join(root, "chats"),
		Events:            filepath.Join(root, "events"),
		Files:             filepath.Join(root, "files"),
		HarnessDir:        filepath.Join(root, "harness"),
		HarnessDB:         filepath.Join(root, "harness", "state.db"),
		ProactiveDeferred: filepath.Join(root, "harness", "proactive-deferred.jsonl"),
		BrowserAuditDir:   filepath.Join(root, "harness", "browser-audit"),
		ProfileMirrorDir:  filepath.Join(root, "harness", "browser-profile-mirror"),
		MemoryRawDir:      filepath.Join(root, "memory", "raw"),
		MemoryDailyDir:    filepath.Join(root, "memory", "daily"),
		SkillsDir:         filepath.Join(root, "skills"),
		SettingsFile:      filepath.Join(root, "settings.json"),
		PairingFile:       filepath.Join(root, "pairing.json"),
	}

	dirs := []string{
		h.QueueIncoming, h.QueueProcessing, h.QueueOutgoing,
		h.Logs, h.Chats, h.Events, h.Files, h.HarnessDir,
		h.BrowserAuditDir, h.ProfileMirrorDir, h.MemoryRawDir, h.MemoryDailyDir,
		h.SkillsDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir %q: %w", d, err)
		}
	}
	return h, nil
}

// Resolve determines the canonical state home following the rules in
// spec.md §6: a repo-local dot-directory next to the binary wins; otherwise
// the user's home directory is used, with a one-time migration from the
// legacy ~/.tinyclaw directory.
func Resolve() (*Home, error) {
	if local, ok := repoLocalOverride(); ok {
		return NewHome(local)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	canonical := filepath.Join(home, canonicalDirName)
	legacy := filepath.Join(home, legacyDirName)

	if err := migrateLegacy(legacy, canonical); err != nil {
		return nil, err
	}

	return NewHome(canonical)
}

// repoLocalOverride looks for .tinyagi or .tinyclaw next to the running
// binary and returns it if present.
func repoLocalOverride() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	dir := filepath.Dir(exe)
	for _, name := range []string{canonicalDirName, legacyDirName} {
		candidate := filepath.Join(dir, name)
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// migrateLegacy copies legacy into canonical (full copy, parity check by file
// count >= source), then replaces legacy with a symlink to canonical when the
// platform supports symlinks. A no-op when legacy does not exist or canonical
// already exists.
func migrateLegacy(legacy, canonical string) error {
	if _, err := os.Stat(canonical); err == nil {
		return nil // already migrated or created fresh.
	}
	legacyInfo, err := os.Stat(legacy)
	if err != nil || !legacyInfo.IsDir() {
		return nil // nothing to migrate.
	}

	srcCount, err := countFiles(legacy)
	if err != nil {
		return fmt.Errorf("count legacy files: %w", err)
	}

	if err := copyTree(legacy, canonical); err != nil {
		return fmt.Errorf("copy legacy state home: %w", err)
	}

	dstCount, err := countFiles(canonical)
	if err != nil {
		return fmt.Errorf("count migrated files: %w", err)
	}
	if dstCount < srcCount {
		return fmt.Errorf("legacy migration incomplete: copied %d of %d files", dstCount, srcCount)
	}

	backup := legacy + ".migrated"
	if err := os.Rename(legacy, backup); err != nil {
		return fmt.Errorf("move legacy aside: %w", err)
	}
	if err := os.Symlink(canonical, legacy); err != nil {
		// Symlinks unsupported (e.g. some Windows configurations); the
		// backup copy is retained and canonical is already authoritative.
		return nil
	}
	return nil
}

func countFiles(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	return n, err
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
