package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewHomeCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	home, err := NewHome(root)
	if err != nil {
		t.Fatalf("NewHome: %v", err)
	}

	for _, dir := range []string{home.QueueIncoming, home.QueueProcessing, home.QueueOutgoing, home.HarnessDir, home.SkillsDir} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			t.Fatalf("expected dir %q to exist: %v", dir, err)
		}
	}
}

func TestMigrateLegacyCopiesFilesAndSymlinks(t *testing.T) {
	base := t.TempDir()
	legacy := filepath.Join(base, legacyDirName)
	canonical := filepath.Join(base, canonicalDirName)

	if err := os.MkdirAll(filepath.Join(legacy, "queue", "incoming"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(legacy, "queue", "incoming", "a.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := migrateLegacy(legacy, canonical); err != nil {
		t.Fatalf("migrateLegacy: %v", err)
	}

	if _, err := os.Stat(filepath.Join(canonical, "queue", "incoming", "a.json")); err != nil {
		t.Fatalf("expected migrated file: %v", err)
	}

	st, err := os.Lstat(legacy)
	if err != nil {
		t.Fatalf("expected legacy path to still resolve: %v", err)
	}
	if st.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected legacy to become a symlink after migration")
	}
}

func TestMigrateLegacyNoopWhenCanonicalExists(t *testing.T) {
	base := t.TempDir()
	legacy := filepath.Join(base, legacyDirName)
	canonical := filepath.Join(base, canonicalDirName)

	if err := os.MkdirAll(legacy, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(canonical, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := migrateLegacy(legacy, canonical); err != nil {
		t.Fatalf("migrateLegacy: %v", err)
	}

	if st, err := os.Lstat(legacy); err != nil || st.Mode()&os.ModeSymlink != 0 {
		t.Fatalf("legacy dir should be untouched when canonical already exists")
	}
}
