package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "settings.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Harness.Autonomy != "normal" {
		t.Fatalf("expected default autonomy 'normal', got %q", cfg.Harness.Autonomy)
	}
	if !cfg.Harness.Enabled {
		t.Fatalf("expected harness enabled by default")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	cfg := Default()
	cfg.Harness.Autonomy = "strict"
	cfg.Harness.Browser.Enabled = true
	cfg.Harness.Browser.Provider = "broker"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Harness.Autonomy != "strict" {
		t.Fatalf("expected autonomy 'strict', got %q", loaded.Harness.Autonomy)
	}
	if !loaded.Harness.Browser.Enabled || loaded.Harness.Browser.Provider != "broker" {
		t.Fatalf("expected browser config to round-trip, got %+v", loaded.Harness.Browser)
	}
}

func TestSaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "settings.json" {
		t.Fatalf("expected only settings.json in dir, got %v", entries)
	}
}
