package skills

import (
	"os"
	"testing"

	"github.com/tinyagi/tinyagi/internal/risk"
	"github.com/tinyagi/tinyagi/internal/store"
)

func TestShouldAutoDraftTriggerPhrase(t *testing.T) {
	if !ShouldAutoDraft("Always do this workflow: run npm test and summarize failures.", risk.RouteTooling, true) {
		t.Fatal("expected trigger phrase to fire auto-draft")
	}
}

func TestShouldAutoDraftRequiresVerified(t *testing.T) {
	if ShouldAutoDraft("Always do this workflow", risk.RouteTooling, false) {
		t.Fatal("expected unverified run to never auto-draft")
	}
}

func TestShouldAutoDraftRouteSpecificKeyword(t *testing.T) {
	if !ShouldAutoDraft("log in to the portal and submit the form", risk.RouteBrowser, true) {
		t.Fatal("expected browser route keyword to trigger auto-draft")
	}
}

func TestShouldAutoDraftNoSignal(t *testing.T) {
	if ShouldAutoDraft("what's the capital of France", risk.RouteAgent, true) {
		t.Fatal("expected no auto-draft without a trigger signal")
	}
}

func TestNormalizeNameIsStableSlug(t *testing.T) {
	a := NormalizeName("Always do this workflow: run npm test and summarize failures")
	b := NormalizeName("Always do this workflow: run npm test and summarize failures")
	if a != b || a == "" {
		t.Fatalf("expected stable non-empty slug, got %q vs %q", a, b)
	}
}

func TestAutoDraftCreatesNewSkill(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(store.Config{Path: dir + "/state.db"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	res, err := AutoDraft(s, dir, "u1", "r1", "Always do this workflow <nonce>: run npm test and summarize failures.")
	if err != nil {
		t.Fatalf("AutoDraft: %v", err)
	}
	if !res.Created || res.SkillID == "" {
		t.Fatalf("expected a newly created skill, got %+v", res)
	}
}

func TestAutoDraftSecondVersionPreservesRollbackContent(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(store.Config{Path: dir + "/state.db"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	objective := "Always do this workflow <rollback-nonce>: run npm test and summarize failures."
	first, err := AutoDraft(s, dir, "u1", "r1", objective)
	if err != nil {
		t.Fatalf("AutoDraft v1: %v", err)
	}

	v1Path, err := s.SkillVersionPath(first.SkillID, 1)
	if err != nil {
		t.Fatalf("SkillVersionPath v1: %v", err)
	}
	v1Content, err := os.ReadFile(v1Path)
	if err != nil {
		t.Fatalf("read v1 file: %v", err)
	}

	second, err := AutoDraft(s, dir, "u1", "r1", objective)
	if err != nil {
		t.Fatalf("AutoDraft v2: %v", err)
	}
	if second.Created || second.SkillID != first.SkillID {
		t.Fatalf("expected second draft to version the existing skill, got %+v", second)
	}

	if _, err := os.ReadFile(v1Path); err != nil {
		t.Fatalf("expected v1 file to survive a second draft, read failed: %v", err)
	}

	if err := s.RollbackSkill(first.SkillID, 1); err != nil {
		t.Fatalf("RollbackSkill: %v", err)
	}
	sk, err := s.GetSkill(first.SkillID)
	if err != nil {
		t.Fatalf("GetSkill: %v", err)
	}
	if sk.ContentPath != v1Path {
		t.Fatalf("expected rollback to repoint content_path at %q, got %q", v1Path, sk.ContentPath)
	}
	rolledBack, err := os.ReadFile(sk.ContentPath)
	if err != nil {
		t.Fatalf("read rolled-back file: %v", err)
	}
	if string(rolledBack) != string(v1Content) {
		t.Fatalf("expected rollback to serve v1's original content, got a different file")
	}
}
