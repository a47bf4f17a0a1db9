// Package skills implements versioned skill drafting: a Markdown skill
// file plus a metadata block, with auto-draft trigger heuristics from
// spec.md §4.K.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinyagi/tinyagi/internal/risk"
	"github.com/tinyagi/tinyagi/internal/store"
)

var triggerPhrases = regexp.MustCompile(`(?i)\b(always|every time|automate|repeat this|workflow|template)\b`)

var routeKeywords = map[risk.Route]*regexp.Regexp{
	risk.RouteTooling: regexp.MustCompile(`(?i)\b(install|configure)\b`),
	risk.RouteBrowser: regexp.MustCompile(`(?i)\b(login|submit|portal|dashboard)\b`),
}

// ShouldAutoDraft reports whether a verified run's objective should trigger
// a skill auto-draft, per spec.md §4.K.
func ShouldAutoDraft(objective string, route risk.Route, verified bool) bool {
	if !verified {
		return false
	}
	if triggerPhrases.MatchString(objective) {
		return true
	}
	if re, ok := routeKeywords[route]; ok && re.MatchString(objective) {
		return true
	}
	return false
}

var nonSlug = regexp.MustCompile(`[^a-z0-9-]+`)

// NormalizeName turns free-form objective text into a stable slug used for
// dedup-by-normalized-name, per spec.md §4.K.
func NormalizeName(objective string) string {
	words := strings.Fields(strings.ToLower(objective))
	if len(words) > 8 {
		words = words[:8]
	}
	slug := nonSlug.ReplaceAllString(strings.Join(words, "-"), "-")
	return strings.Trim(slug, "-")
}

// Registrar abstracts the repository lookups/writes the draft flow needs.
type Registrar interface {
	SkillByNormalizedName(name string) (*store.SkillRow, error)
	CreateSkillDraft(skillID, name, contentPath string) error
	AddSkillVersion(skillID, contentPath string) (int, error)
}

// DraftResult is the outcome of AutoDraft.
type DraftResult struct {
	Created bool
	SkillID string
}

// AutoDraft writes a Markdown skill file for objective under skillsDir and
// registers it, deduping by normalized name: a second draft of the same
// workflow becomes a new version of the existing skill rather than a new
// skill row.
func AutoDraft(reg Registrar, skillsDir, userID, runID, objective string) (DraftResult, error) {
	name := NormalizeName(objective)
	if name == "" {
		return DraftResult{}, fmt.Errorf("objective normalizes to an empty skill name")
	}

	existing, err := reg.SkillByNormalizedName(name)
	if err != nil {
		return DraftResult{}, fmt.Errorf("lookup existing skill: %w", err)
	}

	if existing != nil {
		path, err := writeSkillFile(skillsDir, existing.SkillID, name, objective, existing.CurrentVersion+1)
		if err != nil {
			return DraftResult{}, err
		}
		if _, err := reg.AddSkillVersion(existing.SkillID, path); err != nil {
			return DraftResult{}, fmt.Errorf("add skill version: %w", err)
		}
		return DraftResult{Created: false, SkillID: existing.SkillID}, nil
	}

	skillID := "skill_" + uuid.New().String()[:8]
	path, err := writeSkillFile(skillsDir, skillID, name, objective, 1)
	if err != nil {
		return DraftResult{}, err
	}
	if err := reg.CreateSkillDraft(skillID, name, path); err != nil {
		return DraftResult{}, fmt.Errorf("create skill draft: %w", err)
	}
	return DraftResult{Created: true, SkillID: skillID}, nil
}

func writeSkillFile(skillsDir, skillID, name, objective string, version int) (string, error) {
	dir := filepath.Join(skillsDir, skillID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create skill dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("SKILL.v%d.md", version))

	content := fmt.Sprintf(`---
skillId: %s
name: %s
version: %d
createdAt: %s
---

# %s

Auto-drafted from a verified run with a repeated-workflow signal.

## Objective

%s
`, skillID, name, version, time.Now().UTC().Format(time.RFC3339), name, objective)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write skill file: %w", err)
	}
	return path, nil
}
