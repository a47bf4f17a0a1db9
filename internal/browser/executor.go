package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of ExecuteSteps, per spec.md §4.I.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeNeedsApproval Outcome = "needs_approval"
	OutcomeNeedsInput    Outcome = "needs_input"
	OutcomeFailed        Outcome = "failed"
)

const (
	maxAttempts       = 3
	backoffBase       = 350 * time.Millisecond
	maxArtifactPaths  = 6
	maxExtractedLines = 5
)

var checkpointPatterns = regexp.MustCompile(`(?i)(captcha|two[- ]?factor|2fa|verify it.?s you|session[_-]?expired|session has expired|sign in to continue)`)

// Repository is the subset of *store.Store the executor needs.
type Repository interface {
	CreateBrowserTab(tabID, sessionID, runID string) error
	SetTabStatus(tabID, status string) error
	RecordBrowserAction(actionID, runID, tabID, kind, selector, value, risk string, requiresApproval bool, status string) error
	SetActionStatus(actionID, status string) error
	CreateBrowserApproval(requestID, runID, actionID string) error
	RecordBrowserAudit(runID, tabID, actionID, beforeShot, afterShot, selectorTrace string) error
}

// Result is the outcome of running a plan.
type Result struct {
	Outcome        Outcome
	Guidance       string
	ArtifactPaths  []string
	ExtractedLines []string
	ApprovalID     string
}

// Executor runs browser plans against a Driver, recording every action and
// audit row, per spec.md §4.I.
type Executor struct {
	repo     Repository
	driver   Driver
	auditDir string
	hardStop bool
}

// New builds an Executor. hardStopPayments mirrors
// harness.browser.hard_stop_payments from configuration.
func New(repo Repository, driver Driver, auditDir string, hardStopPayments bool) *Executor {
	return &Executor{repo: repo, driver: driver, auditDir: auditDir, hardStop: hardStopPayments}
}

// ExecuteSteps runs a plan for runID/tabID in order, stopping at the first
// payment-risk, checkpoint, or unresolvable failure.
func (e *Executor) ExecuteSteps(ctx context.Context, runID, tabID string, steps []Step) (Result, error) {
	var artifacts []string
	var extracted []string

	for _, step := range steps {
		actionID := "act_" + uuid.New().String()[:12]
		risk := "low"
		requiresApproval := false
		if e.hardStop && step.IsPaymentRelated() {
			risk, requiresApproval = "critical", true
		}

		if err := e.repo.RecordBrowserAction(actionID, runID, tabID, string(step.Kind), step.Selector, step.Value, risk, requiresApproval, "pending"); err != nil {
			return Result{}, fmt.Errorf("record action: %w", err)
		}

		if requiresApproval {
			approvalID := "req_" + uuid.New().String()[:12]
			if err := e.repo.CreateBrowserApproval(approvalID, runID, actionID); err != nil {
				return Result{}, fmt.Errorf("create approval: %w", err)
			}
			_ = e.writeAudit(runID, tabID, actionID, "", "", traceEntry{ActionID: actionID, Step: step, Status: "awaiting_approval"})
			_ = e.repo.SetActionStatus(actionID, "awaiting_approval")
			_ = e.repo.SetTabStatus(tabID, "error")
			return Result{Outcome: OutcomeNeedsApproval, ApprovalID: approvalID}, nil
		}

		outcome, text, beforePath, afterPath, stepErr := e.runWithRetry(ctx, runID, tabID, actionID, step)
		if beforePath != "" {
			artifacts = append(artifacts, beforePath)
		}
		if afterPath != "" {
			artifacts = append(artifacts, afterPath)
		}

		switch outcome {
		case "needs_input":
			_ = e.repo.SetActionStatus(actionID, "failed")
			_ = e.repo.SetTabStatus(tabID, "error")
			return Result{Outcome: OutcomeNeedsInput, Guidance: text, ArtifactPaths: capArtifacts(artifacts)}, nil
		case "failed":
			_ = e.repo.SetActionStatus(actionID, "failed")
			_ = e.repo.SetTabStatus(tabID, "error")
			return Result{Outcome: OutcomeFailed, Guidance: stepErr.Error(), ArtifactPaths: capArtifacts(artifacts)}, nil
		}

		_ = e.repo.SetActionStatus(actionID, "completed")
		if step.Kind == StepExtractText && text != "" {
			for _, line := range strings.Split(text, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					extracted = append(extracted, line)
				}
			}
		}
	}

	_ = e.repo.SetTabStatus(tabID, "released")
	return Result{
		Outcome:        OutcomeCompleted,
		ArtifactPaths:  capArtifacts(artifacts),
		ExtractedLines: capLines(extracted),
	}, nil
}

func capArtifacts(paths []string) []string {
	if len(paths) > maxArtifactPaths {
		return paths[:maxArtifactPaths]
	}
	return paths
}

func capLines(lines []string) []string {
	if len(lines) > maxExtractedLines {
		return lines[:maxExtractedLines]
	}
	return lines
}

// runWithRetry executes a single step with exponential backoff, screenshot
// before/after, and checkpoint detection, per spec.md §4.I.
func (e *Executor) runWithRetry(ctx context.Context, runID, tabID, actionID string, step Step) (outcome string, extractedText, beforePath, afterPath string, err error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		before, _ := e.driver.Screenshot(ctx)
		beforePath = e.saveShot(runID, tabID, actionID, attempt, "before", before)

		stepErr := e.dispatch(ctx, step)
		after, _ := e.driver.Screenshot(ctx)
		afterPath = e.saveShot(runID, tabID, actionID, attempt, "after", after)

		if stepErr == nil {
			if step.Kind == StepExtractText {
				extractedText, _ = e.driver.ExtractText(ctx, step.Selector)
			}
			url, _ := e.driver.CurrentURL(ctx)
			visible, _ := e.driver.VisibleText(ctx)
			if checkpointDetected(url, visible) {
				_ = e.writeAudit(runID, tabID, actionID, beforePath, afterPath, traceEntry{ActionID: actionID, Step: step, Status: "needs_input"})
				return "needs_input", "A checkpoint (login verification, CAPTCHA, or expired session) blocked this step; manual intervention is required.", beforePath, afterPath, nil
			}
			_ = e.writeAudit(runID, tabID, actionID, beforePath, afterPath, traceEntry{ActionID: actionID, Step: step, Status: "completed"})
			return "completed", extractedText, beforePath, afterPath, nil
		}

		err = stepErr
		if attempt < maxAttempts {
			time.Sleep(backoffBase * time.Duration(1<<(attempt-1)))
		}
	}
	_ = e.writeAudit(runID, tabID, actionID, beforePath, afterPath, traceEntry{ActionID: actionID, Step: step, Status: "failed"})
	return "failed", "", beforePath, afterPath, err
}

func (e *Executor) dispatch(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepNavigate:
		return e.driver.Navigate(ctx, step.URL)
	case StepClick:
		return e.driver.Click(ctx, step.Selector)
	case StepType:
		return e.driver.Type(ctx, step.Selector, step.Value)
	case StepFill:
		return e.driver.Fill(ctx, step.Selector, step.Value)
	case StepWaitFor:
		return e.driver.WaitFor(ctx, step.Selector)
	case StepPress:
		return e.driver.Press(ctx, step.Key)
	case StepScreenshot:
		_, err := e.driver.Screenshot(ctx)
		return err
	case StepExtractText:
		_, err := e.driver.ExtractText(ctx, step.Selector)
		return err
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func checkpointDetected(url, visibleText string) bool {
	return checkpointPatterns.MatchString(url) || checkpointPatterns.MatchString(visibleText)
}

func (e *Executor) saveShot(runID, tabID, actionID string, attempt int, phase string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	dir := filepath.Join(e.auditDir, runID, tabID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d-%s.png", actionID, attempt, phase))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ""
	}
	return path
}

type traceEntry struct {
	ActionID string
	Step     Step
	Status   string
}

func (e *Executor) writeAudit(runID, tabID, actionID, beforePath, afterPath string, entry traceEntry) error {
	traceJSON := "{}"
	if b, err := json.Marshal(entry); err == nil {
		traceJSON = string(b)
	}
	return e.repo.RecordBrowserAudit(runID, tabID, actionID, beforePath, afterPath, traceJSON)
}
