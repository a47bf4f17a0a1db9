// Package harness is the Harness Orchestrator from spec.md §4.L: it wires
// risk classification, routing, the generator/verifier/reviser loop, the
// publish gate, memory ingest, and route-specific execution into a single
// per-run pipeline behind one exported Run entrypoint.
package harness

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/tinyagi/tinyagi/internal/gate"
	"github.com/tinyagi/tinyagi/internal/loop"
	"github.com/tinyagi/tinyagi/internal/memory"
	"github.com/tinyagi/tinyagi/internal/risk"
	"github.com/tinyagi/tinyagi/internal/skills"
	"github.com/tinyagi/tinyagi/internal/store"
)

// AgentCaller invokes an agent to generate or revise a candidate answer.
// verifierFeedback is empty for the initial generate call.
type AgentCaller func(ctx context.Context, objective, priorOutput, verifierFeedback string) (string, error)

// VerifierCaller invokes the verifying agent/model on a candidate and
// returns its raw (possibly informally-formatted) judgement text.
type VerifierCaller func(ctx context.Context, candidate string) (string, error)

// RouteExecutor dispatches a verified output to its route-specific
// executor (tooling, browser, memory). Returning ("", nil) means the route
// has no side effect to report back to the user beyond the candidate text.
type RouteExecutor func(ctx context.Context, runID string, route risk.Route, objective, candidate string) (string, error)

// Request is everything the orchestrator needs for one run.
type Request struct {
	ConversationID string
	MessageID      string
	AgentID        string
	FromAgent      string
	Channel        string
	Sender         string
	SenderID       string
	TaskID         string
	Objective      string
	UserID         string

	Generate AgentCaller
	Revise   AgentCaller
	Verify   VerifierCaller
	Execute  RouteExecutor
}

// Outcome is the result handed back to the queue processor.
type Outcome struct {
	RunID      string
	Status     store.RunStatus
	ResultText string
}

// Orchestrator ties the repository, gate, and skills registrar into one
// Run entrypoint.
type Orchestrator struct {
	Store           *store.Store
	Gate            *gate.Gate
	SkillsDir       string
	MemoryRawDir    string
	UseClaudeChrome string
}

// knownSubprocessErrors maps substrings of low-level subprocess failures to
// a user-facing translation, per spec.md §4.L's "user-facing translation
// of known subprocess errors".
var knownSubprocessErrors = []struct {
	substr      string
	translation string
}{
	{"binary_missing", "The configured agent runner isn't installed or isn't on PATH."},
	{"model_unavailable", "The configured model is unavailable right now; try again shortly."},
	{"no_prior_session", "There's no earlier session to resume; starting fresh next time should work."},
	{"context deadline exceeded", "The agent took too long to respond and the request was cancelled."},
}

func translateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, k := range knownSubprocessErrors {
		if strings.Contains(msg, k.substr) {
			return k.translation
		}
	}
	return "Something went wrong while processing this request."
}

// NewRunID builds a run id from the envelope identity plus a timestamp and
// random slice, per spec.md §4.L.
func NewRunID(conversationID, messageID, agentID, fromAgent string) string {
	key := conversationID
	if key == "" {
		key = messageID
	}
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("run_%s_%s_%s_%d_%s", key, agentID, fromAgent, time.Now().UTC().UnixNano(), hex.EncodeToString(b))
}

// Run executes one full harness pass: classify, route, loop, ingest
// memory, gate, dispatch, auto-draft, finalize.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	runID := NewRunID(req.ConversationID, req.MessageID, req.AgentID, req.FromAgent)

	level, riskReasons := risk.Classify(req.Objective)
	route, routeReason := risk.ClassifyRoute(req.Objective)

	assignedAgent := req.AgentID
	if route == risk.RouteBrowser && o.UseClaudeChrome != "" {
		assignedAgent = o.UseClaudeChrome
	}

	run := &store.Run{
		RunID:          runID,
		TaskID:         req.TaskID,
		Channel:        req.Channel,
		Sender:         req.Sender,
		SenderID:       req.SenderID,
		ConversationID: req.ConversationID,
		Objective:      req.Objective,
		RiskLevel:      string(level),
		AssignedAgent:  assignedAgent,
		MaxIterations:  risk.Budget(level),
	}
	if err := o.Store.CreateRun(run); err != nil {
		return Outcome{}, fmt.Errorf("create run: %w", err)
	}

	_ = o.Store.RecordEvent(runID, "risk_classified", strings.Join(append([]string{string(level)}, riskReasons...), "; "))
	_ = o.Store.RecordEvent(runID, "task_routed", fmt.Sprintf("%s: %s", route, routeReason))

	result, runErr := o.runLoop(ctx, runID, level, req)
	if runErr != nil {
		translated := translateError(runErr)
		_ = o.Store.FinalizeRun(runID, store.RunFailed, translated)
		_ = o.Store.RecordEvent(runID, "failed", runErr.Error())
		return Outcome{RunID: runID, Status: store.RunFailed, ResultText: translated}, nil
	}

	verified := result.Verdict.Outcome == loop.OutcomePass
	o.ingestMemory(req, result.Output, runID)

	finalStatus := store.RunVerified
	finalText := result.Output

	if verified && route != risk.RouteBrowser {
		decision, err := o.Gate.Evaluate(gate.Request{
			RunID: runID, UserID: req.UserID, OutputText: result.Output, Route: route, Risk: level,
		})
		if err != nil {
			_ = o.Store.FinalizeRun(runID, store.RunFailed, translateError(err))
			return Outcome{RunID: runID, Status: store.RunFailed, ResultText: translateError(err)}, nil
		}
		if decision.RequiresApproval {
			finalStatus = store.RunAwaitingApproval
			_ = o.Store.RecordEvent(runID, "awaiting_approval", decision.Reason)
		}
	}

	if verified && req.Execute != nil && finalStatus != store.RunAwaitingApproval {
		routeText, execErr := req.Execute(ctx, runID, route, req.Objective, result.Output)
		if execErr != nil {
			finalStatus = store.RunFailed
			finalText = translateError(execErr)
			_ = o.Store.RecordEvent(runID, "failed", execErr.Error())
		} else {
			if routeText != "" {
				finalText = routeText
			}
			kind := "tooling_execution"
			if route == risk.RouteBrowser {
				kind = "browser_execution"
			}
			_ = o.Store.RecordEvent(runID, kind, finalText)
		}
	}

	if !verified {
		finalStatus = store.RunNeedsInput
		_ = o.Store.RecordEvent(runID, "needs_input", "verifier did not reach a pass outcome within budget")
	} else if finalStatus == store.RunVerified {
		_ = o.Store.RecordEvent(runID, "verified", "")
	}

	if verified && finalStatus == store.RunVerified && skills.ShouldAutoDraft(req.Objective, route, verified) {
		if res, err := skills.AutoDraft(o.Store, o.SkillsDir, req.UserID, runID, req.Objective); err == nil {
			_ = o.Store.RecordEvent(runID, "skill_autodraft", res.SkillID)
		}
	}

	if err := o.Store.FinalizeRun(runID, finalStatus, finalText); err != nil {
		return Outcome{}, fmt.Errorf("finalize run: %w", err)
	}
	return Outcome{RunID: runID, Status: finalStatus, ResultText: finalText}, nil
}

func (o *Orchestrator) ingestMemory(req Request, output, runID string) {
	hits := memory.Ingest(req.Objective + "\n" + output)
	for _, h := range hits {
		recordID := memory.RecordID(req.UserID, h.Category, h.Key)
		_ = o.Store.UpsertMemory(recordID, req.UserID, string(h.Category), h.Key, h.Value, h.Confidence, runID)
	}
	if o.MemoryRawDir != "" {
		_ = memory.AppendRaw(o.MemoryRawDir, memory.RawEvent{
			Channel: req.Channel, SenderID: req.SenderID, Request: req.Objective, Timestamp: time.Now(),
		})
	}
	_ = o.Store.RecordEvent(runID, "memory_ingested", fmt.Sprintf("%d hits", len(hits)))
}

func (o *Orchestrator) runLoop(ctx context.Context, runID string, level risk.Level, req Request) (*loop.Result, error) {
	generate := func(ctx context.Context) (string, error) {
		return req.Generate(ctx, req.Objective, "", "")
	}
	verify := func(ctx context.Context, candidate string, iter int) (loop.Verdict, error) {
		return loop.Verify(ctx, candidate, loop.LLMVerify(req.Verify)), nil
	}
	revise := func(ctx context.Context, candidate string, verdict loop.Verdict, iter int) (string, error) {
		feedback := strings.Join(verdict.Findings, "; ")
		return req.Revise(ctx, req.Objective, candidate, feedback)
	}

	result, err := loop.Run(ctx, level, generate, verify, revise)
	if err != nil {
		return nil, err
	}
	iterations := 0
	if n := len(result.Steps); n > 0 {
		iterations = result.Steps[n-1].Iteration
	}
	_ = o.Store.UpdateRunProgress(runID, iterations, string(result.Verdict.Outcome), result.Output)
	if result.Exhausted {
		_ = o.Store.RecordEvent(runID, "loop_exhausted", fmt.Sprintf("iterations=%d outcome=%s", iterations, result.Verdict.Outcome))
	} else {
		_ = o.Store.RecordEvent(runID, "loop_completed", fmt.Sprintf("iterations=%d", iterations))
	}
	return result, nil
}
