// Package loop implements the generator -> verifier -> reviser iteration
// contract from spec.md §4.F, with a risk-scaled budget and a tool-loop
// circuit breaker supplementing budget exhaustion.
package loop

import (
	"context"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/risk"
)

// VerifierOutcome is one of the four states the verifier contract returns.
type VerifierOutcome string

const (
	OutcomePass         VerifierOutcome = "pass"
	OutcomeMinorFix     VerifierOutcome = "minor_fix"
	OutcomeCriticalFail VerifierOutcome = "critical_fail"
	OutcomeAbstain      VerifierOutcome = "abstain"
)

// Verdict is the verifier's structured response for one candidate.
type Verdict struct {
	Outcome          VerifierOutcome
	Findings         []string
	RequiredActions  []string
	EvidenceRefs     []string
}

// Step is one recorded generator/verifier/reviser action, mirroring
// spec.md §3's TaskStep rows.
type Step struct {
	Kind      string // "generate" | "verify" | "revise"
	Iteration int
	Output    string
	Verdict   *Verdict
}

// GenerateFunc produces a new candidate output.
type GenerateFunc func(ctx context.Context) (string, error)

// VerifyFunc judges a candidate at the given iteration.
type VerifyFunc func(ctx context.Context, candidate string, iter int) (Verdict, error)

// ReviseFunc produces a revised candidate given the prior candidate and its verdict.
type ReviseFunc func(ctx context.Context, candidate string, verdict Verdict, iter int) (string, error)

// Result is the loop's final outcome.
type Result struct {
	Output    string
	Verdict   Verdict
	Exhausted bool
	Steps     []Step
}

// BreakerWindow is how many trailing revise outputs are compared for the
// tool-loop circuit breaker: three identical outputs in a row abort early
// rather than spend the remaining budget on unproductive revisions.
const BreakerWindow = 3

// Run drives the generate -> verify -> [revise -> verify]* loop bounded by
// risk.Budget(level), per spec.md §4.F. It records exactly one loop_completed
// (Exhausted=false) or loop_exhausted (Exhausted=true) signal via the
// returned Result; callers persist the corresponding event themselves.
func Run(ctx context.Context, level risk.Level, generate GenerateFunc, verify VerifyFunc, revise ReviseFunc) (*Result, error) {
	budget := risk.Budget(level)

	candidate, err := generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	steps := []Step{{Kind: "generate", Iteration: 0, Output: candidate}}

	verdict, err := verify(ctx, candidate, 0)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	steps = append(steps, Step{Kind: "verify", Iteration: 0, Output: candidate, Verdict: &verdict})

	var recent []string

	for iter := 0; ; {
		if verdict.Outcome == OutcomePass || verdict.Outcome == OutcomeAbstain {
			return &Result{Output: candidate, Verdict: verdict, Exhausted: false, Steps: steps}, nil
		}
		if (verdict.Outcome != OutcomeMinorFix && verdict.Outcome != OutcomeCriticalFail) || iter == budget {
			return &Result{Output: candidate, Verdict: verdict, Exhausted: true, Steps: steps}, nil
		}

		revised, err := revise(ctx, candidate, verdict, iter)
		if err != nil {
			return nil, fmt.Errorf("revise: %w", err)
		}
		iter++
		candidate = revised
		steps = append(steps, Step{Kind: "revise", Iteration: iter, Output: candidate})

		recent = append(recent, candidate)
		if len(recent) > BreakerWindow {
			recent = recent[len(recent)-BreakerWindow:]
		}
		if breakerTripped(recent) {
			return &Result{Output: candidate, Verdict: verdict, Exhausted: true, Steps: steps}, nil
		}

		verdict, err = verify(ctx, candidate, iter)
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		steps = append(steps, Step{Kind: "verify", Iteration: iter, Output: candidate, Verdict: &verdict})
	}
}

// breakerTripped reports whether the window is full of identical revise
// outputs, meaning revision is clearly unproductive.
func breakerTripped(recent []string) bool {
	if len(recent) < BreakerWindow {
		return false
	}
	first := recent[0]
	for _, r := range recent[1:] {
		if r != first {
			return false
		}
	}
	return true
}
