package loop

import (
	"context"
	"testing"

	"github.com/tinyagi/tinyagi/internal/risk"
)

func TestRunPassesImmediately(t *testing.T) {
	gen := func(ctx context.Context) (string, error) { return "draft", nil }
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		return Verdict{Outcome: OutcomePass}, nil
	}
	revise := func(ctx context.Context, candidate string, v Verdict, iter int) (string, error) {
		t.Fatal("revise should not be called")
		return "", nil
	}

	res, err := Run(context.Background(), risk.Low, gen, verify, revise)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Exhausted {
		t.Fatalf("expected not exhausted")
	}
	if res.Output != "draft" {
		t.Fatalf("expected output 'draft', got %q", res.Output)
	}
}

func TestRunExhaustsAtBudget(t *testing.T) {
	gen := func(ctx context.Context) (string, error) { return "v0", nil }
	calls := 0
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		calls++
		return Verdict{Outcome: OutcomeMinorFix}, nil
	}
	revise := func(ctx context.Context, candidate string, v Verdict, iter int) (string, error) {
		return candidate + "+", nil
	}

	res, err := Run(context.Background(), risk.Medium, gen, verify, revise)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Exhausted {
		t.Fatalf("expected exhausted after hitting budget")
	}
	if res.Output != "v0+++" {
		t.Fatalf("expected 3 revisions applied, got %q", res.Output)
	}
}

func TestRunCriticalFailNonPassNonMinorStopsImmediately(t *testing.T) {
	gen := func(ctx context.Context) (string, error) { return "v0", nil }
	verifyCalls := 0
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		verifyCalls++
		return Verdict{Outcome: "unknown_outcome"}, nil
	}
	revise := func(ctx context.Context, candidate string, v Verdict, iter int) (string, error) {
		t.Fatal("revise should not be called for an outcome outside minor_fix/critical_fail")
		return "", nil
	}

	res, err := Run(context.Background(), risk.High, gen, verify, revise)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Exhausted {
		t.Fatalf("expected exhausted")
	}
	if verifyCalls != 1 {
		t.Fatalf("expected exactly one verify call, got %d", verifyCalls)
	}
}

func TestRunBreakerTripsOnIdenticalRevisions(t *testing.T) {
	gen := func(ctx context.Context) (string, error) { return "stuck", nil }
	verify := func(ctx context.Context, candidate string, iter int) (Verdict, error) {
		return Verdict{Outcome: OutcomeCriticalFail}, nil
	}
	revise := func(ctx context.Context, candidate string, v Verdict, iter int) (string, error) {
		return "stuck", nil // never changes
	}

	res, err := Run(context.Background(), risk.Critical, gen, verify, revise)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Exhausted {
		t.Fatalf("expected exhausted via breaker")
	}
	// budget is 5 for Critical; breaker should trip at 3 identical revisions,
	// well before exhausting the full budget.
	reviseSteps := 0
	for _, s := range res.Steps {
		if s.Kind == "revise" {
			reviseSteps++
		}
	}
	if reviseSteps > 3 {
		t.Fatalf("expected breaker to stop revisions early, got %d revise steps", reviseSteps)
	}
}
