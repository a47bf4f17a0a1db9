package browser

import (
	"context"
	"testing"
)

func TestNormalizeSelectorKeepsCSSPrefixes(t *testing.T) {
	for _, s := range []string{"#submit", ".btn", "[name=q]", "css=div", "xpath=//a", "text=Sign in"} {
		if got := NormalizeSelector(s); got != s {
			t.Fatalf("expected %q unchanged, got %q", s, got)
		}
	}
}

func TestNormalizeSelectorWrapsMultiWordText(t *testing.T) {
	if got := NormalizeSelector("Sign in"); got != "text=Sign in" {
		t.Fatalf("expected text= wrap, got %q", got)
	}
}

func TestNormalizeSelectorPassesThroughIdentifier(t *testing.T) {
	if got := NormalizeSelector("submit"); got != "submit" {
		t.Fatalf("expected pass-through, got %q", got)
	}
}

func TestPlanFallsBackToNavigateAndScreenshotOnBareURL(t *testing.T) {
	steps := Plan("check https://example.com/status", "")
	if len(steps) != 2 || steps[0].Kind != StepNavigate || steps[1].Kind != StepScreenshot {
		t.Fatalf("expected [navigate, screenshot] fallback, got %+v", steps)
	}
}

func TestPlanParsesClickAndFill(t *testing.T) {
	steps := Plan("fill #email with \"a@b.com\" then click #submit", "")
	var sawFill, sawClick bool
	for _, s := range steps {
		if s.Kind == StepFill && s.Value == "a@b.com" {
			sawFill = true
		}
		if s.Kind == StepClick {
			sawClick = true
		}
	}
	if !sawFill || !sawClick {
		t.Fatalf("expected fill and click steps, got %+v", steps)
	}
}

func TestIsPaymentRelatedDetectsCheckoutSelector(t *testing.T) {
	s := Step{Kind: StepClick, Selector: "#checkout-button"}
	if !s.IsPaymentRelated() {
		t.Fatal("expected checkout selector to be payment-related")
	}
}

func TestCheckpointDetectedOnCaptchaText(t *testing.T) {
	if !checkpointDetected("https://example.com/login", "Please complete the CAPTCHA to continue") {
		t.Fatal("expected captcha text to trip checkpoint detection")
	}
}

func TestShouldFallbackToBrokerOnKnownAttachFailures(t *testing.T) {
	if !ShouldFallbackToBroker(errLike("no reachable debugger at this address")) {
		t.Fatal("expected fallback on unreachable debugger")
	}
	if ShouldFallbackToBroker(nil) {
		t.Fatal("expected no fallback on nil error")
	}
}

type errLike string

func (e errLike) Error() string { return string(e) }

// fakeDriver is a hand-written double exercising the retry loop without a
// real browser.
type fakeDriver struct {
	failNavigates int
	url           string
	visibleText   string
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	if f.failNavigates > 0 {
		f.failNavigates--
		return errLike("transient navigation error")
	}
	return nil
}
func (f *fakeDriver) Click(ctx context.Context, selector string) error       { return nil }
func (f *fakeDriver) Type(ctx context.Context, selector, value string) error { return nil }
func (f *fakeDriver) Fill(ctx context.Context, selector, value string) error { return nil }
func (f *fakeDriver) WaitFor(ctx context.Context, selector string) error     { return nil }
func (f *fakeDriver) Press(ctx context.Context, key string) error            { return nil }
func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error)         { return []byte("png"), nil }
func (f *fakeDriver) ExtractText(ctx context.Context, selector string) (string, error) {
	return "line one\nline two", nil
}
func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) { return f.url, nil }
func (f *fakeDriver) VisibleText(ctx context.Context) (string, error) {
	return f.visibleText, nil
}
func (f *fakeDriver) Close() error { return nil }

type fakeRepo struct {
	actions   []string
	approvals []string
	audits    int
}

func (r *fakeRepo) CreateBrowserTab(tabID, sessionID, runID string) error { return nil }
func (r *fakeRepo) SetTabStatus(tabID, status string) error              { return nil }
func (r *fakeRepo) RecordBrowserAction(actionID, runID, tabID, kind, selector, value, risk string, requiresApproval bool, status string) error {
	r.actions = append(r.actions, kind)
	return nil
}
func (r *fakeRepo) SetActionStatus(actionID, status string) error { return nil }
func (r *fakeRepo) CreateBrowserApproval(requestID, runID, actionID string) error {
	r.approvals = append(r.approvals, requestID)
	return nil
}
func (r *fakeRepo) RecordBrowserAudit(runID, tabID, actionID, beforeShot, afterShot, selectorTrace string) error {
	r.audits++
	return nil
}

func TestExecuteStepsRetriesTransientFailure(t *testing.T) {
	driver := &fakeDriver{failNavigates: 1}
	repo := &fakeRepo{}
	ex := New(repo, driver, t.TempDir(), true)

	res, err := ex.ExecuteSteps(context.Background(), "run1", "tab1", []Step{{Kind: StepNavigate, URL: "https://example.com"}})
	if err != nil {
		t.Fatalf("ExecuteSteps: %v", err)
	}
	if res.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed outcome after retry, got %v", res.Outcome)
	}
	if repo.audits != 1 {
		t.Fatalf("expected one audit row, got %d", repo.audits)
	}
}

func TestExecuteStepsStopsForPaymentApproval(t *testing.T) {
	driver := &fakeDriver{}
	repo := &fakeRepo{}
	ex := New(repo, driver, t.TempDir(), true)

	res, err := ex.ExecuteSteps(context.Background(), "run1", "tab1", []Step{{Kind: StepClick, Selector: "#checkout-now"}})
	if err != nil {
		t.Fatalf("ExecuteSteps: %v", err)
	}
	if res.Outcome != OutcomeNeedsApproval || res.ApprovalID == "" {
		t.Fatalf("expected needs_approval outcome, got %+v", res)
	}
	if len(repo.approvals) != 1 {
		t.Fatalf("expected one approval request, got %d", len(repo.approvals))
	}
}

func TestExecuteStepsDetectsCheckpoint(t *testing.T) {
	driver := &fakeDriver{visibleText: "Please verify it's you with a one-time code"}
	repo := &fakeRepo{}
	ex := New(repo, driver, t.TempDir(), true)

	res, err := ex.ExecuteSteps(context.Background(), "run1", "tab1", []Step{{Kind: StepClick, Selector: "#continue"}})
	if err != nil {
		t.Fatalf("ExecuteSteps: %v", err)
	}
	if res.Outcome != OutcomeNeedsInput {
		t.Fatalf("expected needs_input outcome, got %v", res.Outcome)
	}
}
