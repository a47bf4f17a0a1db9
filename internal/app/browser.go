package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinyagi/tinyagi/internal/browser"
	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/store"
)

// browserSession lazily owns one Driver + one repository-recorded session,
// shared across runs, per spec.md §4.I's "session resolution" step.
type browserSession struct {
	driver    browser.Driver
	executor  *browser.Executor
	sessionID string
}

// resolveDriver attaches a Driver for cfg, trying a direct debugger URL or
// configured ports first, then falling back to a mirrored-profile launch or
// the external automation broker, per spec.md §4.I's provider selection.
func resolveDriver(ctx context.Context, cfg config.BrowserConfig, mirrorDir string) (browser.Driver, string, int, error) {
	candidates := candidateDebuggerURLs(cfg)

	var attachErr error
	for _, u := range candidates {
		if waitErr := browser.WaitForDebuggerReady(u); waitErr != nil {
			attachErr = waitErr
			continue
		}
		d, err := browser.AttachRod(u)
		if err != nil {
			attachErr = err
			continue
		}
		host, port := splitDebuggerURL(u)
		return d, host, port, nil
	}

	provider := browser.ResolveProvider(browser.Provider(cfg.Provider), attachErr)
	if provider == browser.ProviderBroker {
		if cfg.MCPChannel == "" {
			return nil, "", 0, fmt.Errorf("no reachable debugger and no automation broker configured: %w", attachErr)
		}
		d, err := browser.DialBroker(ctx, cfg.MCPChannel, 10*time.Second)
		if err != nil {
			return nil, "", 0, fmt.Errorf("dial automation broker: %w", err)
		}
		return d, cfg.MCPChannel, 0, nil
	}

	port := browser.RandomMirrorPort()
	if _, err := browser.PrepareProfileMirror(cfg.ProfilePath, mirrorDir, cfg.ProfileDirectory); err != nil {
		return nil, "", 0, fmt.Errorf("prepare profile mirror: %w", err)
	}
	d, err := browser.LaunchMirroredRod(mirrorDir, port)
	if err != nil {
		return nil, "", 0, fmt.Errorf("launch mirrored browser: %w", err)
	}
	return d, "127.0.0.1", port, nil
}

func candidateDebuggerURLs(cfg config.BrowserConfig) []string {
	var out []string
	if cfg.DebuggerURL != "" {
		out = append(out, cfg.DebuggerURL)
	}
	for _, p := range cfg.DebuggerPorts {
		out = append(out, fmt.Sprintf("http://127.0.0.1:%d", p))
	}
	return out
}

func splitDebuggerURL(raw string) (string, int) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, 0
	}
	host := u.Hostname()
	var port int
	fmt.Sscanf(u.Port(), "%d", &port)
	return host, port
}

// ensureBrowserSession lazily builds the shared browser session the first
// time a run needs it.
func (a *App) ensureBrowserSession(ctx context.Context, runID string) (*browserSession, error) {
	a.browserMu.Lock()
	defer a.browserMu.Unlock()

	if a.browser != nil {
		return a.browser, nil
	}

	driver, host, port, err := resolveDriver(ctx, a.Config.Harness.Browser, a.Home.ProfileMirrorDir)
	if err != nil {
		return nil, err
	}

	sessionID := "bsess_" + uuid.New().String()
	if err := a.Store.CreateBrowserSession(sessionID, runID, host, port, a.Config.Harness.Browser.ProfilePath); err != nil {
		driver.Close()
		return nil, fmt.Errorf("record browser session: %w", err)
	}

	sess := &browserSession{
		driver:    driver,
		executor:  browser.New(a.Store, driver, a.Home.BrowserAuditDir, a.Config.Harness.Browser.HardStopPayments),
		sessionID: sessionID,
	}
	a.browser = sess
	return sess, nil
}

// AttachSession resolves (or launches) the shared browser session for runID
// and returns its sessionId, for the `browser attach` command.
func (a *App) AttachSession(ctx context.Context, runID string) (string, error) {
	sess, err := a.ensureBrowserSession(ctx, runID)
	if err != nil {
		return "", err
	}
	return sess.sessionID, nil
}

// executeBrowserRoute plans and runs the browser steps implied by
// objective+candidate, per spec.md §4.I.
func (a *App) executeBrowserRoute(ctx context.Context, runID, objective, candidate string) (string, error) {
	if !a.Config.Harness.Browser.Enabled {
		return "Browser automation is disabled in settings; here is what I would have done:\n" + candidate, nil
	}

	steps := browser.Plan(objective, candidate)
	if len(steps) == 0 {
		return candidate, nil
	}

	sess, err := a.ensureBrowserSession(ctx, runID)
	if err != nil {
		return "", err
	}

	tabID := "btab_" + uuid.New().String()
	if err := a.Store.CreateBrowserTab(tabID, sess.sessionID, runID); err != nil {
		return "", fmt.Errorf("create browser tab: %w", err)
	}

	result, err := sess.executor.ExecuteSteps(ctx, runID, tabID, steps)
	if err != nil {
		return "", err
	}
	return formatBrowserResult(result), nil
}

func formatBrowserResult(r browser.Result) string {
	var b strings.Builder
	switch r.Outcome {
	case browser.OutcomeCompleted:
		b.WriteString("Done with the browser task.")
	case browser.OutcomeNeedsApproval:
		fmt.Fprintf(&b, "That step touches a payment surface, so I stopped and opened an approval request (%s).", r.ApprovalID)
	case browser.OutcomeNeedsInput:
		fmt.Fprintf(&b, "I hit something that needs you (%s).", r.Guidance)
	default:
		fmt.Fprintf(&b, "The browser task failed: %s", r.Guidance)
	}
	for _, line := range r.ExtractedLines {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

// traceSource adapts *store.Store's richer AuditRow into browser.AuditRow,
// since internal/browser cannot import internal/store without a cycle.
type traceSource struct{ s *store.Store }

func (t traceSource) LatestTabTraceForRun(runID string) ([]browser.AuditRow, error) {
	rows, err := t.s.LatestTabTraceForRun(runID)
	if err != nil {
		return nil, err
	}
	out := make([]browser.AuditRow, len(rows))
	for i, r := range rows {
		out[i] = browser.AuditRow{ActionID: r.ActionID, SelectorTrace: r.SelectorTrace, Status: r.Status}
	}
	return out, nil
}

// ReplayRun re-executes the most recent tab's recorded trace for runID
// against a fresh browser session, per spec.md §4.I's replayBrowserRun.
func (a *App) ReplayRun(ctx context.Context, runID, baseURL string) (browser.Result, error) {
	steps, err := browser.BuildReplayPlan(traceSource{a.Store}, runID, baseURL)
	if err != nil {
		return browser.Result{}, err
	}

	sess, err := a.ensureBrowserSession(ctx, runID)
	if err != nil {
		return browser.Result{}, err
	}

	tabID := "btab_" + uuid.New().String()
	if err := a.Store.CreateBrowserTab(tabID, sess.sessionID, runID); err != nil {
		return browser.Result{}, fmt.Errorf("create browser tab: %w", err)
	}
	return sess.executor.ExecuteSteps(ctx, runID, tabID, steps)
}

// closeBrowser releases the shared browser driver, if one was ever opened.
func (a *App) closeBrowser() {
	a.browserMu.Lock()
	defer a.browserMu.Unlock()
	if a.browser != nil {
		_ = a.browser.driver.Close()
		a.browser = nil
	}
}
