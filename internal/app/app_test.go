package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/paths"
	"github.com/tinyagi/tinyagi/internal/risk"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	home, err := paths.NewHome(t.TempDir())
	if err != nil {
		t.Fatalf("NewHome: %v", err)
	}
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	a, err := New(home, cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewWiresDispatchCollaborators(t *testing.T) {
	a := newTestApp(t, nil)
	if a.Dispatch.Agent == nil || a.Dispatch.Verifier == nil || a.Dispatch.Execute == nil {
		t.Fatalf("expected Agent, Verifier, and Execute to be wired on the processor")
	}
	if a.Harness == nil || a.Proactive == nil {
		t.Fatalf("expected harness and proactive scheduler to be built")
	}
}

func TestBuildAdaptersRespectsEnabledFlags(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Channels.WhatsApp.Enabled = false
		c.Channels.Discord.Enabled = true
		c.Channels.Discord.Token = "" // blank token still disables it
	})
	if len(a.Adapters) != 0 {
		t.Fatalf("expected no adapters, got %d", len(a.Adapters))
	}

	a2 := newTestApp(t, func(c *config.Config) {
		c.Channels.WhatsApp.Enabled = true
		c.Channels.Discord.Enabled = true
		c.Channels.Discord.Token = "tok"
	})
	if len(a2.Adapters) != 2 {
		t.Fatalf("expected whatsapp+discord adapters, got %d", len(a2.Adapters))
	}
}

func TestUseClaudeChromeAgentRequiresConfiguredID(t *testing.T) {
	cfg := config.Default()
	cfg.Harness.Browser.UseClaudeChrome = true
	cfg.Agents.IDs = []string{"default"}
	if got := useClaudeChromeAgent(cfg); got != "" {
		t.Fatalf("expected no claude-chrome agent configured, got %q", got)
	}

	cfg.Agents.IDs = []string{"default", "claude-chrome"}
	if got := useClaudeChromeAgent(cfg); got != "claude-chrome" {
		t.Fatalf("expected claude-chrome, got %q", got)
	}

	cfg.Harness.Browser.UseClaudeChrome = false
	if got := useClaudeChromeAgent(cfg); got != "" {
		t.Fatalf("expected empty when flag disabled, got %q", got)
	}
}

func TestExecuteRouteDefaultsToEmptyResult(t *testing.T) {
	a := newTestApp(t, nil)
	out, err := a.executeRoute(context.Background(), "run-1", risk.Route("unroutable"), "do the thing", "candidate")
	if err != nil {
		t.Fatalf("executeRoute: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty result for an unrecognized route, got %q", out)
	}
}
