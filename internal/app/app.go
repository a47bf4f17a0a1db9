// Package app composes every subsystem into one running process: the
// repository, the queue, the harness orchestrator, the dispatch processor,
// the proactive scheduler, and the channel adapters, behind a single
// New/Run/Close lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinyagi/tinyagi/internal/agentrunner"
	"github.com/tinyagi/tinyagi/internal/channels"
	"github.com/tinyagi/tinyagi/internal/channels/discord"
	"github.com/tinyagi/tinyagi/internal/channels/whatsapp"
	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/dispatch"
	"github.com/tinyagi/tinyagi/internal/gate"
	"github.com/tinyagi/tinyagi/internal/harness"
	"github.com/tinyagi/tinyagi/internal/paths"
	"github.com/tinyagi/tinyagi/internal/proactive"
	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/store"
	"github.com/tinyagi/tinyagi/internal/tooling"
)

// App is every long-lived subsystem wired together: the repository, the
// queue spooler, the harness orchestrator, the queue processor, the
// proactive scheduler, and the enabled channel adapters.
type App struct {
	Home      *paths.Home
	Config    *config.Config
	Directory config.Directory

	Store *store.Store
	Queue *queue.Spooler

	Harness   *harness.Orchestrator
	Dispatch  *dispatch.Processor
	Proactive *proactive.Scheduler

	Adapters []channels.Adapter

	tooling  *tooling.Executor
	provider agentrunner.Provider

	browserMu sync.Mutex
	browser   *browserSession

	log *slog.Logger
}

// New builds every subsystem from home+cfg, but does not start any
// goroutines; call Run for that.
func New(home *paths.Home, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	s, err := store.Open(store.Config{Path: home.HarnessDB, ForeignKeys: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	q := queue.New(home.QueueIncoming, home.QueueProcessing, home.QueueOutgoing, home.Files, log)
	if n, err := q.RecoverCrashed(); err != nil {
		log.Error("recover crashed queue files failed", "error", err)
	} else if n > 0 {
		log.Info("recovered crashed queue files", "count", n)
	}

	dir := config.NewDirectory(cfg.Agents)

	a := &App{
		Home:      home,
		Config:    cfg,
		Directory: dir,
		Store:     s,
		Queue:     q,
		tooling:   tooling.New(s, s, s, log),
		provider:  buildProvider(cfg.Agents.Runner),
		log:       log.With("component", "app"),
	}

	a.Harness = &harness.Orchestrator{
		Store:           s,
		Gate:            gate.New(gate.AllowAll, nil),
		SkillsDir:       home.SkillsDir,
		MemoryRawDir:    home.MemoryRawDir,
		UseClaudeChrome: useClaudeChromeAgent(cfg),
	}

	a.Proactive = proactive.New(s, q, cfg.Harness.QuietHours, cfg.Harness.DigestTime, home.MemoryRawDir, home.MemoryDailyDir, home.ProactiveDeferred, log)

	a.Dispatch = dispatch.New(q, s, a.Harness, dir, cfg.Agents.IDs, a.Proactive, home.Chats, cfg.Harness.Enabled, log)
	a.Dispatch.Agent = a.callAgent
	a.Dispatch.Verifier = a.callVerifier
	a.Dispatch.Execute = a.executeRoute

	a.Adapters = a.buildAdapters(log)

	return a, nil
}

// useClaudeChromeAgent returns the agentId harness.browser.use_claude_chrome
// reroutes browser-route runs to, when that flag names one.
func useClaudeChromeAgent(cfg *config.Config) string {
	if !cfg.Harness.Browser.UseClaudeChrome {
		return ""
	}
	for _, id := range cfg.Agents.IDs {
		if id == "claude-chrome" {
			return id
		}
	}
	return ""
}

func (a *App) buildAdapters(log *slog.Logger) []channels.Adapter {
	var out []channels.Adapter

	wa := a.Config.Channels.WhatsApp
	if wa.Enabled {
		out = append(out, whatsapp.New(whatsapp.Config{
			DatabasePath:    filepath.Join(a.Home.HarnessDir, "whatsapp.db"),
			SelfChatOnly:    wa.RequireSelfChat,
			RespondToGroups: !wa.SelfCommandOnly,
		}, a.Queue, log))
	}

	dc := a.Config.Channels.Discord
	if dc.Enabled && dc.Token != "" {
		out = append(out, discord.New(discord.Config{
			Token:           dc.Token,
			AllowedGuilds:   dc.AllowedGuilds,
			AllowedChannels: dc.AllowedChannels,
		}, a.Queue, log))
	}

	return out
}

// Close releases the shared browser driver (if any) and the repository
// connection, for callers that build an App without calling Run, such as
// one-shot CLI commands.
func (a *App) Close() error {
	a.closeBrowser()
	return a.Store.Close()
}

// Run starts the queue processor, proactive scheduler, and every channel
// adapter's connection plus outgoing-delivery loop, and blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Dispatch.Start(ctx)
	a.Proactive.Start(ctx)

	var wg sync.WaitGroup
	for _, adapter := range a.Adapters {
		if err := adapter.Connect(ctx); err != nil {
			a.log.Error("channel adapter connect failed", "adapter", adapter.Name(), "error", err)
			continue
		}
		wg.Add(1)
		go func(ad channels.Adapter) {
			defer wg.Done()
			channels.RunOutgoingLoop(ctx, a.Queue, ad, a.log)
		}(adapter)
	}

	<-ctx.Done()
	a.log.Info("shutting down")

	a.Dispatch.Stop()
	a.Proactive.Stop()
	for _, adapter := range a.Adapters {
		if err := adapter.Disconnect(); err != nil {
			a.log.Warn("channel adapter disconnect failed", "adapter", adapter.Name(), "error", err)
		}
	}
	a.closeBrowser()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.log.Warn("channel adapters did not stop within timeout")
	}

	return a.Store.Close()
}
