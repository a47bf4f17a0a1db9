package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tinyagi/tinyagi/internal/agentrunner"
	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/dispatch"
	"github.com/tinyagi/tinyagi/internal/harness"
)

// buildProvider adapts settings.json's agents.runner into an
// agentrunner.Provider, per spec.md §4.D.
func buildProvider(cfg config.RunnerConfig) agentrunner.Provider {
	family := agentrunner.FamilyFramed
	if cfg.Family == string(agentrunner.FamilyOneShot) {
		family = agentrunner.FamilyOneShot
	}
	return agentrunner.Provider{
		Name:          cfg.Binary,
		Family:        family,
		Binary:        cfg.Binary,
		Model:         cfg.Model,
		FallbackModel: cfg.FallbackModel,
		ExtraArgs:     cfg.ExtraArgs,
	}
}

// callAgent builds the dispatch.CallAgent every agent pipeline generates and
// revises through: a per-agent workspace, the configured provider, and the
// objective/priorOutput/verifierFeedback folded into one message.
func (a *App) callAgent(ctx context.Context, agentID, objective, priorOutput, verifierFeedback string) (string, error) {
	workspace, err := agentrunner.EnsureWorkspace(a.agentsWorkspaceDir(), agentID, a.teammateContextFor(agentID))
	if err != nil {
		return "", fmt.Errorf("prepare agent workspace: %w", err)
	}

	message := objective
	if priorOutput != "" {
		message = fmt.Sprintf("%s\n\nYour previous attempt:\n%s", objective, priorOutput)
	}
	if verifierFeedback != "" {
		message = fmt.Sprintf("%s\n\nVerifier feedback to address:\n%s", message, verifierFeedback)
	}

	res, err := agentrunner.Invoke(ctx, agentrunner.Config{
		Provider:        a.provider,
		WorkspaceDir:    workspace,
		Message:         message,
		ContinueSession: priorOutput != "",
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// callVerifier builds the dispatch.CallVerifier: the same provider family,
// but a dedicated verifier model when one is configured, per spec.md §4.F.
func (a *App) callVerifier(ctx context.Context, agentID, candidate string) (string, error) {
	workspace, err := agentrunner.EnsureWorkspace(a.agentsWorkspaceDir(), agentID, "")
	if err != nil {
		return "", fmt.Errorf("prepare verifier workspace: %w", err)
	}

	provider := a.provider
	if a.Config.Agents.Runner.VerifierModel != "" {
		provider.Model = a.Config.Agents.Runner.VerifierModel
	}

	res, err := agentrunner.Invoke(ctx, agentrunner.Config{
		Provider:     provider,
		WorkspaceDir: workspace,
		Message:      "Verify the following candidate answer and respond with a verdict:\n\n" + candidate,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (a *App) agentsWorkspaceDir() string {
	return filepath.Join(a.Home.Root, "agents")
}

// teammateContextFor lists the other members of agentID's team, if any, per
// spec.md §4.D's "writes a teammate-context file before invocation".
func (a *App) teammateContextFor(agentID string) string {
	teamID, ok := a.Directory.TeamForAgent(agentID)
	if !ok {
		return ""
	}
	members := a.Directory.TeamMembers(teamID)
	if len(members) == 0 {
		return ""
	}
	out := "Teammates on this task:\n"
	for _, m := range members {
		if m == agentID {
			continue
		}
		out += "- " + m + "\n"
	}
	return out
}

var _ dispatch.CallAgent = (*App)(nil).callAgent
var _ dispatch.CallVerifier = (*App)(nil).callVerifier
var _ harness.RouteExecutor = (*App)(nil).executeRoute
