package app

import (
	"context"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/risk"
)

// executeRoute dispatches a verified run's candidate output to its
// route-specific executor, satisfying harness.RouteExecutor.
func (a *App) executeRoute(ctx context.Context, runID string, route risk.Route, objective, candidate string) (string, error) {
	switch route {
	case risk.RouteTooling:
		return a.executeToolingRoute(ctx, runID, objective, candidate)
	case risk.RouteBrowser:
		return a.executeBrowserRoute(ctx, runID, objective, candidate)
	default:
		return "", nil
	}
}

func (a *App) executeToolingRoute(ctx context.Context, runID, objective, candidate string) (string, error) {
	run, err := a.Store.GetRun(runID)
	if err != nil {
		return "", fmt.Errorf("load run for tooling route: %w", err)
	}
	if run == nil {
		return "", fmt.Errorf("load run for tooling route: no such run: %s", runID)
	}

	res, err := a.tooling.Execute(ctx, run.SenderID, objective, candidate)
	if err != nil {
		return "", err
	}
	if res.Instruction != "" {
		return res.Instruction, nil
	}
	return res.OutputSnippet, nil
}
