// Package gate implements the publish/approval admission check from
// spec.md §4.G. The production policy allows all (gate currently
// disabled); the pending-approval code path is fully implemented but
// unreached by the default policy, per SPEC_FULL.md's Open Question
// decision #1.
package gate

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tinyagi/tinyagi/internal/risk"
)

// Decision is the gate's verdict for one publish attempt.
type Decision struct {
	Allow            bool
	RequiresApproval bool
	RequestID        string
	Reason           string
}

// Request bundles the inputs spec.md §4.G names: (runId, userId, outputText, route, risk).
type Request struct {
	RunID      string
	UserID     string
	OutputText string
	Route      risk.Route
	Risk       risk.Level
}

// PendingApprovalCreator creates a durable pending-approval row and returns
// its id. Implemented by the relational repository.
type PendingApprovalCreator interface {
	CreatePendingApproval(runID, userID, reason string) (requestID string, err error)
}

// Policy decides whether a request additionally needs an approval gate
// beyond the default allow-all. AllowAll is the production policy.
type Policy func(req Request) (requiresApproval bool, reason string)

// AllowAll is the current production policy: never requires approval.
func AllowAll(req Request) (bool, string) { return false, "" }

// Gate evaluates publish requests under a Policy.
type Gate struct {
	policy  Policy
	pending PendingApprovalCreator
}

// New constructs a Gate. A nil policy defaults to AllowAll.
func New(policy Policy, pending PendingApprovalCreator) *Gate {
	if policy == nil {
		policy = AllowAll
	}
	return &Gate{policy: policy, pending: pending}
}

// Evaluate returns the gate's decision for req. Route "browser" bypasses the
// gate entirely, per spec.md §4.G, because the browser executor has its own
// per-action approval.
func (g *Gate) Evaluate(req Request) (Decision, error) {
	if req.Route == risk.RouteBrowser {
		return Decision{Allow: true, Reason: "browser route has its own per-action approval gate"}, nil
	}

	requiresApproval, reason := g.policy(req)
	if !requiresApproval {
		return Decision{Allow: true}, nil
	}

	var requestID string
	var err error
	if g.pending != nil {
		requestID, err = g.pending.CreatePendingApproval(req.RunID, req.UserID, reason)
		if err != nil {
			return Decision{}, fmt.Errorf("create pending approval: %w", err)
		}
	} else {
		requestID = "req_" + uuid.New().String()
	}

	return Decision{Allow: false, RequiresApproval: true, RequestID: requestID, Reason: reason}, nil
}
