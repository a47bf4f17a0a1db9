// Package router parses @agent/@team prefixes and teammate handoff mentions
// out of message and response text, per spec.md §4.C. Team lookups are
// delegated to a Directory the caller supplies, backed by the relational
// repository's team/agent tables.
package router

import (
	"errors"
	"regexp"
	"strings"
)

// ErrAmbiguousMention is the distinguished sentinel returned when a message
// mentions several distinct agent tokens ("easter-egg path, returned to
// sender unchanged" per spec.md §4.C).
var ErrAmbiguousMention = errors.New("router: message mentions multiple distinct agents")

// Directory resolves team and agent names against the repository.
type Directory interface {
	// TeamLeader reports whether ident names a team and, if so, its leader agentId.
	TeamLeader(ident string) (agentID string, ok bool)
	// IsAgent reports whether ident names a known agent.
	IsAgent(ident string) bool
	// TeamForAgent returns the team that should be used as context for
	// agentID: the team containing it as leader, else the first team that
	// lists it as a member.
	TeamForAgent(agentID string) (teamID string, ok bool)
	// TeamMembers returns every agentId in teamID, including the leader.
	TeamMembers(teamID string) []string
}

// leadingMention matches a leading "@ident" token that is not the start of a
// bracketed [...] span.
var leadingMention = regexp.MustCompile(`^@([A-Za-z0-9_-]+)\b`)

// anyMention finds every @ident occurrence outside of bracket spans. We
// strip bracketed spans before scanning so teammate-handoff tags (which use
// their own @ inside "[@teammate: ...]") are not double-counted here.
var anyMention = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

var bracketSpan = regexp.MustCompile(`\[[^\[\]]*\]`)

// Decision is the outcome of resolving an incoming message's destination.
type Decision struct {
	AgentID string
	TeamID  string
	Reason  string
}

// Resolve implements spec.md §4.C's leading-mention resolution: a leading
// "@ident" names a team (route to its leader) or an agent (route directly).
// If several distinct agent tokens appear in the message, ErrAmbiguousMention
// is returned instead of a Decision.
func Resolve(dir Directory, message string) (*Decision, error) {
	stripped := bracketSpan.ReplaceAllString(message, "")

	matches := anyMention.FindAllStringSubmatch(stripped, -1)
	distinctAgents := map[string]bool{}
	for _, m := range matches {
		ident := m[1]
		if dir.IsAgent(ident) {
			distinctAgents[ident] = true
		}
	}
	if len(distinctAgents) > 1 {
		return nil, ErrAmbiguousMention
	}

	m := leadingMention.FindStringSubmatch(strings.TrimSpace(message))
	if m == nil {
		return nil, nil
	}
	ident := m[1]

	if leaderID, ok := dir.TeamLeader(ident); ok {
		teamID, _ := dir.TeamForAgent(leaderID)
		return &Decision{AgentID: leaderID, TeamID: teamID, Reason: "leading @" + ident + " names team, routed to leader"}, nil
	}
	if dir.IsAgent(ident) {
		teamID, _ := dir.TeamForAgent(ident)
		return &Decision{AgentID: ident, TeamID: teamID, Reason: "leading @" + ident + " names agent"}, nil
	}
	return nil, nil
}

// Handoff is a single "[@teammate: <free text>]" extraction.
type Handoff struct {
	Agent string
	Text  string
}

// teammateMention matches "[@ident: free text]" non-greedily across
// newlines, per spec.md §4.C.
var teammateMention = regexp.MustCompile(`(?s)\[@([A-Za-z0-9_-]+):\s*(.*?)\]`)

// ExtractHandoffs extracts teammate handoffs from a response. Mentions that
// re-mention the sender agent or name an agent not in teamID are rejected
// and omitted.
func ExtractHandoffs(dir Directory, response, teamID, senderAgentID string) []Handoff {
	members := map[string]bool{}
	for _, m := range dir.TeamMembers(teamID) {
		members[m] = true
	}

	var out []Handoff
	for _, m := range teammateMention.FindAllStringSubmatch(response, -1) {
		agent := m[1]
		text := strings.TrimSpace(m[2])
		if agent == senderAgentID {
			continue
		}
		if !members[agent] {
			continue
		}
		out = append(out, Handoff{Agent: agent, Text: text})
	}
	return out
}
