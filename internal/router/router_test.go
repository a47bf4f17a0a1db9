package router

import "testing"

type fakeDirectory struct {
	teams       map[string]string   // team -> leader agentId
	agents      map[string]bool     // agentId -> known
	agentTeam   map[string]string   // agentId -> teamId
	teamMembers map[string][]string // teamId -> agentIds
}

func (f *fakeDirectory) TeamLeader(ident string) (string, bool) {
	leader, ok := f.teams[ident]
	return leader, ok
}
func (f *fakeDirectory) IsAgent(ident string) bool { return f.agents[ident] }
func (f *fakeDirectory) TeamForAgent(agentID string) (string, bool) {
	t, ok := f.agentTeam[agentID]
	return t, ok
}
func (f *fakeDirectory) TeamMembers(teamID string) []string { return f.teamMembers[teamID] }

func newFixture() *fakeDirectory {
	return &fakeDirectory{
		teams:  map[string]string{"eng": "alpha"},
		agents: map[string]bool{"alpha": true, "beta": true, "gamma": true},
		agentTeam: map[string]string{
			"alpha": "eng",
			"beta":  "eng",
		},
		teamMembers: map[string][]string{"eng": {"alpha", "beta"}},
	}
}

func TestResolveTeamRoutesToLeader(t *testing.T) {
	dir := newFixture()
	d, err := Resolve(dir, "@eng please help")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d == nil || d.AgentID != "alpha" {
		t.Fatalf("expected routed to alpha, got %+v", d)
	}
}

func TestResolveDirectAgent(t *testing.T) {
	dir := newFixture()
	d, err := Resolve(dir, "@beta what's the status")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d == nil || d.AgentID != "beta" {
		t.Fatalf("expected routed to beta, got %+v", d)
	}
}

func TestResolveNoMentionReturnsNil(t *testing.T) {
	dir := newFixture()
	d, err := Resolve(dir, "no mention here")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d != nil {
		t.Fatalf("expected nil decision, got %+v", d)
	}
}

func TestResolveAmbiguousMultipleAgents(t *testing.T) {
	dir := newFixture()
	_, err := Resolve(dir, "@alpha can you sync with @gamma on this")
	if err != ErrAmbiguousMention {
		t.Fatalf("expected ErrAmbiguousMention, got %v", err)
	}
}

func TestExtractHandoffsRejectsSenderAndOutsiders(t *testing.T) {
	dir := newFixture()
	resp := "Working on it. [@beta: please review the PR]\n[@alpha: don't loop back to self]\n[@gamma: not on this team]"
	handoffs := ExtractHandoffs(dir, resp, "eng", "alpha")
	if len(handoffs) != 1 || handoffs[0].Agent != "beta" {
		t.Fatalf("expected exactly one handoff to beta, got %+v", handoffs)
	}
	if handoffs[0].Text != "please review the PR" {
		t.Fatalf("unexpected handoff text %q", handoffs[0].Text)
	}
}

func TestExtractHandoffsMultilineNonGreedy(t *testing.T) {
	dir := newFixture()
	resp := "[@beta: line one\nline two] trailing text [@beta: second]"
	handoffs := ExtractHandoffs(dir, resp, "eng", "alpha")
	if len(handoffs) != 2 {
		t.Fatalf("expected 2 handoffs, got %d: %+v", len(handoffs), handoffs)
	}
	if handoffs[0].Text != "line one\nline two" {
		t.Fatalf("unexpected first handoff text %q", handoffs[0].Text)
	}
}
