// Package dispatch is the Queue Processor from spec.md §4.N: a 1s poll of
// the incoming queue that fans work out to one sequential pipeline per
// agentId, invokes the harness, and handles team-conversation aggregation,
// long-response spill, and ack messages. Each agent gets a bounded worker
// goroutine fed by its own per-agent task queue, with panics recovered
// rather than left to take down the whole processor.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/envelope"
	"github.com/tinyagi/tinyagi/internal/harness"
	"github.com/tinyagi/tinyagi/internal/proactive"
	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/router"
	"github.com/tinyagi/tinyagi/internal/store"
)

// Intent is the coarse classification spec.md §4.N step 6 assigns an
// incoming message before routing it.
type Intent string

const (
	IntentQuestion Intent = "question"
	IntentBrowser  Intent = "browser_task"
	IntentEngineer Intent = "engineering_task"
	IntentGeneral  Intent = "general_task"
)

var (
	questionPattern = regexp.MustCompile(`(?i)\?\s*$|^\s*(what|why|how|when|where|who|which|can you|could you|is it|are there)\b`)
	browserPattern  = regexp.MustCompile(`(?i)\b(browse|navigate|click|website|login|checkout|fill\s+out)\b`)
	engineerPattern = regexp.MustCompile(`(?i)\b(install|deploy|npm|git|docker|compile|build|refactor|bug|stack\s*trace|error:)\b`)
)

// ClassifyIntent assigns one of the four coarse intents to a message,
// question taking precedence, then browser, then engineering, defaulting to
// general.
func ClassifyIntent(message string) Intent {
	switch {
	case questionPattern.MatchString(message):
		return IntentQuestion
	case browserPattern.MatchString(message):
		return IntentBrowser
	case engineerPattern.MatchString(message):
		return IntentEngineer
	default:
		return IntentGeneral
	}
}

// completionIndicator matches responses that already announce completion,
// so step 8's "Done!" prefix is never doubled up.
var completionIndicator = regexp.MustCompile(`(?i)^\s*(done|completed|finished|✅|all set)\b`)

// sendFileTag extracts "[send_file: <path>]" markers from a response body.
var sendFileTag = regexp.MustCompile(`\[send_file:\s*([^\]]+)\]`)

// maxResponseChars is the inline length above which a response spills to a
// Markdown attachment, per spec.md §4.N step 8 and the long-response-spill
// invariant.
const maxResponseChars = 4000

// maxTeamMessages is the fixed per-conversation message cap from spec.md
// §3's Conversation invariant.
const maxTeamMessages = 50

// cannedErrorMessage substitutes for an unhandled panic/exception inside the
// harness invocation, per spec.md §4.N step 7.
const cannedErrorMessage = "Something went wrong processing that message. Please try again."

// conversation is the in-memory team aggregation state from spec.md §3,
// deliberately not persisted: lost conversations are superseded by new
// inbound traffic, per spec.md §9's design note.
type conversation struct {
	TeamID        string
	Origin        envelope.Envelope
	Branches      []branchResponse
	Attachments   map[string]bool
	Pending       int
	TotalMessages int
	StartedAt     time.Time
}

type branchResponse struct {
	AgentID string
	Text    string
}

// agentChain is a bounded single-worker task queue for one agentId. Tasks
// submitted to the same chain run strictly in submission order; chains for
// distinct agents run concurrently, replacing the promise-chain-plus-set
// idiom with one goroutine per agent fed by a pending-task slice.
type agentChain struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

func (c *agentChain) submit(task func()) {
	c.mu.Lock()
	c.pending = append(c.pending, task)
	start := !c.running
	if start {
		c.running = true
	}
	c.mu.Unlock()
	if start {
		go c.drain()
	}
}

func (c *agentChain) drain() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		task := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Default().Error("agent chain task panicked", "panic", r)
				}
			}()
			task()
		}()
	}
}

// CallAgent invokes the agentId's model runner to generate or revise text.
type CallAgent func(ctx context.Context, agentID, objective, priorOutput, verifierFeedback string) (string, error)

// CallVerifier invokes the verifying model on a candidate answer.
type CallVerifier func(ctx context.Context, agentID, candidate string) (string, error)

// Processor owns the incoming-queue poll, per-agent chains, and team
// conversation aggregation.
type Processor struct {
	Queue     *queue.Spooler
	Store     *store.Store
	Harness   *harness.Orchestrator
	Directory config.Directory
	AgentIDs  []string

	Proactive      *proactive.Scheduler
	ChatsDir       string
	HarnessEnabled bool

	Agent    CallAgent
	Verifier CallVerifier
	Execute  harness.RouteExecutor

	log *slog.Logger

	mu            sync.Mutex
	queuedFiles   map[string]bool
	chains        map[string]*agentChain
	conversations map[string]*conversation

	cron *cron.Cron
}

// New constructs a Processor. log may be nil.
func New(q *queue.Spooler, s *store.Store, h *harness.Orchestrator, dir config.Directory, agentIDs []string, prosched *proactive.Scheduler, chatsDir string, harnessEnabled bool, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		Queue:          q,
		Store:          s,
		Harness:        h,
		Directory:      dir,
		AgentIDs:       agentIDs,
		Proactive:      prosched,
		ChatsDir:       chatsDir,
		HarnessEnabled: harnessEnabled,
		log:            log.With("component", "dispatch"),
		queuedFiles:    make(map[string]bool),
		chains:         make(map[string]*agentChain),
		conversations:  make(map[string]*conversation),
	}
}

// Tick lists incoming/, claims every file not already queued into a
// per-agent chain, and submits it for processing. Non-blocking: it only
// schedules work, per spec.md §5's "queue tick itself is non-blocking".
func (p *Processor) Tick(ctx context.Context) {
	files, err := p.Queue.ListIncoming()
	if err != nil {
		p.log.Error("list incoming failed", "error", err)
		return
	}

	for _, f := range files {
		p.mu.Lock()
		if p.queuedFiles[f.Name] {
			p.mu.Unlock()
			continue
		}
		p.queuedFiles[f.Name] = true
		p.mu.Unlock()

		agentID, err := p.peekAgentID(f.Path)
		if err != nil {
			p.log.Error("peek envelope failed", "file", f.Name, "error", err)
			p.mu.Lock()
			delete(p.queuedFiles, f.Name)
			p.mu.Unlock()
			continue
		}

		chain := p.chainFor(agentID)
		name := f.Name
		chain.submit(func() {
			p.processOne(ctx, name)
			p.mu.Lock()
			delete(p.queuedFiles, name)
			p.mu.Unlock()
		})
	}
}

// Start runs Tick on a 1s cadence until Stop is called, per spec.md §4.N's
// "poll incoming/ every second".
func (p *Processor) Start(ctx context.Context) {
	p.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	_, _ = p.cron.AddFunc("@every 1s", func() { p.Tick(ctx) })
	p.cron.Start()
}

// Stop halts the ticker. It does not wait for in-flight per-agent chains to
// drain; callers that need a clean shutdown should drain those separately.
func (p *Processor) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

func (p *Processor) chainFor(agentID string) *agentChain {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.chains[agentID]
	if !ok {
		c = &agentChain{}
		p.chains[agentID] = c
	}
	return c
}

// peekAgentID reads (without claiming) the effective agentId for an
// incoming file: the pre-routed field, else an "@agent"/"@team" parse of
// the message, else the default/first configured agent, per spec.md §4.N
// step "peek the file".
func (p *Processor) peekAgentID(path string) (string, error) {
	env, err := envelope.ReadFile(path)
	if err != nil {
		return "", err
	}
	return p.resolveAgent(env), nil
}

func (p *Processor) resolveAgent(env *envelope.Envelope) string {
	if env.Agent != "" && p.Directory.IsAgent(env.Agent) {
		return env.Agent
	}
	if decision, err := router.Resolve(p.Directory, env.Message); err == nil && decision != nil {
		return decision.AgentID
	}
	for _, id := range p.AgentIDs {
		if id == "default" {
			return id
		}
	}
	if len(p.AgentIDs) > 0 {
		return p.AgentIDs[0]
	}
	return "default"
}

// processOne runs the full per-message pipeline (spec.md §4.N steps 1-10).
// A panic during handling is treated like any other exception: the claimed
// file is released back to incoming for retry.
func (p *Processor) processOne(ctx context.Context, name string) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("processOne panicked, releasing file", "file", name, "panic", r)
			_ = p.Queue.Release(name)
		}
	}()

	// Step 1: atomic claim.
	path, err := p.Queue.Claim(name)
	if err != nil {
		p.log.Warn("claim failed, left in incoming for retry", "file", name, "error", err)
		return
	}

	// Step 2: parse envelope.
	env, err := envelope.ReadFile(path)
	if err != nil {
		p.log.Error("parse envelope failed, releasing", "file", name, "error", err)
		_ = p.Queue.Release(name)
		return
	}
	internal := env.IsInternal()

	// Step 2.5: a message naming several distinct agents is an ambiguous
	// mention, per spec.md §4.C: echo it back to the sender unchanged
	// rather than dispatching it anywhere.
	if _, err := router.Resolve(p.Directory, env.Message); errors.Is(err, router.ErrAmbiguousMention) {
		p.echoAmbiguousMention(env, name)
		return
	}

	// Step 3: resolve effective agent.
	agentID := p.resolveAgent(env)
	teamID, hasTeam := p.Directory.TeamForAgent(agentID)

	// Step 4: supersede older blocked runs for external messages.
	if p.HarnessEnabled && !internal && env.SenderID != "" {
		if _, err := p.Store.SupersedeNeedsInput(env.Channel, env.SenderID, time.Now().UTC()); err != nil {
			p.log.Error("supersede needs_input failed", "error", err)
		}
	}

	// Step 5: sibling decoration for internal messages.
	body := env.Message
	if internal {
		if n := p.siblingCount(env.ConversationID); n > 0 {
			body = fmt.Sprintf("[%d other teammate response(s) are still being processed before this reaches you.]\n\n%s", n, body)
		}
	}

	// Step 6: intent classification + ack.
	intent := ClassifyIntent(env.Message)
	if !internal && !strings.EqualFold(env.Channel, "heartbeat") && intent != IntentQuestion && env.SenderID != "" && p.Proactive != nil {
		ack := &envelope.Envelope{
			Channel: env.Channel, Sender: env.Sender, SenderID: env.SenderID,
			Message:   "On it, working on that now.",
			MessageID: fmt.Sprintf("ack_%s", env.MessageID),
			Timestamp: time.Now().UnixMilli(),
		}
		if err := p.Proactive.Enqueue(ack, time.Now(), true); err != nil {
			p.log.Error("ack enqueue failed", "error", err)
		}
	}

	// Step 7: invoke the harness (or a plain agent call if disabled), with
	// the canned error substituted on exception.
	resultText, runErr := p.runHarness(ctx, env, agentID, body)
	if runErr != nil {
		p.log.Error("harness run failed", "file", name, "error", runErr)
		resultText = cannedErrorMessage
	}

	if !hasTeam || teamID == "" {
		p.finishNonTeam(env, intent, resultText, name)
		return
	}
	p.finishTeamBranch(env, agentID, teamID, resultText, name)
}

// echoAmbiguousMention implements spec.md §4.C's ambiguous-mention easter
// egg: a message naming several distinct agents is delivered back to its
// sender verbatim instead of being routed or answered.
func (p *Processor) echoAmbiguousMention(env *envelope.Envelope, name string) {
	out := &envelope.Envelope{
		Channel: env.Channel, Sender: env.Sender, SenderID: env.SenderID,
		Message: env.Message, MessageID: env.MessageID,
	}
	if err := p.deliver(out); err != nil {
		p.log.Error("deliver ambiguous-mention echo failed", "error", err)
		_ = p.Queue.Release(name)
		return
	}
	_ = p.Queue.Complete(name)
}

func (p *Processor) siblingCount(conversationID string) int {
	if conversationID == "" {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	conv, ok := p.conversations[conversationID]
	if !ok {
		return 0
	}
	return conv.Pending
}

// runHarness builds the per-message Request and runs it through the
// harness orchestrator, or falls back to a single un-verified agent call
// when the harness is disabled.
func (p *Processor) runHarness(ctx context.Context, env *envelope.Envelope, agentID, objective string) (string, error) {
	if !p.HarnessEnabled || p.Harness == nil {
		if p.Agent == nil {
			return "", fmt.Errorf("no agent caller configured")
		}
		return p.Agent(ctx, agentID, objective, "", "")
	}

	req := harness.Request{
		ConversationID: env.ConversationID,
		MessageID:      env.MessageID,
		AgentID:        agentID,
		FromAgent:      env.FromAgent,
		Channel:        env.Channel,
		Sender:         env.Sender,
		SenderID:       env.SenderID,
		Objective:      objective,
		UserID:         env.SenderID,
		Generate: func(ctx context.Context, objective, prior, feedback string) (string, error) {
			return p.Agent(ctx, agentID, objective, prior, feedback)
		},
		Revise: func(ctx context.Context, objective, prior, feedback string) (string, error) {
			return p.Agent(ctx, agentID, objective, prior, feedback)
		},
		Verify: func(ctx context.Context, candidate string) (string, error) {
			return p.Verifier(ctx, agentID, candidate)
		},
		Execute: p.Execute,
	}

	outcome, err := p.Harness.Run(ctx, req)
	if err != nil {
		return "", err
	}
	if outcome.Status == store.RunAwaitingApproval {
		return "I need your approval before continuing with that. I'll follow up once it's reviewed.", nil
	}
	return outcome.ResultText, nil
}

// finishNonTeam implements spec.md §4.N step 8: formats, spills, and
// delivers a response for a message with no team context.
func (p *Processor) finishNonTeam(env *envelope.Envelope, intent Intent, text string, name string) {
	if intent != IntentQuestion && !completionIndicator.MatchString(text) {
		text = "Done! Here's what happened:\n\n" + text
	}

	var attachments []envelope.Attachment
	for _, m := range sendFileTag.FindAllStringSubmatch(text, -1) {
		attachments = append(attachments, envelope.Attachment{Path: strings.TrimSpace(m[1])})
	}
	text = sendFileTag.ReplaceAllString(text, "")

	if len(text) > maxResponseChars {
		spillPath, spillErr := p.spillToMarkdown(env.ConversationID+env.MessageID, text)
		if spillErr == nil {
			attachments = append(attachments, envelope.Attachment{Path: spillPath, Name: "response.md"})
			text = strings.TrimSpace(text[:maxResponseChars]) + "\n\n(Full response attached.)"
		} else {
			p.log.Error("spill to markdown failed", "error", spillErr)
		}
	}

	out := &envelope.Envelope{
		Channel: env.Channel, Sender: env.Sender, SenderID: env.SenderID,
		Message: text, MessageID: env.MessageID, Files: attachments,
	}
	if err := p.deliver(out); err != nil {
		p.log.Error("deliver failed", "error", err)
		_ = p.Queue.Release(name)
		return
	}
	_ = p.Queue.Complete(name)
}

func (p *Processor) spillToMarkdown(key, text string) (string, error) {
	dir := filepath.Join(p.Queue.Files, "responses")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	sanitized := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, key)
	path := filepath.Join(dir, sanitized+".md")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (p *Processor) deliver(env *envelope.Envelope) error {
	_, err := p.Queue.EnqueueOutgoing(env, time.Now().UnixMilli())
	if err == nil && p.Store != nil {
		p.Store.IncrementMetric("messages_delivered_count", 1)
	}
	return err
}

// finishTeamBranch implements spec.md §4.N step 9: aggregates one branch's
// response into its Conversation, re-enqueues teammate handoffs, and
// closes out the conversation once every branch has settled.
func (p *Processor) finishTeamBranch(env *envelope.Envelope, agentID, teamID, text, name string) {
	convID := env.ConversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	p.mu.Lock()
	conv, ok := p.conversations[convID]
	if !ok {
		conv = &conversation{
			TeamID:      teamID,
			Origin:      *env,
			Attachments: map[string]bool{},
			Pending:     1,
			StartedAt:   time.Now(),
		}
		p.conversations[convID] = conv
	}
	conv.Branches = append(conv.Branches, branchResponse{AgentID: agentID, Text: text})
	conv.TotalMessages++

	var handoffs []router.Handoff
	if conv.TotalMessages < maxTeamMessages {
		handoffs = router.ExtractHandoffs(p.Directory, text, teamID, agentID)
		conv.Pending += len(handoffs)
	} else {
		p.log.Warn("conversation hit maxMessages, dropping teammate mentions", "conversation_id", convID)
		if p.Store != nil {
			p.Store.IncrementMetric("messages_dropped_count", 1)
		}
	}
	conv.Pending--
	done := conv.Pending == 0
	var final string
	if done {
		final = aggregateBranches(conv.Branches)
		delete(p.conversations, convID)
	}
	p.mu.Unlock()

	for _, h := range handoffs {
		p.enqueueHandoff(convID, agentID, h)
	}

	_ = p.Queue.Complete(name)

	if !done {
		return
	}

	if p.ChatsDir != "" {
		if err := p.writeChatTranscript(convID, conv); err != nil {
			p.log.Error("write chat transcript failed", "error", err)
		}
	}

	out := &envelope.Envelope{
		Channel: conv.Origin.Channel, Sender: conv.Origin.Sender, SenderID: conv.Origin.SenderID,
		Message: final, MessageID: conv.Origin.MessageID,
	}
	if err := p.deliver(out); err != nil {
		p.log.Error("deliver team response failed", "error", err)
	}
}

func (p *Processor) enqueueHandoff(convID, fromAgent string, h router.Handoff) {
	env := &envelope.Envelope{
		Channel:        "internal",
		Agent:          h.Agent,
		Message:        h.Text,
		MessageID:      uuid.New().String(),
		ConversationID: convID,
		FromAgent:      fromAgent,
		Timestamp:      time.Now().UnixMilli(),
	}
	if _, err := p.Queue.EnqueueIncoming(env, time.Now().UnixMilli(), uuid.New().String()[:8]); err != nil {
		p.log.Error("enqueue handoff failed", "error", err)
	}
}

// aggregateBranches implements spec.md §4.N step 9's aggregation rule: a
// single branch's text is returned raw; multiple branches are joined as
// "@agent: text" segments separated by "------".
func aggregateBranches(branches []branchResponse) string {
	if len(branches) == 1 {
		return branches[0].Text
	}
	segments := make([]string, 0, len(branches))
	for _, b := range branches {
		segments = append(segments, fmt.Sprintf("@%s: %s", b.AgentID, b.Text))
	}
	return strings.Join(segments, "\n------\n")
}

func (p *Processor) writeChatTranscript(convID string, conv *conversation) error {
	if err := os.MkdirAll(p.ChatsDir, 0o755); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Team conversation %s\n\n", convID)
	fmt.Fprintf(&b, "Started: %s\n\n", conv.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**%s**: %s\n\n", conv.Origin.Sender, conv.Origin.Message)
	for _, br := range conv.Branches {
		fmt.Fprintf(&b, "## @%s\n\n%s\n\n", br.AgentID, br.Text)
	}
	path := filepath.Join(p.ChatsDir, fmt.Sprintf("%s_%d.md", sanitizeFilename(convID), time.Now().UnixNano()))
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

var filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitizeFilename(s string) string {
	return filenameUnsafe.ReplaceAllString(s, "_")
}
