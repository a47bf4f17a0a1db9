// Package proactive is the Proactive Scheduler from spec.md §4.M: a 60s
// tick that flushes the quiet-hours deferred outbox, enumerates and sends
// the daily digest once per target per day, and nudges blocked runs with a
// contextual reminder. A single-purpose ticker with a reentrancy guard and
// panic recovery around the handler, adapted here from per-job cron entries to
// one fixed-interval tick running three ordered steps.
package proactive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/envelope"
	"github.com/tinyagi/tinyagi/internal/memory"
	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/store"
)

// blockedMinAge is how long a run must sit in needs_input/awaiting_approval
// before it is eligible for outreach.
const blockedMinAge = 10 * time.Minute

// blockedMaxAge: runs blocked longer than this are no longer nudged.
const blockedMaxAge = 24 * time.Hour

// outreachMinGap is the minimum time between two outreach events for the
// same run.
const outreachMinGap = 4 * time.Hour

// outreachMaxCount caps how many times a single run is nudged.
const outreachMaxCount = 3

// Repository is the subset of *store.Store the scheduler needs.
type Repository interface {
	DigestTargetsSince(cutoff time.Time) ([]store.DigestTarget, error)
	DigestAlreadySent(date, channel, senderID string) (bool, error)
	MarkDigestSent(date, channel, senderID string) error
	ListBlockedRunsForOutreach(minAge time.Duration) ([]*store.Run, error)
	OutreachHistoryForRun(runID string) (store.OutreachHistory, error)
	RecordOutreach(runID, senderID string) error
	RecordEvent(runID, kind, detail string) error
	IncrementMetric(name string, delta float64)
}

// Scheduler owns the quiet-hours deferred outbox, digest timing, and
// blocked-run outreach.
type Scheduler struct {
	Store    Repository
	Queue    *queue.Spooler
	Hours    config.QuietHours
	DigestAt string // HH:MM local
	RawDir   string // memory/raw
	DailyDir string // memory/daily
	Deferred string // path to the JSONL deferred-outbox file

	log *slog.Logger

	mu      sync.Mutex
	running bool

	cron *cron.Cron
}

// New builds a Scheduler. log may be nil.
func New(repo Repository, q *queue.Spooler, hours config.QuietHours, digestAt, rawDir, dailyDir, deferredPath string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		Store:    repo,
		Queue:    q,
		Hours:    hours,
		DigestAt: digestAt,
		RawDir:   rawDir,
		DailyDir: dailyDir,
		Deferred: deferredPath,
		log:      log.With("component", "proactive"),
	}
}

// Start registers the 60s tick with a cron scheduler and begins running it.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	_, _ = s.cron.AddFunc("@every 60s", func() { s.tick(ctx, time.Now()) })
	s.cron.Start()
}

// Stop halts the ticker, waiting for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// tick runs one pass, guarded by a reentrancy flag so overlapping ticks
// never run concurrently, and recovers from panics so one bad step doesn't
// kill the ticker.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("skipping proactive tick (previous tick still running)")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if r := recover(); r != nil {
			s.log.Error("proactive tick panicked", "panic", r)
		}
	}()

	s.Tick(ctx, now)
}

// Tick runs the three ordered steps for a given instant. Exported so tests
// and a driving CLI can invoke a single pass without a live ticker.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	if err := s.FlushDeferred(now); err != nil {
		s.log.Error("flush deferred outbox failed", "error", err)
	}
	if err := s.RunDigestIfDue(now); err != nil {
		s.log.Error("digest step failed", "error", err)
	}
	if err := s.RunBlockedOutreach(now); err != nil {
		s.log.Error("blocked outreach step failed", "error", err)
	}
}

// InQuietHours reports whether local clock time t falls inside the
// configured [start, end) window, which may wrap past midnight.
func InQuietHours(hours config.QuietHours, t time.Time) bool {
	start, okStart := parseClock(hours.Start)
	end, okEnd := parseClock(hours.End)
	if !okStart || !okEnd || start == end {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	if start < end {
		return cur >= start && cur < end
	}
	// Wrap-around window, e.g. 22:00 to 07:00.
	return cur >= start || cur < end
}

func parseClock(hhmm string) (minutes int, ok bool) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// deferredLine is one JSONL row in the deferred outbox file.
type deferredLine struct {
	Envelope envelope.Envelope `json:"envelope"`
}

// Enqueue sends env immediately if outside quiet hours (or urgent bypasses
// the window entirely), otherwise buffers it in the deferred outbox for the
// next flush, per spec.md §4.M.
func (s *Scheduler) Enqueue(env *envelope.Envelope, now time.Time, urgent bool) error {
	if urgent || !InQuietHours(s.Hours, now) {
		_, err := s.Queue.EnqueueOutgoing(env, now.UnixMilli())
		if err == nil {
			s.Store.IncrementMetric("messages_delivered_count", 1)
		}
		return err
	}
	return s.deferAppend(env)
}

func (s *Scheduler) deferAppend(env *envelope.Envelope) error {
	f, err := os.OpenFile(s.Deferred, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open deferred outbox: %w", err)
	}
	defer f.Close()
	data, err := json.Marshal(deferredLine{Envelope: *env})
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// FlushDeferred moves every buffered deferred message into the outgoing
// queue and truncates the buffer, but only while outside quiet hours, per
// spec.md §4.M step 1.
func (s *Scheduler) FlushDeferred(now time.Time) error {
	if InQuietHours(s.Hours, now) {
		return nil
	}

	f, err := os.Open(s.Deferred)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open deferred outbox: %w", err)
	}

	var lines []deferredLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var dl deferredLine
		if err := json.Unmarshal(raw, &dl); err != nil {
			continue
		}
		lines = append(lines, dl)
	}
	f.Close()
	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("read deferred outbox: %w", scanErr)
	}
	if len(lines) == 0 {
		return nil
	}

	for _, dl := range lines {
		env := dl.Envelope
		if _, err := s.Queue.EnqueueOutgoing(&env, now.UnixMilli()); err != nil {
			s.log.Error("failed to flush deferred message", "error", err)
		} else {
			s.Store.IncrementMetric("messages_delivered_count", 1)
		}
	}

	// Truncate only after every line has been handed to the outgoing queue.
	if err := os.Truncate(s.Deferred, 0); err != nil {
		return fmt.Errorf("truncate deferred outbox: %w", err)
	}
	s.log.Info("flushed deferred outbox", "count", len(lines))
	return nil
}

// RunDigestIfDue enumerates digest targets and sends each its daily summary
// once per calendar day, per spec.md §4.M step 2.
func (s *Scheduler) RunDigestIfDue(now time.Time) error {
	cur, ok := parseClock(fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute()))
	digestAt, okAt := parseClock(s.DigestAt)
	if !ok || !okAt || cur != digestAt {
		return nil
	}

	targets, err := s.Store.DigestTargetsSince(now.Add(-24 * time.Hour))
	if err != nil {
		return fmt.Errorf("enumerate digest targets: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}

	date := now.UTC().Format("2006-01-02")
	summary, err := memory.BuildDailySummary(s.RawDir, s.DailyDir, now.UTC())
	if err != nil {
		return fmt.Errorf("build daily summary: %w", err)
	}

	for _, t := range targets {
		sent, err := s.Store.DigestAlreadySent(date, t.Channel, t.SenderID)
		if err != nil {
			s.log.Error("check digest sent failed", "error", err)
			continue
		}
		if sent {
			continue
		}

		env := &envelope.Envelope{
			Channel:   t.Channel,
			Sender:    t.SenderID,
			SenderID:  t.SenderID,
			Message:   summary,
			Timestamp: now.UnixMilli(),
			MessageID: fmt.Sprintf("digest_%s_%s_%d", t.Channel, t.SenderID, now.UnixNano()),
		}
		if err := s.Enqueue(env, now, false); err != nil {
			s.log.Error("enqueue digest failed", "channel", t.Channel, "error", err)
			continue
		}
		if err := s.Store.MarkDigestSent(date, t.Channel, t.SenderID); err != nil {
			s.log.Error("mark digest sent failed", "error", err)
		}
	}
	return nil
}

// RunBlockedOutreach nudges runs that have sat in needs_input or
// awaiting_approval for at least blockedMinAge, skipping runs blocked
// longer than blockedMaxAge or already nudged too recently/too often, per
// spec.md §4.M step 3.
func (s *Scheduler) RunBlockedOutreach(now time.Time) error {
	runs, err := s.Store.ListBlockedRunsForOutreach(blockedMinAge)
	if err != nil {
		return fmt.Errorf("list blocked runs: %w", err)
	}

	for _, r := range runs {
		if now.Sub(r.UpdatedAt) > blockedMaxAge {
			continue
		}

		hist, err := s.Store.OutreachHistoryForRun(r.RunID)
		if err != nil {
			s.log.Error("outreach history lookup failed", "run_id", r.RunID, "error", err)
			continue
		}
		if hist.Count >= outreachMaxCount {
			continue
		}
		if hist.Count > 0 && now.Sub(hist.LastSentAt) < outreachMinGap {
			continue
		}

		env := &envelope.Envelope{
			Channel:   r.Channel,
			Sender:    r.SenderID,
			SenderID:  r.SenderID,
			Message:   reminderText(r),
			Timestamp: now.UnixMilli(),
			MessageID: fmt.Sprintf("outreach_%s_%d", r.RunID, now.UnixNano()),
		}
		if err := s.Enqueue(env, now, false); err != nil {
			s.log.Error("enqueue outreach failed", "run_id", r.RunID, "error", err)
			continue
		}
		if err := s.Store.RecordOutreach(r.RunID, r.SenderID); err != nil {
			s.log.Error("record outreach failed", "run_id", r.RunID, "error", err)
			continue
		}
		_ = s.Store.RecordEvent(r.RunID, "proactive_outreach", "")
	}
	return nil
}

func reminderText(r *store.Run) string {
	switch r.Status {
	case store.RunAwaitingApproval:
		return fmt.Sprintf("Still waiting on your approval for: %s", r.Objective)
	default:
		return fmt.Sprintf("Still need a bit more from you on: %s", r.Objective)
	}
}
