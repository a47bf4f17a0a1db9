// Package channels hosts the external channel adapters (whatsapp, discord).
// Per spec.md §1's scope note, the wire-level protocol for each platform is
// out of scope; an adapter's only job is translating platform events into
// queue envelopes and draining the outgoing/ directory back out to the
// platform. Adapters never call into the Queue Processor directly.
package channels

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinyagi/tinyagi/internal/envelope"
	"github.com/tinyagi/tinyagi/internal/queue"
)

// Adapter is satisfied by every channel (whatsapp, discord, ...).
type Adapter interface {
	// Name identifies the channel, matching envelope.Envelope.Channel.
	Name() string

	// Connect opens the platform connection and starts forwarding inbound
	// messages into the queue. It returns once connected; delivery continues
	// in the background until ctx is cancelled.
	Connect(ctx context.Context) error

	// Disconnect closes the platform connection.
	Disconnect() error

	// Deliver sends one outgoing envelope to the platform.
	Deliver(ctx context.Context, env *envelope.Envelope) error
}

// outgoingPollInterval is how often RunOutgoingLoop drains outgoing/.
const outgoingPollInterval = 500 * time.Millisecond

// RunOutgoingLoop polls q.Outgoing for envelopes addressed to adapter's
// channel and delivers each one, removing the file on success and leaving
// it for retry on failure. It blocks until ctx is cancelled.
func RunOutgoingLoop(ctx context.Context, q *queue.Spooler, adapter Adapter, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "channels", "channel", adapter.Name())

	ticker := time.NewTicker(outgoingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drainOutgoing(ctx, q, adapter, log)
		}
	}
}

func drainOutgoing(ctx context.Context, q *queue.Spooler, adapter Adapter, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	files, err := q.ListOutgoing()
	if err != nil {
		log.Error("list outgoing failed", "error", err)
		return
	}
	for _, f := range files {
		env, err := q.ReadOutgoing(f.Name)
		if err != nil {
			log.Error("read outgoing failed", "file", f.Name, "error", err)
			continue
		}
		if env.Channel != adapter.Name() {
			continue
		}
		if err := adapter.Deliver(ctx, env); err != nil {
			log.Error("deliver failed, leaving for retry", "file", f.Name, "error", err)
			continue
		}
		if err := q.CompleteOutgoing(f.Name); err != nil {
			log.Error("complete outgoing failed", "file", f.Name, "error", err)
		}
	}
}

// nowMillis is the shared enqueue timestamp helper for adapter inbound paths.
func nowMillis() int64 { return time.Now().UnixMilli() }

// EnqueueInbound writes a platform message into incoming/ under the
// adapter-prefixed filename, the single point where an adapter touches the
// queue contract on the inbound side.
func EnqueueInbound(q *queue.Spooler, env *envelope.Envelope) error {
	if env.Timestamp == 0 {
		env.Timestamp = nowMillis()
	}
	_, err := q.EnqueueExternal(env)
	return err
}
