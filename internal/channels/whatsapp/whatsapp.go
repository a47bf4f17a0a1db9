// Package whatsapp is the WhatsApp channel adapter: a thin shell around
// whatsmeow that only knows how to turn WhatsApp messages into queue
// envelopes and queue envelopes back into WhatsApp messages. Wire-level
// protocol handling belongs to whatsmeow; this package never touches
// protobuf types directly beyond the message struct whatsmeow itself
// requires for SendMessage.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/tinyagi/tinyagi/internal/channels"
	"github.com/tinyagi/tinyagi/internal/envelope"
	"github.com/tinyagi/tinyagi/internal/queue"
)

// Config holds WhatsApp adapter configuration, a subset of settings.json's
// channels.whatsapp block.
type Config struct {
	DatabasePath    string `json:"database_path" yaml:"database_path"`
	SelfChatOnly    bool   `json:"self_chat_only" yaml:"self_chat_only"`
	RespondToGroups bool   `json:"respond_to_groups" yaml:"respond_to_groups"`
}

// Adapter implements channels.Adapter over a whatsmeow client.
type Adapter struct {
	cfg    Config
	queue  *queue.Spooler
	log    *slog.Logger
	client *whatsmeow.Client
}

// New constructs a WhatsApp adapter. Incoming messages are written to
// q.Incoming; outgoing delivery happens via Deliver, driven by
// channels.RunOutgoingLoop.
func New(cfg Config, q *queue.Spooler, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{cfg: cfg, queue: q, log: log.With("component", "channels.whatsapp")}
}

// Name returns "whatsapp".
func (a *Adapter) Name() string { return "whatsapp" }

// Connect opens (or creates) the whatsmeow session store, builds the
// client, and registers the event handler. A device with no prior session
// runs the QR login flow in the background; the code is logged rather than
// shown in a UI, since this adapter has no dashboard of its own.
func (a *Adapter) Connect(ctx context.Context) error {
	dbPath := a.cfg.DatabasePath
	if dbPath == "" {
		dbPath = "whatsapp.db"
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath), waLog.Noop)
	if err != nil {
		return fmt.Errorf("whatsapp: open session store: %w", err)
	}

	device, err := a.getDevice(ctx, container)
	if err != nil {
		return fmt.Errorf("whatsapp: get device: %w", err)
	}
	store.SetOSInfo("tinyagi", [3]uint32{1, 0, 0})

	a.client = whatsmeow.NewClient(device, waLog.Noop)
	a.client.AddEventHandler(a.handleEvent)
	a.client.EnableAutoReconnect = true
	a.client.InitialAutoReconnect = true

	if a.client.Store.ID == nil {
		go a.loginWithQR(ctx)
		return nil
	}

	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	a.log.Info("whatsapp: connected with existing session", "jid", a.clientJID())
	return nil
}

// Disconnect closes the whatsmeow connection.
func (a *Adapter) Disconnect() error {
	if a.client != nil {
		a.client.Disconnect()
	}
	return nil
}

func (a *Adapter) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

func (a *Adapter) clientJID() string {
	if a.client != nil && a.client.Store.ID != nil {
		return a.client.Store.ID.String()
	}
	return ""
}

// loginWithQR drives the first-login QR flow, logging the scannable code
// instead of streaming it to a web UI.
func (a *Adapter) loginWithQR(ctx context.Context) {
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		a.log.Error("whatsapp: get QR channel failed", "error", err)
		return
	}
	if err := a.client.Connect(); err != nil {
		a.log.Error("whatsapp: connect for QR failed", "error", err)
		return
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			a.log.Info("whatsapp: scan this QR code to link the device", "code", evt.Code)
		case "success":
			a.log.Info("whatsapp: linked successfully", "jid", a.clientJID())
			return
		case "timeout":
			a.log.Warn("whatsapp: QR code expired")
			return
		default:
			if evt.Error != nil {
				a.log.Error("whatsapp: QR login error", "error", evt.Error)
				return
			}
		}
	}
}

// handleEvent is whatsmeow's single event dispatch point.
func (a *Adapter) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Message:
		a.handleMessage(evt)
	case *events.Disconnected:
		a.log.Warn("whatsapp: disconnected")
	case *events.LoggedOut:
		a.log.Warn("whatsapp: session logged out, QR login required again")
	}
}

func (a *Adapter) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.Chat.Server == "broadcast" {
		return
	}
	if evt.Info.IsGroup && !a.cfg.RespondToGroups {
		return
	}

	text := messageText(evt)
	if text == "" {
		return
	}

	env := &envelope.Envelope{
		Channel:   "whatsapp",
		Sender:    evt.Info.PushName,
		SenderID:  evt.Info.Chat.String(),
		Message:   text,
		MessageID: string(evt.Info.ID),
		Timestamp: evt.Info.Timestamp.UnixMilli(),
	}
	if err := channels.EnqueueInbound(a.queue, env); err != nil {
		a.log.Error("whatsapp: enqueue inbound failed", "error", err)
	}
}

// messageText extracts the plain text body from a whatsmeow message,
// covering the two shapes a conversational text message arrives in.
func messageText(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if conv := evt.Message.GetConversation(); conv != "" {
		return conv
	}
	if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// Deliver sends env.Message to the chat identified by env.SenderID, the
// convention the queue contract uses for an outgoing reply's destination.
func (a *Adapter) Deliver(ctx context.Context, env *envelope.Envelope) error {
	if a.client == nil {
		return fmt.Errorf("whatsapp: client not connected")
	}
	jid, err := parseJID(env.SenderID)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid recipient %q: %w", env.SenderID, err)
	}
	text := env.Message
	waMsg := &waE2E.Message{Conversation: &text}
	_, err = a.client.SendMessage(ctx, jid, waMsg)
	return err
}

func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

var _ channels.Adapter = (*Adapter)(nil)
