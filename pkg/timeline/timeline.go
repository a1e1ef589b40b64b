// Package timeline holds the per-conversation message state machine: it
// merges REST history with live socket events into one ordered,
// deduplicated sequence, drives delivery/read acknowledgments, and tracks
// typing and deletion.
package timeline

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devknot/devknot-cli/pkg/latest"
	"github.com/devknot/devknot-cli/pkg/model"
	"github.com/devknot/devknot-cli/pkg/rest"
	"github.com/devknot/devknot-cli/pkg/sched"
	"github.com/devknot/devknot-cli/pkg/transport"
)

// HistoryLoader fetches the durable message log for a conversation pair.
type HistoryLoader interface {
	History(ctx context.Context, selfID, peerID string) ([]model.Message, error)
}

// Uploader stores attachment bytes and returns their served location.
type Uploader interface {
	Upload(ctx context.Context, fileName string, r io.Reader) (*rest.Uploaded, error)
}

type LoadState int

const (
	LoadIdle LoadState = iota
	LoadInProgress
	LoadFailed
	LoadDone
)

const (
	defaultSeenDelay   = 700 * time.Millisecond
	defaultQuietWindow = 800 * time.Millisecond
	defaultTypingTTL   = 3 * time.Second
)

type Config struct {
	SelfID   string
	SelfName string
	PeerID   string

	// SeenDelay separates the seen ack from the delivered ack so reads
	// look like reads, not an instant auto-receipt.
	SeenDelay time.Duration

	// QuietWindow is the pause after the last keystroke before stopTyping.
	QuietWindow time.Duration

	// TypingTTL clears the peer's typing flag when their typing events
	// stop arriving without an explicit stopTyping.
	TypingTTL time.Duration
}

// Timeline owns the in-memory message sequence for one conversation.
// Nothing else mutates messages; views read snapshots. Live events append
// in arrival order after the history seed; already-rendered messages are
// never reordered.
type Timeline struct {
	cfg      Config
	key      string
	bus      transport.Bus
	loader   HistoryLoader
	uploader Uploader
	log      *zap.Logger
	notify   func()

	mu         sync.Mutex
	msgs       []*model.Message
	byID       map[string]*model.Message
	loadState  LoadState
	peerTyping bool
	seenTimers map[string]*time.Timer
	closed     bool

	gate      latest.Gate
	quiet     sched.Debouncer // composer stop-typing
	peerQuiet sched.Debouncer // peer typing TTL
	group     transport.Group
}

func New(cfg Config, bus transport.Bus, loader HistoryLoader, uploader Uploader, log *zap.Logger) *Timeline {
	if cfg.SeenDelay <= 0 {
		cfg.SeenDelay = defaultSeenDelay
	}
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = defaultQuietWindow
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = defaultTypingTTL
	}
	return &Timeline{
		cfg:        cfg,
		key:        model.ConversationKey(cfg.SelfID, cfg.PeerID),
		bus:        bus,
		loader:     loader,
		uploader:   uploader,
		log:        log.With(zap.String("conversation", model.ConversationKey(cfg.SelfID, cfg.PeerID))),
		byID:       make(map[string]*model.Message),
		seenTimers: make(map[string]*time.Timer),
	}
}

// SetNotify registers a callback invoked after every state change, for the
// view to schedule a redraw. Must be set before Open.
func (tl *Timeline) SetNotify(fn func()) {
	tl.notify = fn
}

// Open joins the conversation on the socket and registers all live-event
// listeners. Every subscription is tracked so Close can undo them all.
func (tl *Timeline) Open() error {
	tl.group.On(tl.bus, model.EventMessageReceived, tl.onMessageReceived)
	tl.group.On(tl.bus, model.EventTyping, tl.onTyping)
	tl.group.On(tl.bus, model.EventStopTyping, tl.onStopTyping)
	tl.group.On(tl.bus, model.EventMessageStatusUpdated, tl.onStatusUpdated)
	tl.group.On(tl.bus, model.EventMessageDeleted, tl.onMessageDeleted)

	if err := tl.bus.Emit(model.EventJoinChat, model.JoinChatPayload{
		FirstName:    tl.cfg.SelfName,
		UserID:       tl.cfg.SelfID,
		TargetUserID: tl.cfg.PeerID,
	}); err != nil {
		return err
	}
	return tl.bus.Emit(model.EventCheckUserOnline, model.CheckUserOnlinePayload{
		TargetUserID: tl.cfg.PeerID,
	})
}

// Load fetches history and seeds the timeline. Only the most recent load
// may land: a response arriving after a newer load was started is
// discarded. Live messages that arrived while the load was in flight are
// kept, appended after the history seed in their original arrival order.
func (tl *Timeline) Load(ctx context.Context) {
	ticket := tl.gate.Arm()

	tl.mu.Lock()
	tl.loadState = LoadInProgress
	tl.mu.Unlock()

	go func() {
		history, err := tl.loader.History(ctx, tl.cfg.SelfID, tl.cfg.PeerID)

		tl.mu.Lock()
		if tl.closed || !ticket.Live() {
			tl.mu.Unlock()
			return
		}
		if err != nil {
			tl.loadState = LoadFailed
			tl.mu.Unlock()
			tl.log.Warn("history load failed", zap.Error(err))
			tl.changed()
			return
		}

		seeded := make([]*model.Message, 0, len(history)+len(tl.msgs))
		byID := make(map[string]*model.Message, len(history)+len(tl.msgs))
		for i := range history {
			m := history[i]
			if _, dup := byID[m.ID]; dup {
				continue
			}
			seeded = append(seeded, &m)
			byID[m.ID] = &m
		}
		for _, live := range tl.msgs {
			if _, dup := byID[live.ID]; dup {
				continue
			}
			seeded = append(seeded, live)
			byID[live.ID] = live
		}
		tl.msgs = seeded
		tl.byID = byID
		tl.loadState = LoadDone
		tl.mu.Unlock()
		tl.changed()
	}()
}

func (tl *Timeline) onMessageReceived(data json.RawMessage) {
	var p model.MessageReceivedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		tl.log.Warn("bad messageReceived payload", zap.Error(err))
		return
	}

	msg := tl.fromReceived(p)

	tl.mu.Lock()
	if tl.closed {
		tl.mu.Unlock()
		return
	}
	if _, dup := tl.byID[msg.ID]; dup {
		tl.mu.Unlock()
		return
	}
	tl.msgs = append(tl.msgs, msg)
	tl.byID[msg.ID] = msg

	fromPeer := !msg.Self(tl.cfg.SelfID)
	if fromPeer {
		// One delivered ack now and one seen ack after the delay, both
		// exactly once per message id: the dedupe above is the guard.
		id := msg.ID
		tl.seenTimers[id] = time.AfterFunc(tl.cfg.SeenDelay, func() {
			tl.mu.Lock()
			delete(tl.seenTimers, id)
			closed := tl.closed
			tl.mu.Unlock()
			if !closed {
				tl.emit(model.EventMessageSeen, model.MessageRefPayload{MessageID: id})
			}
		})
	}
	tl.mu.Unlock()

	if fromPeer {
		tl.emit(model.EventMessageDelivered, model.MessageRefPayload{MessageID: msg.ID})
	}
	tl.changed()
}

func (tl *Timeline) fromReceived(p model.MessageReceivedPayload) *model.Message {
	m := &model.Message{
		ID:           p.ID,
		Conversation: tl.key,
		SenderID:     p.UserID,
		SenderName:   p.FirstName,
		SenderPhoto:  p.PhotoURL,
		Body:         p.Text,
		Type:         p.MessageType,
		Status:       model.MessageStatus(p.Status),
	}
	if m.Type == "" {
		m.Type = model.TypeText
	}
	if m.Status.Rank() < 0 {
		m.Status = model.StatusSent
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.CreatedAt); err == nil {
		m.CreatedAt = ts
	} else {
		m.CreatedAt = time.Now()
	}
	if m.Type != model.TypeText && p.FileURL != "" {
		m.Attachment = &model.Attachment{
			URL:      p.FileURL,
			FileName: p.FileName,
			MimeType: p.MimeType,
			ByteSize: p.FileSize,
		}
	}
	return m
}

// onStatusUpdated applies a status transition. Transitions are monotonic:
// a regressing update (delivered after seen) is dropped, so out-of-order
// delivery is harmless.
func (tl *Timeline) onStatusUpdated(data json.RawMessage) {
	var p model.MessageStatusUpdatedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		tl.log.Warn("bad messageStatusUpdated payload", zap.Error(err))
		return
	}

	tl.mu.Lock()
	m, ok := tl.byID[p.MessageID]
	if !ok || tl.closed {
		tl.mu.Unlock()
		return
	}
	if p.Status.Rank() <= m.Status.Rank() {
		tl.mu.Unlock()
		return
	}
	m.Status = p.Status
	tl.mu.Unlock()
	tl.changed()
}

func (tl *Timeline) onMessageDeleted(data json.RawMessage) {
	var p model.MessageRefPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		tl.log.Warn("bad messageDeleted payload", zap.Error(err))
		return
	}

	tl.mu.Lock()
	m, ok := tl.byID[p.MessageID]
	if !ok || tl.closed {
		tl.mu.Unlock()
		return
	}
	m.MarkDeleted()
	tl.mu.Unlock()
	tl.changed()
}

func (tl *Timeline) onTyping(data json.RawMessage) {
	var p model.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == tl.cfg.SelfID {
		return
	}

	tl.mu.Lock()
	tl.peerTyping = true
	tl.mu.Unlock()

	tl.peerQuiet.Arm(tl.cfg.TypingTTL, func() {
		tl.mu.Lock()
		tl.peerTyping = false
		tl.mu.Unlock()
		tl.changed()
	})
	tl.changed()
}

func (tl *Timeline) onStopTyping(data json.RawMessage) {
	var p model.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == tl.cfg.SelfID {
		return
	}

	tl.peerQuiet.Stop()
	tl.mu.Lock()
	tl.peerTyping = false
	tl.mu.Unlock()
	tl.changed()
}

// Send announces a text message. Whitespace-only input is a no-op. The
// message is not appended locally: it renders when the server round-trips
// the messageReceived event.
func (tl *Timeline) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if err := tl.bus.Emit(model.EventSendMessage, model.SendMessagePayload{
		FirstName:    tl.cfg.SelfName,
		UserID:       tl.cfg.SelfID,
		TargetUserID: tl.cfg.PeerID,
		Text:         text,
		MessageType:  model.TypeText,
	}); err != nil {
		return err
	}

	tl.quiet.Stop()
	return tl.bus.Emit(model.EventStopTyping, model.TypingPayload{
		UserID:       tl.cfg.SelfID,
		TargetUserID: tl.cfg.PeerID,
	})
}

// ComposerActivity reports one keystroke: it announces typing and re-arms
// the quiet timer. Only one stop-typing timer is ever pending; each
// keystroke replaces it.
func (tl *Timeline) ComposerActivity() {
	tl.emit(model.EventTyping, model.TypingPayload{
		UserID:       tl.cfg.SelfID,
		TargetUserID: tl.cfg.PeerID,
	})
	tl.quiet.Arm(tl.cfg.QuietWindow, func() {
		tl.emit(model.EventStopTyping, model.TypingPayload{
			UserID:       tl.cfg.SelfID,
			TargetUserID: tl.cfg.PeerID,
		})
	})
}

// RequestDelete asks the server to delete one of our own messages. The
// tombstone lands when the messageDeleted event comes back.
func (tl *Timeline) RequestDelete(messageID string) error {
	tl.mu.Lock()
	m, ok := tl.byID[messageID]
	own := ok && m.Self(tl.cfg.SelfID) && !m.Deleted
	tl.mu.Unlock()
	if !own {
		return nil
	}
	return tl.bus.Emit(model.EventDeleteMessage, model.MessageRefPayload{MessageID: messageID})
}

// SendAttachment uploads the file and announces it as an image or file
// message depending on the stored MIME type. An upload failure sends
// nothing.
func (tl *Timeline) SendAttachment(ctx context.Context, fileName string, r io.Reader) error {
	up, err := tl.uploader.Upload(ctx, fileName, r)
	if err != nil {
		return err
	}

	kind := model.TypeFile
	if strings.HasPrefix(up.MimeType, "image/") {
		kind = model.TypeImage
	}
	return tl.bus.Emit(model.EventSendMessage, model.SendMessagePayload{
		FirstName:    tl.cfg.SelfName,
		UserID:       tl.cfg.SelfID,
		TargetUserID: tl.cfg.PeerID,
		MessageType:  kind,
		FileURL:      up.FileURL,
		FileName:     up.FileName,
		MimeType:     up.MimeType,
		FileSize:     up.FileSize,
	})
}

// Messages returns a snapshot of the rendered sequence.
func (tl *Timeline) Messages() []model.Message {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	out := make([]model.Message, len(tl.msgs))
	for i, m := range tl.msgs {
		out[i] = *m
	}
	return out
}

// PeerTyping reports whether the peer is currently typing.
func (tl *Timeline) PeerTyping() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.peerTyping
}

// State reports the history load state.
func (tl *Timeline) State() LoadState {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.loadState
}

// LastSelfStatus returns the status of the most recent self-authored
// message. Only this one is surfaced as a label; earlier self statuses are
// tracked but not shown.
func (tl *Timeline) LastSelfStatus() (model.MessageStatus, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for i := len(tl.msgs) - 1; i >= 0; i-- {
		if tl.msgs[i].Self(tl.cfg.SelfID) {
			return tl.msgs[i].Status, true
		}
	}
	return "", false
}

// Close tears the conversation down: every listener registered by Open is
// unsubscribed and all pending timers are cancelled. A stale history load
// completing afterwards is discarded.
func (tl *Timeline) Close() {
	tl.mu.Lock()
	if tl.closed {
		tl.mu.Unlock()
		return
	}
	tl.closed = true
	timers := tl.seenTimers
	tl.seenTimers = make(map[string]*time.Timer)
	tl.mu.Unlock()

	tl.group.Close()
	tl.quiet.Stop()
	tl.peerQuiet.Stop()
	for _, t := range timers {
		t.Stop()
	}
}

func (tl *Timeline) emit(event string, payload any) {
	if err := tl.bus.Emit(event, payload); err != nil {
		tl.log.Warn("emit failed", zap.String("event", event), zap.Error(err))
	}
}

func (tl *Timeline) changed() {
	if tl.notify != nil {
		tl.notify()
	}
}
