package unread

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/devknot/devknot-cli/pkg/model"
	"github.com/devknot/devknot-cli/pkg/transport"
)

// Ledger counts unread messages per sender. Counts exist only for the
// lifetime of the session: they are built from live messageNotification
// events and are not reloaded from the server. A message that arrived while
// the client was offline is counted only if the server replays its event.
type Ledger struct {
	log *zap.Logger

	mu     sync.RWMutex
	counts map[string]int
	active string // peer id of the open conversation, "" when none
	selfID string
	group  *transport.Group
}

func NewLedger(log *zap.Logger) *Ledger {
	return &Ledger{
		log:    log,
		counts: make(map[string]int),
	}
}

// Bind subscribes the ledger to notification events for the given session.
// Rebinding tears down the previous subscription first.
func (l *Ledger) Bind(bus transport.Bus, selfID string) {
	l.mu.Lock()
	if l.group != nil {
		l.group.Close()
	}
	group := &transport.Group{}
	l.group = group
	l.selfID = selfID
	l.mu.Unlock()

	group.On(bus, model.EventMessageNotification, func(data json.RawMessage) {
		var p model.MessageNotificationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			l.log.Warn("bad message notification", zap.Error(err))
			return
		}
		l.HandleNotification(p.FromUserID)
	})
}

// HandleNotification increments the sender's count unless the sender is
// self or their conversation is the one currently open.
func (l *Ledger) HandleNotification(fromUserID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fromUserID == "" || fromUserID == l.selfID || fromUserID == l.active {
		return
	}
	l.counts[fromUserID]++
}

// SetActive marks a conversation as open and clears its unread count.
// Pass "" when no conversation is open.
func (l *Ledger) SetActive(peerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = peerID
	if peerID != "" {
		delete(l.counts, peerID)
	}
}

// Count returns the unread count for one sender.
func (l *Ledger) Count(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[userID]
}

// Total returns the sum across all senders, for the nav badge.
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}

// Reset drops all counts and detaches listeners. Used on logout.
func (l *Ledger) Reset() {
	l.mu.Lock()
	group := l.group
	l.group = nil
	l.counts = make(map[string]int)
	l.active = ""
	l.selfID = ""
	l.mu.Unlock()

	if group != nil {
		group.Close()
	}
}
