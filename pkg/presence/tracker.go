package presence

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devknot/devknot-cli/pkg/model"
	"github.com/devknot/devknot-cli/pkg/transport"
)

// Entry is one user's connectivity as last reported by the server.
type Entry struct {
	IsOnline   bool
	LastSeenAt time.Time // zero when never reported
}

// Tracker maintains the online/last-seen map for every user this session
// has heard about. It is populated by a snapshot after authentication and
// mutated incrementally by userOnlineStatus events. Presence is
// best-effort: malformed events are dropped, never fatal.
type Tracker struct {
	log *zap.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	group   *transport.Group
}

func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{
		log:     log,
		entries: make(map[string]Entry),
	}
}

// OnAuthenticated announces the user to the peer service and requests the
// online-users snapshot. Idempotent: calling again first tears down the
// listeners registered by the previous call, so handlers are never
// duplicated.
func (t *Tracker) OnAuthenticated(bus transport.Bus, selfID string) error {
	t.mu.Lock()
	if t.group != nil {
		t.group.Close()
	}
	group := &transport.Group{}
	t.group = group
	t.mu.Unlock()

	group.On(bus, model.EventOnlineUsersSnapshot, func(data json.RawMessage) {
		var p model.OnlineUsersSnapshotPayload
		if err := json.Unmarshal(data, &p); err != nil {
			t.log.Warn("bad online snapshot", zap.Error(err))
			return
		}
		t.ApplySnapshot(p.Users)
	})
	group.On(bus, model.EventUserOnlineStatus, func(data json.RawMessage) {
		var p model.UserOnlineStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			t.log.Warn("bad online status event", zap.Error(err))
			return
		}
		t.ApplyStatusEvent(p)
	})

	if err := bus.Emit(model.EventRegisterUser, model.RegisterUserPayload{UserID: selfID}); err != nil {
		return err
	}
	return bus.Emit(model.EventGetOnlineUsers, nil)
}

// ApplySnapshot marks every listed user online. Users absent from the
// snapshot are left untouched; the snapshot does not imply they are
// offline.
func (t *Tracker) ApplySnapshot(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		e := t.entries[id]
		e.IsOnline = true
		t.entries[id] = e
	}
}

// ApplyStatusEvent records one incremental presence change. LastSeen is
// recorded only on a transition to offline that carries a value, and is
// never cleared once set.
func (t *Tracker) ApplyStatusEvent(p model.UserOnlineStatusPayload) {
	if p.UserID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[p.UserID]
	e.IsOnline = p.IsOnline
	if !p.IsOnline && p.LastSeen != "" {
		if ts, err := time.Parse(time.RFC3339, p.LastSeen); err == nil {
			e.LastSeenAt = ts
		} else {
			t.log.Warn("unparseable lastSeen", zap.String("userId", p.UserID), zap.String("lastSeen", p.LastSeen))
		}
	}
	t.entries[p.UserID] = e
}

// IsOnline reports whether the user is currently known to be online.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[userID].IsOnline
}

// LastSeen returns the recorded last-seen time, if any.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.entries[userID]
	return e.LastSeenAt, !e.LastSeenAt.IsZero()
}

// Reset clears all presence state and detaches listeners. Used on logout.
func (t *Tracker) Reset() {
	t.mu.Lock()
	group := t.group
	t.group = nil
	t.entries = make(map[string]Entry)
	t.mu.Unlock()

	if group != nil {
		group.Close()
	}
}

// FormatRelative renders a last-seen timestamp as a human string with
// coarse precision buckets. It returns "" for a zero timestamp and for
// times in the future: a negative delta means clock skew, not "just now".
func FormatRelative(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	delta := now.Sub(ts)
	if delta < 0 {
		return ""
	}

	mins := int(delta.Minutes())
	hours := int(delta.Hours())
	days := hours / 24
	switch {
	case mins < 1:
		return "just now"
	case mins < 60:
		return fmt.Sprintf("%d min ago", mins)
	case hours < 24:
		return plural(hours, "hour")
	case days < 7:
		return plural(days, "day")
	default:
		return "a while ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
