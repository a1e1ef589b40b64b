package presence

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devknot/devknot-cli/pkg/model"
	"github.com/devknot/devknot-cli/pkg/transport"
)

// fakeBus records emits and delivers pushed events synchronously.
type fakeBus struct {
	mu       sync.Mutex
	emits    []string
	nextID   int
	handlers map[string]map[int]transport.Handler
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]map[int]transport.Handler)}
}

func (b *fakeBus) Emit(event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emits = append(b.emits, event)
	return nil
}

func (b *fakeBus) On(event string, h transport.Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[event] == nil {
		b.handlers[event] = make(map[int]transport.Handler)
	}
	b.nextID++
	id := b.nextID
	b.handlers[event][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[event], id)
	}
}

func (b *fakeBus) push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	b.mu.Lock()
	hs := make([]transport.Handler, 0, len(b.handlers[event]))
	for _, h := range b.handlers[event] {
		hs = append(hs, h)
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

func (b *fakeBus) handlerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[event])
}

func TestOnAuthenticatedRegistersAndRequestsSnapshot(t *testing.T) {
	bus := newFakeBus()
	tr := NewTracker(zap.NewNop())

	require.NoError(t, tr.OnAuthenticated(bus, "self"))
	assert.Equal(t, []string{model.EventRegisterUser, model.EventGetOnlineUsers}, bus.emits)

	bus.push(t, model.EventOnlineUsersSnapshot, model.OnlineUsersSnapshotPayload{Users: []string{"a", "b"}})
	assert.True(t, tr.IsOnline("a"))
	assert.True(t, tr.IsOnline("b"))
	assert.False(t, tr.IsOnline("c"))
}

func TestOnAuthenticatedIsIdempotent(t *testing.T) {
	bus := newFakeBus()
	tr := NewTracker(zap.NewNop())

	require.NoError(t, tr.OnAuthenticated(bus, "self"))
	require.NoError(t, tr.OnAuthenticated(bus, "self"))

	// The second call must have torn down the first call's listeners.
	assert.Equal(t, 1, bus.handlerCount(model.EventOnlineUsersSnapshot))
	assert.Equal(t, 1, bus.handlerCount(model.EventUserOnlineStatus))
}

func TestSnapshotDoesNotMarkAbsentUsersOffline(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	tr.ApplySnapshot([]string{"a"})
	tr.ApplyStatusEvent(model.UserOnlineStatusPayload{UserID: "b", IsOnline: true})

	tr.ApplySnapshot([]string{"a"})
	assert.True(t, tr.IsOnline("b"), "snapshot must leave unlisted users untouched")
}

func TestStatusEventRecordsLastSeenOnlyOnOffline(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	seen := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	tr.ApplyStatusEvent(model.UserOnlineStatusPayload{UserID: "a", IsOnline: true, LastSeen: seen.Format(time.RFC3339)})
	_, ok := tr.LastSeen("a")
	assert.False(t, ok, "lastSeen must not be recorded while online")

	tr.ApplyStatusEvent(model.UserOnlineStatusPayload{UserID: "a", IsOnline: false, LastSeen: seen.Format(time.RFC3339)})
	got, ok := tr.LastSeen("a")
	require.True(t, ok)
	assert.True(t, got.Equal(seen))

	// Offline event without a value leaves the recorded time alone.
	tr.ApplyStatusEvent(model.UserOnlineStatusPayload{UserID: "a", IsOnline: false})
	got, ok = tr.LastSeen("a")
	require.True(t, ok)
	assert.True(t, got.Equal(seen))
}

func TestStatusEventIgnoresMissingUserID(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	tr.ApplyStatusEvent(model.UserOnlineStatusPayload{IsOnline: true})
	assert.False(t, tr.IsOnline(""))
}

func TestResetClearsEverything(t *testing.T) {
	tr := NewTracker(zap.NewNop())
	tr.ApplySnapshot([]string{"a"})
	tr.Reset()
	assert.False(t, tr.IsOnline("a"))
}

func TestFormatRelativeBuckets(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{"zero seconds", 0, "just now"},
		{"59s", 59 * time.Second, "just now"},
		{"60s", 60 * time.Second, "1 min ago"},
		{"3599s", 3599 * time.Second, "59 min ago"},
		{"3600s", 3600 * time.Second, "1 hour ago"},
		{"two hours", 2 * time.Hour, "2 hours ago"},
		{"86399s", 86399 * time.Second, "23 hours ago"},
		{"86400s", 86400 * time.Second, "1 day ago"},
		{"six days", 6 * 24 * time.Hour, "6 days ago"},
		{"seven days", 7 * 24 * time.Hour, "a while ago"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatRelative(now.Add(-tc.ago), now))
		})
	}
}

func TestFormatRelativeRejectsInvalidInput(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	assert.Empty(t, FormatRelative(time.Time{}, now), "zero time")
	assert.Empty(t, FormatRelative(now.Add(time.Minute), now), "future time is clock skew, not just now")
}
