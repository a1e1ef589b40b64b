package transport

import "sync"

// Group collects the unsubscribe halves of a set of subscriptions so a view
// scope (one open conversation, one session) can tear all of them down in
// one call. Subscribing through the group guarantees every On has a
// matching unsubscribe, even across rapid navigation.
type Group struct {
	mu      sync.Mutex
	cancels []func()
	closed  bool
}

// On subscribes through the bus and records the unsubscribe function.
// If the group is already closed the subscription is undone immediately.
func (g *Group) On(bus Bus, event string, h Handler) {
	unsub := bus.On(event, h)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		unsub()
		return
	}
	g.cancels = append(g.cancels, unsub)
	g.mu.Unlock()
}

// Close unsubscribes everything registered so far. Idempotent.
func (g *Group) Close() {
	g.mu.Lock()
	cancels := g.cancels
	g.cancels = nil
	g.closed = true
	g.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
