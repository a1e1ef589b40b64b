// Package latest implements a "latest request wins" gate for async fetches.
//
// Each in-flight request arms the gate and holds the returned ticket. When
// the response arrives, the ticket is checked: if a newer request has been
// armed in the meantime the ticket is stale and the response must be
// discarded. Requests are not aborted in flight; only their results are
// dropped.
package latest

import "sync/atomic"

type Gate struct {
	seq atomic.Uint64
}

type Ticket struct {
	gate *Gate
	n    uint64
}

// Arm registers a new in-flight request and invalidates all earlier tickets.
func (g *Gate) Arm() Ticket {
	return Ticket{gate: g, n: g.seq.Add(1)}
}

// Live reports whether this ticket still represents the most recent request.
func (t Ticket) Live() bool {
	return t.gate != nil && t.gate.seq.Load() == t.n
}
