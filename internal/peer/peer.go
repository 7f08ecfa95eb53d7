// Package peer holds the data model for remote endpoints and the registry
// that indexes them by identity and by transport address.
package peer

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/rudp/internal/protocol"
)

// Peer is a remote endpoint tracked by identity and address.
type Peer struct {
	// Identity, fixed when the peer is first recognized.
	ID   uuid.UUID
	Addr net.Addr

	// Liveness
	LastSeen time.Time // last accepted datagram from the peer
	LastSent time.Time // last datagram written to the peer

	// Sequenced channel state, nil for the Basic variant. Owned by the
	// socket and never exposed through Snapshot.
	Acks  *protocol.AckState
	Order *protocol.Reorderer
}

// New creates a peer first seen (or first dialed) at now.
func New(id uuid.UUID, addr net.Addr, now time.Time) *Peer {
	return &Peer{
		ID:       id,
		Addr:     addr,
		LastSeen: now,
		LastSent: now,
	}
}

// Snapshot returns a copy safe to hand to code outside the owning socket.
func (p *Peer) Snapshot() Peer {
	c := *p
	c.Acks = nil
	c.Order = nil
	return c
}

// TimedOut reports whether nothing has been heard from the peer for longer
// than timeout.
func (p *Peer) TimedOut(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.LastSeen) > timeout
}

// NeedsKeepAlive reports whether nothing has been sent to the peer for at
// least interval.
func (p *Peer) NeedsKeepAlive(now time.Time, interval time.Duration) bool {
	return now.Sub(p.LastSent) >= interval
}

func (p *Peer) String() string {
	if p.Addr == nil {
		return p.ID.String()
	}
	return p.ID.String() + "@" + p.Addr.String()
}
