package peer

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
)

var (
	// ErrAddressInUse is returned when inserting a peer whose address is
	// already held by a live peer.
	ErrAddressInUse = errors.New("address already bound to a live peer")

	// ErrDuplicateID is returned when inserting a peer whose id is already
	// registered.
	ErrDuplicateID = errors.New("peer id already registered")
)

// Registry indexes live peers by id and by address. Every peer appears
// under exactly one address and no two peers share one.
//
// Registry is not safe for concurrent use; its owner serializes access.
type Registry struct {
	byID   map[uuid.UUID]*Peer
	byAddr map[string]*Peer
	order  []uuid.UUID // insertion order, for deterministic scans
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]*Peer),
		byAddr: make(map[string]*Peer),
	}
}

// AddrKey returns the lookup key for a transport address.
func AddrKey(a net.Addr) string {
	return a.Network() + "/" + a.String()
}

// FindByAddr looks up the live peer bound to addr.
func (r *Registry) FindByAddr(addr net.Addr) (*Peer, bool) {
	p, ok := r.byAddr[AddrKey(addr)]
	return p, ok
}

// FindByID looks up a live peer by identity.
func (r *Registry) FindByID(id uuid.UUID) (*Peer, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Insert adds p. It fails without side effects if p's id or address is
// already taken.
func (r *Registry) Insert(p *Peer) error {
	key := AddrKey(p.Addr)
	if other, ok := r.byAddr[key]; ok {
		return fmt.Errorf("%w: %s held by %s", ErrAddressInUse, p.Addr, other.ID)
	}
	if _, ok := r.byID[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
	}
	r.byID[p.ID] = p
	r.byAddr[key] = p
	r.order = append(r.order, p.ID)
	return nil
}

// Remove deletes the peer with the given id and returns it.
func (r *Registry) Remove(id uuid.UUID) (*Peer, bool) {
	p, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	delete(r.byAddr, AddrKey(p.Addr))
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true
}

// ForEach calls fn for every live peer in insertion order. fn must not
// insert or remove peers; collect ids and mutate afterwards instead.
func (r *Registry) ForEach(fn func(*Peer)) {
	for _, id := range r.order {
		fn(r.byID[id])
	}
}

// Snapshot returns the live peers in insertion order.
func (r *Registry) Snapshot() []*Peer {
	out := make([]*Peer, 0, len(r.order))
	r.ForEach(func(p *Peer) { out = append(out, p) })
	return out
}

// Len returns the number of live peers.
func (r *Registry) Len() int { return len(r.byID) }
