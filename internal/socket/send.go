package socket

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/rudp/internal/peer"
	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/util"
)

// outbound is a datagram framed under the lock and written after it is
// released.
type outbound struct {
	buf    *[]byte
	addr   net.Addr
	pooled bool
}

// frameLocked builds the next datagram for p, stamping sequence and ack
// state for sequenced variants, and marks p as sent to.
func (s *Socket) frameLocked(p *peer.Peer, payload []byte, now time.Time) outbound {
	h := protocol.NewHeader(s.cfg.Variant, s.self)
	if s.cfg.Variant.Sequenced() {
		h.Sequence = p.Acks.NextSequence()
		h.Ack, h.AckBits = p.Acks.Ack()
		switch {
		case s.cfg.Variant != protocol.ReliableOrder:
			h.AckBits = 0
		case len(payload) > 0:
			// Keep-alives consume a sequence but are never tracked.
			p.Acks.Sent(h.Sequence, now)
		}
	}
	p.LastSent = now
	return outbound{buf: s.frames.Frame(h, payload), addr: p.Addr, pooled: true}
}

func (s *Socket) write(o outbound) error {
	if o.pooled {
		defer s.frames.Put(o.buf)
	}
	b := *o.buf
	if _, err := s.conn.WriteTo(b, o.addr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("send to %v: %w", o.addr, err)
	}
	util.Stats.AddSent(len(b))
	return nil
}

// SendTo frames payload for the peer and writes it. For sequenced variants
// it returns the sequence stamped on the datagram.
func (s *Socket) SendTo(id uuid.UUID, payload []byte) (uint16, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	p, ok := s.peers.FindByID(id)
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	var seq uint16
	if p.Acks != nil {
		seq = p.Acks.LocalSequence()
	}
	o := s.frameLocked(p, payload, now)
	s.mu.Unlock()

	return seq, s.write(o)
}

// SendRaw writes datagram to the peer unmodified. The caller supplies the
// header; the socket only refreshes the peer's last-sent time.
func (s *Socket) SendRaw(id uuid.UUID, datagram []byte) error {
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	p, ok := s.peers.FindByID(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	p.LastSent = now
	addr := p.Addr
	s.mu.Unlock()

	return s.write(outbound{buf: &datagram, addr: addr})
}

// Broadcast sends payload to every peer registered at the time of the call.
// Peers that leave while the broadcast is in progress still get their copy.
// Write failures are collected and returned together.
func (s *Socket) Broadcast(payload []byte) error {
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	out := make([]outbound, 0, s.peers.Len())
	s.peers.ForEach(func(p *peer.Peer) {
		out = append(out, s.frameLocked(p, payload, now))
	})
	s.mu.Unlock()

	var errs []error
	for _, o := range out {
		if err := s.write(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connect resolves address and registers it as a peer without waiting for
// it to speak first. A keep-alive is sent so the remote side learns about
// this socket. The returned peer carries a locally generated id.
func (s *Socket) Connect(address string) (peer.Peer, error) {
	if s.resolver == nil {
		return peer.Peer{}, ErrNoResolver
	}
	addr, err := s.resolver.ResolveUDPAddr("udp", address)
	if err != nil {
		return peer.Peer{}, fmt.Errorf("resolve %s: %w", address, err)
	}
	return s.ConnectAddr(addr)
}

// ConnectAddr is Connect for an already resolved address.
func (s *Socket) ConnectAddr(addr net.Addr) (peer.Peer, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return peer.Peer{}, ErrClosed
	}
	if _, ok := s.peers.FindByAddr(addr); ok {
		s.mu.Unlock()
		return peer.Peer{}, fmt.Errorf("%w: %s", ErrAlreadyConnected, addr)
	}
	p := s.newPeerLocked(uuid.New(), addr, now)
	snap := p.Snapshot()
	o := s.frameLocked(p, nil, now)
	s.mu.Unlock()

	return snap, s.write(o)
}

// Disconnect tells the peer this socket is hanging up and removes it. The
// disconnect event fires for the local sink as well.
func (s *Socket) Disconnect(id uuid.UUID) error {
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	p, ok := s.peers.FindByID(id)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	o := s.frameLocked(p, DisconnectMarker, now)
	util.Stats.AddDisconnect()
	s.removeLocked(p, evDisconnect)
	s.mu.Unlock()

	return s.write(o)
}
