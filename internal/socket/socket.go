// Package socket implements a peer-aware datagram socket. It recognizes peers
// by address, keeps them alive, times them out, and optionally layers
// sequencing, acknowledgement and in-order delivery on top of the carrier.
package socket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/1ureka/rudp/internal/peer"
	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/util"
)

var (
	ErrClosed           = errors.New("socket closed")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrAlreadyConnected = errors.New("address already connected")
	ErrNoResolver       = errors.New("no resolver configured")
)

// DisconnectMarker is the payload of the control datagram a socket sends
// when it hangs up on a peer.
var DisconnectMarker = []byte{0xFF, 'R', 'U', 'D', 'P', 'B', 'Y', 'E'}

// IsDisconnect reports whether payload is the disconnect control message.
func IsDisconnect(payload []byte) bool {
	return bytes.Equal(payload, DisconnectMarker)
}

// Socket owns one datagram endpoint and the peers reached through it.
//
// Registry state is guarded by mu. The reader goroutine, the timer goroutine
// and application calls all take it; events produced under the lock are
// queued and handed to the sink by a separate dispatch goroutine.
type Socket struct {
	cfg      Config
	conn     net.PacketConn
	sink     EventSink
	clock    Clock
	resolver Resolver
	self     uuid.UUID

	mu     sync.Mutex
	peers  *peer.Registry
	closed bool

	frames  *protocol.FramePool
	events  *eventQueue
	dropLog *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	wg        conc.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// New wraps conn. The socket is inert until Start.
func New(conn net.PacketConn, cfg Config, sink EventSink, opts ...Option) *Socket {
	if sink == nil {
		sink = SinkFuncs{}
	}
	cfg = cfg.withDefaults()
	if !cfg.Variant.Valid() {
		panic(fmt.Sprintf("socket: invalid variant %d", cfg.Variant))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		cfg:     cfg,
		conn:    conn,
		sink:    sink,
		clock:   systemClock{},
		self:    uuid.New(),
		peers:   peer.NewRegistry(),
		frames:  protocol.NewFramePool(cfg.BufferSize),
		events:  newEventQueue(),
		dropLog: rate.NewLimiter(rate.Every(time.Second), 5),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the reader, the timer and the event dispatcher. It returns
// immediately; the goroutines stop when ctx is cancelled or Close is called.
func (s *Socket) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go func() {
			select {
			case <-ctx.Done():
				s.Close()
			case <-s.ctx.Done():
			}
		}()

		s.wg.Go(s.readLoop)
		s.wg.Go(s.timerLoop)
		s.wg.Go(func() { s.events.run(s.ctx, s.sink) })
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
}

// Close stops the socket and closes the carrier. Queued events are
// discarded and no callback starts after Close returns. It is safe to call
// from inside a callback.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.events.stop()
		s.cancel()
		err = s.conn.Close()
		// Never started: nothing will close done.
		s.startOnce.Do(func() { close(s.done) })
		util.LogDebug("socket %s closed", s.self)
	})
	return err
}

// Done is closed once every goroutine started by Start has exited, or by
// Close when the socket was never started.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Self returns the id this socket stamps on outbound datagrams.
func (s *Socket) Self() uuid.UUID { return s.self }

// LocalAddr returns the carrier's local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Variant returns the wire variant the socket speaks.
func (s *Socket) Variant() protocol.Variant { return s.cfg.Variant }

// Peers returns a snapshot of the registry in first-seen order.
func (s *Socket) Peers() []peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]peer.Peer, 0, s.peers.Len())
	s.peers.ForEach(func(p *peer.Peer) {
		out = append(out, p.Snapshot())
	})
	return out
}

// Peer returns a snapshot of the peer with the given id.
func (s *Socket) Peer(id uuid.UUID) (peer.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers.FindByID(id)
	if !ok {
		return peer.Peer{}, false
	}
	return p.Snapshot(), true
}

// ---------------------------------------------------------------------------
// Goroutines
// ---------------------------------------------------------------------------

func (s *Socket) readLoop() {
	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			util.LogWarning("socket read: %v", err)
			continue
		}
		s.handleDatagram(buf[:n], addr)
	}
}

func (s *Socket) timerLoop() {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(s.clock.Now())
		case <-s.ctx.Done():
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

// handleDatagram is the single entry point for inbound datagrams.
func (s *Socket) handleDatagram(raw []byte, addr net.Addr) {
	pkt, err := protocol.Parse(s.cfg.Variant, raw)
	if err != nil {
		s.drop(addr, err)
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	p, known := s.peers.FindByAddr(addr)
	if !known {
		if IsDisconnect(pkt.Payload) {
			s.drop(addr, errors.New("disconnect from unknown address"))
			return
		}
		if other, taken := s.peers.FindByID(pkt.Header.PeerID); taken {
			s.drop(addr, fmt.Errorf("peer %s already live at %s", other.ID, other.Addr))
			return
		}
		p = s.newPeerLocked(pkt.Header.PeerID, addr, now)
	}

	p.LastSeen = now
	util.Stats.AddRecv(len(raw))

	if IsDisconnect(pkt.Payload) {
		util.LogDebug("peer %s hung up", p)
		util.Stats.AddDisconnect()
		s.removeLocked(p, evDisconnect)
		return
	}

	switch s.cfg.Variant {
	case protocol.Basic:
		s.deliverLocked(p, pkt)
	case protocol.TimeCritical:
		s.receiveLatestLocked(p, pkt)
	case protocol.ReliableOrder:
		s.receiveOrderedLocked(p, pkt, now)
	}
}

// receiveLatestLocked delivers only packets newer than anything seen before.
func (s *Socket) receiveLatestLocked(p *peer.Peer, pkt *protocol.Packet) {
	seq := pkt.Header.Sequence
	last, seen := p.Acks.RemoteSequence()
	fresh := !seen || protocol.MoreRecent(seq, last)
	p.Acks.Received(seq)
	if !fresh {
		return
	}
	s.deliverLocked(p, pkt)
}

// receiveOrderedLocked applies the peer's acknowledgements and feeds the
// packet through duplicate detection and the reorder buffer.
func (s *Socket) receiveOrderedLocked(p *peer.Peer, pkt *protocol.Packet, now time.Time) {
	acked, lost := p.Acks.Acknowledge(pkt.Header.Ack, pkt.Header.AckBits)
	s.reportLocked(p, acked, lost)

	if !p.Acks.Received(pkt.Header.Sequence) {
		return
	}
	ready, skipped := p.Order.Feed(pkt, now)
	s.releaseLocked(p, ready, skipped)
}

func (s *Socket) releaseLocked(p *peer.Peer, ready []*protocol.Packet, skipped []uint16) {
	if len(skipped) > 0 {
		util.LogDebug("peer %s: gave up on %d sequences from %d", p, len(skipped), skipped[0])
	}
	for _, r := range ready {
		s.deliverLocked(p, r)
	}
}

// deliverLocked queues a receive event. Empty payloads are keep-alives.
func (s *Socket) deliverLocked(p *peer.Peer, pkt *protocol.Packet) {
	if len(pkt.Payload) == 0 {
		return
	}
	s.events.push(event{kind: evReceive, peer: p.Snapshot(), pkt: pkt})
}

func (s *Socket) reportLocked(p *peer.Peer, acked, lost []uint16) {
	if len(acked) > 0 {
		s.events.push(event{kind: evDelivered, peer: p.Snapshot(), seqs: acked})
	}
	if len(lost) > 0 {
		util.Stats.AddLost(len(lost))
		s.events.push(event{kind: evLost, peer: p.Snapshot(), seqs: lost})
	}
}

func (s *Socket) drop(addr net.Addr, err error) {
	util.Stats.AddDrop()
	if s.dropLog.Allow() {
		util.LogDebug("dropped datagram from %v: %v", addr, err)
	}
}

// ---------------------------------------------------------------------------
// Registry transitions
// ---------------------------------------------------------------------------

// newPeerLocked registers a peer and queues its connect event. The caller
// has already checked that neither id nor addr is taken.
func (s *Socket) newPeerLocked(id uuid.UUID, addr net.Addr, now time.Time) *peer.Peer {
	p := peer.New(id, addr, now)
	if s.cfg.Variant.Sequenced() {
		p.Acks = protocol.NewAckState(s.cfg.InitialSequence)
	}
	if s.cfg.Variant == protocol.ReliableOrder {
		p.Order = protocol.NewReorderer()
	}
	if err := s.peers.Insert(p); err != nil {
		panic(fmt.Sprintf("socket: registry out of sync: %v", err))
	}
	util.Stats.AddConnect()
	util.LogDebug("peer %s connected", p)
	s.events.push(event{kind: evConnect, peer: p.Snapshot()})
	return p
}

// removeLocked drops p from the registry and queues kind for it.
func (s *Socket) removeLocked(p *peer.Peer, kind eventKind) {
	if _, ok := s.peers.Remove(p.ID); !ok {
		panic(fmt.Sprintf("socket: removing unregistered peer %s", p))
	}
	s.events.push(event{kind: kind, peer: p.Snapshot()})
}

// ---------------------------------------------------------------------------
// Timer
// ---------------------------------------------------------------------------

// tick runs one pass of the timer: time out silent peers, expire stale
// in-flight sequences, flush stuck reorder gaps, and keep quiet peers alive.
func (s *Socket) tick(now time.Time) {
	var out []outbound

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, p := range s.peers.Snapshot() {
		if p.TimedOut(now, s.cfg.ConnectionTimeout) {
			util.LogDebug("peer %s timed out", p)
			util.Stats.AddTimeout()
			s.removeLocked(p, evTimeout)
			continue
		}
		if s.cfg.Variant == protocol.ReliableOrder {
			s.reportLocked(p, nil, p.Acks.Expire(now.Add(-s.cfg.AckTimeout)))
			ready, skipped := p.Order.Flush(now, s.cfg.ReorderTimeout)
			s.releaseLocked(p, ready, skipped)
		}
		if p.NeedsKeepAlive(now, s.cfg.KeepAliveInterval) {
			out = append(out, s.frameLocked(p, nil, now))
		}
	}
	s.mu.Unlock()

	for _, o := range out {
		if err := s.write(o); err != nil {
			util.LogDebug("keep-alive: %v", err)
		}
	}
}
