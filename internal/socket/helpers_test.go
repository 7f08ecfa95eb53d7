package socket

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/rudp/internal/peer"
	"github.com/1ureka/rudp/internal/protocol"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeAddr string

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return string(a) }

type written struct {
	data []byte
	addr net.Addr
}

// recordConn records writes and blocks reads until closed. failWrite, when
// set, can fail the n-th write attempt; failed writes are not recorded.
type recordConn struct {
	mu        sync.Mutex
	writes    []written
	attempts  int
	onWrite   func(n int)
	failWrite func(n int) error
	closed    chan struct{}
	once      sync.Once
}

func newRecordConn() *recordConn {
	return &recordConn{closed: make(chan struct{})}
}

func (c *recordConn) ReadFrom(b []byte) (int, net.Addr, error) {
	<-c.closed
	return 0, nil, net.ErrClosed
}

func (c *recordConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	c.attempts++
	if c.failWrite != nil {
		if err := c.failWrite(c.attempts); err != nil {
			c.mu.Unlock()
			return 0, err
		}
	}
	c.writes = append(c.writes, written{data: append([]byte(nil), b...), addr: addr})
	n := len(c.writes)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return len(b), nil
}

func (c *recordConn) Written() []written {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]written(nil), c.writes...)
}

func (c *recordConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *recordConn) LocalAddr() net.Addr                { return fakeAddr("10.0.0.1:9000") }
func (c *recordConn) SetDeadline(t time.Time) error      { return nil }
func (c *recordConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *recordConn) SetWriteDeadline(t time.Time) error { return nil }

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// recorder is a sink that keeps every event as a short string.
type recorder struct {
	mu     sync.Mutex
	events []string
	peers  []peer.Peer
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) add(s string, p *peer.Peer) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.peers = append(r.peers, *p)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) OnConnect(p *peer.Peer)    { r.add("connect", p) }
func (r *recorder) OnDisconnect(p *peer.Peer) { r.add("disconnect", p) }
func (r *recorder) OnTimeout(p *peer.Peer)    { r.add("timeout", p) }
func (r *recorder) OnReceive(pkt *protocol.Packet, p *peer.Peer) {
	r.add("receive "+string(pkt.Payload), p)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Peers() []peer.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peer.Peer(nil), r.peers...)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestSocket builds a socket that is never started; tests drive it via
// handleDatagram and tick and deliver events with flush.
func newTestSocket(v protocol.Variant, sink EventSink) (*Socket, *recordConn, *manualClock) {
	conn := newRecordConn()
	clock := newManualClock()
	s := New(conn, Config{Variant: v}, sink, WithClock(clock))
	return s, conn, clock
}

// flush dispatches queued events synchronously.
func flush(s *Socket) {
	observer, _ := s.sink.(DeliveryObserver)
	for {
		e, ok := s.events.pop()
		if !ok {
			return
		}
		dispatch(s.sink, observer, e)
	}
}

func datagram(v protocol.Variant, from uuid.UUID, seq uint16, payload string) []byte {
	h := protocol.NewHeader(v, from)
	h.Sequence = seq
	return protocol.Frame(h, []byte(payload))
}

func ackDatagram(from uuid.UUID, seq, ack uint16, bits uint32, payload string) []byte {
	h := protocol.NewHeader(protocol.ReliableOrder, from)
	h.Sequence = seq
	h.Ack = ack
	h.AckBits = bits
	return protocol.Frame(h, []byte(payload))
}
