package socket

import (
	"context"
	"sync"

	"github.com/1ureka/rudp/internal/peer"
	"github.com/1ureka/rudp/internal/protocol"
)

// EventSink receives peer lifecycle and data events. Calls are made one at a
// time from a single dispatch goroutine, in the order the socket observed the
// events, so a sink may call back into the socket freely.
type EventSink interface {
	OnConnect(p *peer.Peer)
	OnReceive(pkt *protocol.Packet, p *peer.Peer)
	OnDisconnect(p *peer.Peer)
	OnTimeout(p *peer.Peer)
}

// DeliveryObserver is implemented by sinks that want the outcome of
// ReliableOrder sends. Sequences are reported oldest first. Only sequences
// that carried a payload are tracked; keep-alives never show up here.
type DeliveryObserver interface {
	OnDelivered(p *peer.Peer, seqs []uint16)
	OnLost(p *peer.Peer, seqs []uint16)
}

// SinkFuncs adapts plain functions to EventSink and DeliveryObserver. Nil
// fields are skipped.
type SinkFuncs struct {
	Connect    func(p *peer.Peer)
	Receive    func(pkt *protocol.Packet, p *peer.Peer)
	Disconnect func(p *peer.Peer)
	Timeout    func(p *peer.Peer)
	Delivered  func(p *peer.Peer, seqs []uint16)
	Lost       func(p *peer.Peer, seqs []uint16)
}

func (f SinkFuncs) OnConnect(p *peer.Peer) {
	if f.Connect != nil {
		f.Connect(p)
	}
}

func (f SinkFuncs) OnReceive(pkt *protocol.Packet, p *peer.Peer) {
	if f.Receive != nil {
		f.Receive(pkt, p)
	}
}

func (f SinkFuncs) OnDisconnect(p *peer.Peer) {
	if f.Disconnect != nil {
		f.Disconnect(p)
	}
}

func (f SinkFuncs) OnTimeout(p *peer.Peer) {
	if f.Timeout != nil {
		f.Timeout(p)
	}
}

func (f SinkFuncs) OnDelivered(p *peer.Peer, seqs []uint16) {
	if f.Delivered != nil {
		f.Delivered(p, seqs)
	}
}

func (f SinkFuncs) OnLost(p *peer.Peer, seqs []uint16) {
	if f.Lost != nil {
		f.Lost(p, seqs)
	}
}

// ---------------------------------------------------------------------------
// Event queue
// ---------------------------------------------------------------------------

type eventKind uint8

const (
	evConnect eventKind = iota
	evReceive
	evDisconnect
	evTimeout
	evDelivered
	evLost
)

type event struct {
	kind eventKind
	peer peer.Peer
	pkt  *protocol.Packet
	seqs []uint16
}

// eventQueue is an unbounded FIFO between the socket's state transitions and
// the dispatch goroutine. push never blocks, so transitions can be queued
// while the registry lock is held.
type eventQueue struct {
	mu     sync.Mutex
	items  []event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(e event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop returns the oldest event, or false when the queue is empty or stopped.
func (q *eventQueue) pop() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		return event{}, false
	}
	e := q.items[0]
	q.items[0] = event{}
	q.items = q.items[1:]
	return e, true
}

// stop discards queued events and rejects new ones.
func (q *eventQueue) stop() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
}

// run delivers events to sink until ctx is cancelled.
func (q *eventQueue) run(ctx context.Context, sink EventSink) {
	observer, _ := sink.(DeliveryObserver)
	for {
		select {
		case <-q.signal:
		case <-ctx.Done():
			return
		}
		for {
			e, ok := q.pop()
			if !ok {
				break
			}
			dispatch(sink, observer, e)
		}
	}
}

func dispatch(sink EventSink, observer DeliveryObserver, e event) {
	p := &e.peer
	switch e.kind {
	case evConnect:
		sink.OnConnect(p)
	case evReceive:
		sink.OnReceive(e.pkt, p)
	case evDisconnect:
		sink.OnDisconnect(p)
	case evTimeout:
		sink.OnTimeout(p)
	case evDelivered:
		if observer != nil {
			observer.OnDelivered(p, e.seqs)
		}
	case evLost:
		if observer != nil {
			observer.OnLost(p, e.seqs)
		}
	}
}
