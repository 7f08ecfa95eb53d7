package protocol

import (
	"container/heap"
	"time"
)

// Reorderer releases sequenced packets in sequence order. Packets that arrive
// ahead of a gap are buffered until the gap fills, the buffer runs more than
// AckWindow past it, or Flush finds it stale. Skipped sequences are reported
// so the caller can account for them.
//
// It is used under the owner's lock and needs no locking of its own.
type Reorderer struct {
	expected uint16
	started  bool
	buffer   pendingHeap
}

// NewReorderer creates an empty reorderer. The first packet fed sets the
// starting sequence.
func NewReorderer() *Reorderer {
	return &Reorderer{}
}

// Expected returns the next sequence the reorderer will release.
func (r *Reorderer) Expected() uint16 { return r.expected }

// Pending returns the number of buffered packets.
func (r *Reorderer) Pending() int { return r.buffer.Len() }

// Feed processes an incoming packet and returns every packet that can now be
// released in order, plus any sequences given up on to release them.
func (r *Reorderer) Feed(pkt *Packet, now time.Time) (ready []*Packet, skipped []uint16) {
	seq := pkt.Header.Sequence
	if !r.started {
		r.started = true
		r.expected = seq
	}

	if seq != r.expected && !MoreRecent(seq, r.expected) {
		// Already released or given up on.
		return nil, nil
	}
	if r.buffer.contains(seq) {
		return nil, nil
	}

	if seq != r.expected {
		heap.Push(&r.buffer, pending{pkt: pkt, at: now})
		for r.buffer.Len() > 0 && r.buffer.newest()-r.expected > AckWindow {
			s, rd := r.skip()
			skipped = append(skipped, s...)
			ready = append(ready, rd...)
		}
		return ready, skipped
	}

	ready = append(ready, pkt)
	r.expected++
	ready = append(ready, r.drain()...)
	return ready, skipped
}

// Flush gives up on the gap in front of the buffer when its oldest packet
// has waited longer than maxWait.
func (r *Reorderer) Flush(now time.Time, maxWait time.Duration) (ready []*Packet, skipped []uint16) {
	for r.buffer.Len() > 0 && now.Sub(r.buffer.oldestArrival()) > maxWait {
		s, rd := r.skip()
		skipped = append(skipped, s...)
		ready = append(ready, rd...)
	}
	return ready, skipped
}

// skip advances expected to the first buffered packet and drains.
func (r *Reorderer) skip() (skipped []uint16, ready []*Packet) {
	next := r.buffer[0].pkt.Header.Sequence
	for r.expected != next {
		skipped = append(skipped, r.expected)
		r.expected++
	}
	return skipped, r.drain()
}

func (r *Reorderer) drain() []*Packet {
	var out []*Packet
	for r.buffer.Len() > 0 && r.buffer[0].pkt.Header.Sequence == r.expected {
		out = append(out, heap.Pop(&r.buffer).(pending).pkt)
		r.expected++
	}
	return out
}

// ---------------------------------------------------------------------------
// pendingHeap implements a min-heap ordered by sequence on the 16-bit ring.
// ---------------------------------------------------------------------------

type pending struct {
	pkt *Packet
	at  time.Time
}

type pendingHeap []pending

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	return MoreRecent(h[j].pkt.Header.Sequence, h[i].pkt.Header.Sequence)
}
func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)   { *h = append(*h, x.(pending)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = pending{} // avoid memory leak
	*h = old[:n-1]
	return item
}

func (h pendingHeap) contains(seq uint16) bool {
	for _, p := range h {
		if p.pkt.Header.Sequence == seq {
			return true
		}
	}
	return false
}

func (h pendingHeap) newest() uint16 {
	n := h[0].pkt.Header.Sequence
	for _, p := range h[1:] {
		if MoreRecent(p.pkt.Header.Sequence, n) {
			n = p.pkt.Header.Sequence
		}
	}
	return n
}

func (h pendingHeap) oldestArrival() time.Time {
	t := h[0].at
	for _, p := range h[1:] {
		if p.at.Before(t) {
			t = p.at
		}
	}
	return t
}
