package protocol

import (
	"slices"
	"time"
)

// AckWindow is the number of sequences before the acknowledged one that
// ack bits can report on.
const AckWindow = 32

// AckState is the per-peer bookkeeping of a sequenced channel.
//
// Receive side: RemoteSequence is the most recent sequence seen from the
// peer and bit k of AckBits is set when RemoteSequence-(k+1) also arrived.
// Send side: sequences handed out by NextSequence and recorded with Sent
// stay in flight until an incoming ack covers them or they fall out of the
// window.
//
// AckState is not safe for concurrent use.
type AckState struct {
	local *SeqGen

	remote uint16
	bits   uint32
	seen   bool

	inflight map[uint16]time.Time
}

// NewAckState creates channel state whose first outbound sequence is start.
//
// Until a sequence arrives, Ack echoes start-1 with no bits set. A peer
// that numbers from the same start has nothing in flight under it.
func NewAckState(start uint16) *AckState {
	return &AckState{
		local:    NewSeqGen(start),
		remote:   start - 1,
		inflight: make(map[uint16]time.Time),
	}
}

// NextSequence returns the sequence for the next outbound packet.
func (a *AckState) NextSequence() uint16 { return a.local.Next() }

// LocalSequence returns the sequence the next outbound packet will carry.
func (a *AckState) LocalSequence() uint16 { return a.local.Peek() }

// RemoteSequence returns the most recent sequence received, and whether any
// sequence has been received yet.
func (a *AckState) RemoteSequence() (uint16, bool) { return a.remote, a.seen }

// Ack returns the (ack, ack_bits) pair to echo back to the peer.
func (a *AckState) Ack() (uint16, uint32) { return a.remote, a.bits }

// Received records an inbound sequence. It returns false when the sequence
// is a duplicate or too old to be tracked; the caller should not deliver it.
func (a *AckState) Received(seq uint16) bool {
	if !a.seen {
		a.seen = true
		a.remote = seq
		a.bits = 0
		return true
	}
	if seq == a.remote {
		return false
	}

	if MoreRecent(seq, a.remote) {
		shift := seq - a.remote
		if shift > AckWindow {
			a.bits = 0
		} else {
			// shift == 32 pushes every old bit out; the old remote lands on bit 31.
			a.bits = a.bits<<shift | 1<<(shift-1)
		}
		a.remote = seq
		return true
	}

	d := a.remote - seq
	if d > AckWindow {
		return false
	}
	mask := uint32(1) << (d - 1)
	if a.bits&mask != 0 {
		return false
	}
	a.bits |= mask
	return true
}

// Sent records seq as in flight.
func (a *AckState) Sent(seq uint16, at time.Time) {
	a.inflight[seq] = at
}

// InFlight returns the number of sequences awaiting acknowledgement.
func (a *AckState) InFlight() int { return len(a.inflight) }

// Acknowledge applies an inbound (ack, ack_bits) pair. It returns the
// in-flight sequences it newly covers, oldest first, and the ones that can
// no longer be covered because they fell behind the window.
func (a *AckState) Acknowledge(ack uint16, bits uint32) (acked, lost []uint16) {
	for d := AckWindow; d >= 1; d-- {
		if bits&(1<<(d-1)) == 0 {
			continue
		}
		s := ack - uint16(d)
		if _, ok := a.inflight[s]; ok {
			acked = append(acked, s)
			delete(a.inflight, s)
		}
	}
	if _, ok := a.inflight[ack]; ok {
		acked = append(acked, ack)
		delete(a.inflight, ack)
	}

	for s := range a.inflight {
		if MoreRecent(ack, s) && ack-s > AckWindow {
			lost = append(lost, s)
			delete(a.inflight, s)
		}
	}
	sortSequences(lost)
	return acked, lost
}

// Expire drops in-flight sequences sent before deadline and returns them,
// oldest first.
func (a *AckState) Expire(deadline time.Time) []uint16 {
	var lost []uint16
	for s, at := range a.inflight {
		if at.Before(deadline) {
			lost = append(lost, s)
			delete(a.inflight, s)
		}
	}
	sortSequences(lost)
	return lost
}

func sortSequences(seqs []uint16) {
	slices.SortFunc(seqs, func(x, y uint16) int {
		switch {
		case x == y:
			return 0
		case MoreRecent(y, x):
			return -1
		default:
			return 1
		}
	})
}
