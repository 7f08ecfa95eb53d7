package protocol

import "sync/atomic"

// Unsigned is the set of fixed-width counters MoreRecent accepts.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// MoreRecent reports whether a was issued after b, treating the counter as a
// ring: a gap of at most half the range counts as forward progress, a larger
// one as wraparound. Equal values are never more recent than each other.
func MoreRecent[T Unsigned](a, b T) bool {
	half := ^T(0) / 2
	return (a > b && a-b <= half) || (b > a && b-a > half)
}

// SeqDiff returns the signed distance from b to a on the 16-bit ring.
func SeqDiff(a, b uint16) int {
	return int(int16(a - b))
}

// SeqGen hands out 16-bit sequence numbers that wrap after 65535.
// All operations are atomic.
type SeqGen struct {
	val atomic.Uint32
}

// NewSeqGen creates a generator whose first Next() returns start.
func NewSeqGen(start uint16) *SeqGen {
	s := &SeqGen{}
	s.val.Store(uint32(start))
	return s
}

// Next returns the current sequence number and advances the generator.
func (s *SeqGen) Next() uint16 {
	return uint16(s.val.Add(1) - 1)
}

// Peek returns the number the next call to Next will return.
func (s *SeqGen) Peek() uint16 {
	return uint16(s.val.Load())
}
