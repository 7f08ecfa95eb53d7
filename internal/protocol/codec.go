package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrTruncatedHeader is returned when a buffer is shorter than the
	// fixed header size of the variant being decoded.
	ErrTruncatedHeader = errors.New("truncated header")

	// ErrProtocolMismatch is returned when the protocol id does not match
	// the variant being decoded.
	ErrProtocolMismatch = errors.New("protocol mismatch")

	// ErrUnknownVariant is returned for variant values or names outside the
	// three known layouts.
	ErrUnknownVariant = errors.New("unknown header variant")
)

// All multi-byte fields travel in network byte order.
var be = binary.BigEndian

// AppendHeader appends the wire form of h to dst and returns the extended
// slice.
func AppendHeader(dst []byte, h Header) []byte {
	dst = be.AppendUint32(dst, h.Variant.ProtocolID())
	if h.Variant.Sequenced() {
		dst = be.AppendUint16(dst, h.Sequence)
		dst = be.AppendUint16(dst, h.Ack)
	}
	if h.Variant == ReliableOrder {
		dst = be.AppendUint32(dst, h.AckBits)
	}
	return append(dst, h.PeerID[:]...)
}

// EncodeHeader returns the fixed-size wire form of h.
func EncodeHeader(h Header) []byte {
	return AppendHeader(make([]byte, 0, h.Variant.HeaderSize()), h)
}

// DecodeHeader decodes the leading header of data as variant v.
func DecodeHeader(v Variant, data []byte) (Header, error) {
	if !v.Valid() {
		return Header{}, fmt.Errorf("%w: %d", ErrUnknownVariant, v)
	}
	size := v.HeaderSize()
	if len(data) < size {
		return Header{}, fmt.Errorf("%w: %d bytes (need at least %d for %s)", ErrTruncatedHeader, len(data), size, v)
	}

	if id := be.Uint32(data[0:4]); id != v.ProtocolID() {
		return Header{}, fmt.Errorf("%w: got %d, want %d (%s)", ErrProtocolMismatch, id, v.ProtocolID(), v)
	}

	h := Header{Variant: v}
	off := 4
	if v.Sequenced() {
		h.Sequence = be.Uint16(data[off : off+2])
		h.Ack = be.Uint16(data[off+2 : off+4])
		off += 4
	}
	if v == ReliableOrder {
		h.AckBits = be.Uint32(data[off : off+4])
		off += 4
	}
	copy(h.PeerID[:], data[off:off+16])
	return h, nil
}

// Identify reports which variant the protocol id at the start of data names.
// It checks only the id and the length that variant requires.
func Identify(data []byte) (Variant, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrTruncatedHeader, len(data))
	}
	for _, v := range []Variant{Basic, TimeCritical, ReliableOrder} {
		if be.Uint32(data[0:4]) != v.ProtocolID() {
			continue
		}
		if len(data) < v.HeaderSize() {
			return v, fmt.Errorf("%w: %d bytes (need at least %d for %s)", ErrTruncatedHeader, len(data), v.HeaderSize(), v)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: unknown id %d", ErrProtocolMismatch, be.Uint32(data[0:4]))
}

// Parse validates raw as a datagram of variant v and splits it into header
// and payload. The payload is copied.
func Parse(v Variant, raw []byte) (*Packet, error) {
	h, err := DecodeHeader(v, raw)
	if err != nil {
		return nil, err
	}
	pkt := &Packet{Header: h, Payload: []byte{}}
	if n := len(raw) - v.HeaderSize(); n > 0 {
		pkt.Payload = make([]byte, n)
		copy(pkt.Payload, raw[v.HeaderSize():])
	}
	return pkt, nil
}

// Frame serializes a header followed by payload into a new buffer.
func Frame(h Header, payload []byte) []byte {
	buf := make([]byte, 0, h.Variant.HeaderSize()+len(payload))
	buf = AppendHeader(buf, h)
	return append(buf, payload...)
}

// NewHeader returns a header of variant v stamped with the sender's id.
func NewHeader(v Variant, self uuid.UUID) Header {
	return Header{Variant: v, PeerID: self}
}

// FramePool reuses outbound datagram buffers across sends.
type FramePool struct {
	pool sync.Pool
}

// NewFramePool creates a pool whose buffers start with capacity size.
func NewFramePool(size int) *FramePool {
	p := &FramePool{}
	p.pool.New = func() any {
		b := make([]byte, 0, size)
		return &b
	}
	return p
}

// Frame serializes h and payload into a pooled buffer. The caller must hand
// the returned pointer back with Put once the write has completed.
func (p *FramePool) Frame(h Header, payload []byte) *[]byte {
	bp := p.pool.Get().(*[]byte)
	b := AppendHeader((*bp)[:0], h)
	b = append(b, payload...)
	*bp = b
	return bp
}

// Put returns a buffer obtained from Frame.
func (p *FramePool) Put(bp *[]byte) {
	p.pool.Put(bp)
}
