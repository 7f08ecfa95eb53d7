// Package protocol defines the datagram header variants, their wire codec,
// and the sequence/acknowledgement bookkeeping used by sequenced channels.
package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Variant selects one of the three header layouts.
type Variant uint8

const (
	Basic         Variant = iota // protocol id + peer id
	TimeCritical                 // + sequence, ack
	ReliableOrder                // + sequence, ack, ack bits
)

// Protocol id constants written at the start of every datagram.
const (
	BasicProtocolID         uint32 = 57986
	TimeCriticalProtocolID  uint32 = 57987
	ReliableOrderProtocolID uint32 = 57988
)

// Fixed header sizes per variant.
const (
	BasicHeaderSize         = 4 + 16         // protocol(4) + peer id(16)
	TimeCriticalHeaderSize  = 4 + 2 + 2 + 16 // + sequence(2) + ack(2)
	ReliableOrderHeaderSize = 4 + 2 + 2 + 4 + 16
)

// ProtocolID returns the magic number that identifies v on the wire.
func (v Variant) ProtocolID() uint32 {
	switch v {
	case TimeCritical:
		return TimeCriticalProtocolID
	case ReliableOrder:
		return ReliableOrderProtocolID
	default:
		return BasicProtocolID
	}
}

// HeaderSize returns the fixed encoded size of v's header.
func (v Variant) HeaderSize() int {
	switch v {
	case TimeCritical:
		return TimeCriticalHeaderSize
	case ReliableOrder:
		return ReliableOrderHeaderSize
	default:
		return BasicHeaderSize
	}
}

// Sequenced reports whether the variant carries sequence and ack fields.
func (v Variant) Sequenced() bool { return v == TimeCritical || v == ReliableOrder }

// Valid reports whether v names a known variant.
func (v Variant) Valid() bool { return v <= ReliableOrder }

func (v Variant) String() string {
	switch v {
	case Basic:
		return "basic"
	case TimeCritical:
		return "time-critical"
	case ReliableOrder:
		return "reliable-order"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant maps a configuration name to a Variant.
func ParseVariant(name string) (Variant, error) {
	switch name {
	case "basic", "":
		return Basic, nil
	case "time-critical", "timecritical":
		return TimeCritical, nil
	case "reliable-order", "reliableorder", "reliable":
		return ReliableOrder, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// Header is the decoded form of any variant. Fields a variant does not carry
// are zero after decoding and ignored when encoding.
type Header struct {
	Variant  Variant
	Sequence uint16
	Ack      uint16
	AckBits  uint32
	PeerID   uuid.UUID
}

// Packet is a validated datagram: a header followed by an opaque payload.
// The payload never aliases the buffer it was parsed from.
type Packet struct {
	Header  Header
	Payload []byte
}
