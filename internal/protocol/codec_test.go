package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

var testPeer = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// TestHeaderRoundTrip verifies that encoding and decoding are inverse
// operations for every variant, including boundary field values.
func TestHeaderRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		h    Header
	}{
		{"basic", Header{Variant: Basic, PeerID: testPeer}},
		{"basic nil id", Header{Variant: Basic}},
		{"time-critical", Header{Variant: TimeCritical, Sequence: 42, Ack: 41, PeerID: testPeer}},
		{"time-critical max", Header{Variant: TimeCritical, Sequence: 0xFFFF, Ack: 0xFFFF, PeerID: testPeer}},
		{"reliable-order", Header{Variant: ReliableOrder, Sequence: 1000, Ack: 999, AckBits: 0xDEADBEEF, PeerID: testPeer}},
		{"reliable-order zero", Header{Variant: ReliableOrder}},
		{"reliable-order max", Header{Variant: ReliableOrder, Sequence: 0xFFFF, Ack: 0xFFFF, AckBits: 0xFFFFFFFF, PeerID: uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeHeader(tc.h)
			if len(encoded) != tc.h.Variant.HeaderSize() {
				t.Fatalf("encoded size = %d, want %d", len(encoded), tc.h.Variant.HeaderSize())
			}

			decoded, err := DecodeHeader(tc.h.Variant, encoded)
			if err != nil {
				t.Fatalf("DecodeHeader failed: %v", err)
			}
			if decoded != tc.h {
				t.Errorf("round trip mismatch: got %+v, want %+v", decoded, tc.h)
			}
		})
	}
}

// TestHeaderLayout pins the exact byte layout of the ReliableOrder variant.
func TestHeaderLayout(t *testing.T) {
	h := Header{Variant: ReliableOrder, Sequence: 0x0102, Ack: 0x0304, AckBits: 0x05060708, PeerID: testPeer}
	want := []byte{0x00, 0x00, 0xE2, 0x84, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	want = append(want, testPeer[:]...)

	if got := EncodeHeader(h); !bytes.Equal(got, want) {
		t.Errorf("layout mismatch:\n got %x\nwant %x", got, want)
	}
}

func TestHeaderSizes(t *testing.T) {
	for v, want := range map[Variant]int{Basic: 20, TimeCritical: 24, ReliableOrder: 28} {
		if got := v.HeaderSize(); got != want {
			t.Errorf("%s: HeaderSize() = %d, want %d", v, got, want)
		}
	}
}

// TestDecodeTruncated verifies that every buffer shorter than a variant's
// header size yields ErrTruncatedHeader.
func TestDecodeTruncated(t *testing.T) {
	for _, v := range []Variant{Basic, TimeCritical, ReliableOrder} {
		full := EncodeHeader(Header{Variant: v, PeerID: testPeer})
		for n := 0; n < v.HeaderSize(); n++ {
			t.Run(fmt.Sprintf("%s/%d bytes", v, n), func(t *testing.T) {
				_, err := DecodeHeader(v, full[:n])
				if !errors.Is(err, ErrTruncatedHeader) {
					t.Fatalf("expected ErrTruncatedHeader, got %v", err)
				}
			})
		}
	}
}

// TestDecodeProtocolMismatch verifies that a correctly sized buffer with the
// wrong protocol id is rejected rather than read as another variant.
func TestDecodeProtocolMismatch(t *testing.T) {
	testCases := []struct {
		name    string
		encoded Variant
		decoded Variant
	}{
		{"basic as time-critical", Basic, TimeCritical},
		{"reliable as basic", ReliableOrder, Basic},
		{"time-critical as reliable", TimeCritical, ReliableOrder},
		{"reliable as time-critical", ReliableOrder, TimeCritical},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := EncodeHeader(Header{Variant: tc.encoded, PeerID: testPeer})
			// Pad so the length check cannot be what fails.
			buf = append(buf, make([]byte, 16)...)

			_, err := DecodeHeader(tc.decoded, buf)
			if !errors.Is(err, ErrProtocolMismatch) {
				t.Fatalf("expected ErrProtocolMismatch, got %v", err)
			}
		})
	}

	t.Run("garbage id", func(t *testing.T) {
		buf := make([]byte, BasicHeaderSize)
		buf[3] = 0x7F
		if _, err := DecodeHeader(Basic, buf); !errors.Is(err, ErrProtocolMismatch) {
			t.Fatalf("expected ErrProtocolMismatch, got %v", err)
		}
	})
}

func TestDecodeUnknownVariant(t *testing.T) {
	if _, err := DecodeHeader(Variant(7), make([]byte, 64)); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestIdentify(t *testing.T) {
	for _, v := range []Variant{Basic, TimeCritical, ReliableOrder} {
		got, err := Identify(EncodeHeader(Header{Variant: v}))
		if err != nil {
			t.Fatalf("%s: Identify failed: %v", v, err)
		}
		if got != v {
			t.Errorf("Identify = %s, want %s", got, v)
		}
	}

	if _, err := Identify([]byte{0, 0}); !errors.Is(err, ErrTruncatedHeader) {
		t.Errorf("short buffer: expected ErrTruncatedHeader, got %v", err)
	}
	if _, err := Identify(make([]byte, 32)); !errors.Is(err, ErrProtocolMismatch) {
		t.Errorf("zero id: expected ErrProtocolMismatch, got %v", err)
	}
	short := EncodeHeader(Header{Variant: ReliableOrder})[:24]
	if _, err := Identify(short); !errors.Is(err, ErrTruncatedHeader) {
		t.Errorf("short reliable-order: expected ErrTruncatedHeader, got %v", err)
	}
}

// TestParsePayload verifies payload splitting, including the empty payload.
func TestParsePayload(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"hello", []byte("hello")},
		{"large", bytes.Repeat([]byte{0xAB}, 64*1024)},
	}

	for _, tc := range testCases {
		for _, v := range []Variant{Basic, TimeCritical, ReliableOrder} {
			t.Run(tc.name+"/"+v.String(), func(t *testing.T) {
				h := Header{Variant: v, PeerID: testPeer}
				if v.Sequenced() {
					h.Sequence = 7
				}
				pkt, err := Parse(v, Frame(h, tc.payload))
				if err != nil {
					t.Fatalf("Parse failed: %v", err)
				}
				if pkt.Header != h {
					t.Errorf("header mismatch: got %+v, want %+v", pkt.Header, h)
				}
				if !bytes.Equal(pkt.Payload, tc.payload) {
					t.Errorf("payload mismatch: got %d bytes, want %d", len(pkt.Payload), len(tc.payload))
				}
				if pkt.Payload == nil {
					t.Error("payload must be non-nil even when empty")
				}
			})
		}
	}
}

// TestParseDoesNotAlias verifies that the payload is copied out of the
// receive buffer.
func TestParseDoesNotAlias(t *testing.T) {
	raw := Frame(Header{Variant: Basic, PeerID: testPeer}, []byte("original"))
	pkt, err := Parse(Basic, raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	raw[BasicHeaderSize] = 0xFF

	if !bytes.Equal(pkt.Payload, []byte("original")) {
		t.Errorf("payload was aliased: got %q", pkt.Payload)
	}
}

func TestFramePoolReuse(t *testing.T) {
	pool := NewFramePool(64)
	h := Header{Variant: TimeCritical, Sequence: 3, Ack: 2, PeerID: testPeer}

	first := pool.Frame(h, []byte("first payload"))
	want := Frame(h, []byte("first payload"))
	if !bytes.Equal(*first, want) {
		t.Fatalf("pooled frame mismatch: got %x, want %x", *first, want)
	}
	pool.Put(first)

	second := pool.Frame(h, []byte("2"))
	defer pool.Put(second)
	if !bytes.Equal(*second, Frame(h, []byte("2"))) {
		t.Fatalf("reused frame carries stale bytes: %x", *second)
	}
}

func TestParseVariant(t *testing.T) {
	for name, want := range map[string]Variant{
		"basic": Basic, "": Basic, "time-critical": TimeCritical, "reliable-order": ReliableOrder,
	} {
		got, err := ParseVariant(name)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q) = %s, %v; want %s", name, got, err, want)
		}
	}
	if _, err := ParseVariant("tcp"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
}
