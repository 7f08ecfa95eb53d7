package socket

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/1ureka/rudp/internal/protocol"
)

// Defaults carried over from the reference deployment.
const (
	DefaultConnectionTimeout = 15 * time.Second
	DefaultKeepAliveInterval = 3 * time.Second
	DefaultAckTimeout        = 10 * time.Second
	DefaultReorderTimeout    = time.Second
	DefaultBufferSize        = 1500
	MinBufferSize            = 512
)

// Config tunes a Socket. Zero fields take the defaults above.
type Config struct {
	Variant           protocol.Variant
	ConnectionTimeout time.Duration // silence after which a peer is dropped
	KeepAliveInterval time.Duration // timer period and keep-alive threshold
	AckTimeout        time.Duration // in-flight ReliableOrder sequences older than this are lost
	ReorderTimeout    time.Duration // how long a ReliableOrder gap may hold back later packets
	BufferSize        int           // receive buffer, the largest datagram accepted whole
	InitialSequence   uint16        // first outbound sequence on every sequenced channel
}

func (c Config) withDefaults() Config {
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.ReorderTimeout <= 0 {
		c.ReorderTimeout = DefaultReorderTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.BufferSize < MinBufferSize {
		c.BufferSize = MinBufferSize
	}
	return c
}

// Clock is the time source. Tests substitute a manual one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Resolver turns "host:port" into a datagram address. pion's transport.Net
// satisfies it.
type Resolver interface {
	ResolveUDPAddr(network, address string) (*net.UDPAddr, error)
}

// Option customizes a Socket at construction.
type Option func(*Socket)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Socket) { s.clock = c }
}

// WithResolver sets the resolver used by Connect.
func WithResolver(r Resolver) Option {
	return func(s *Socket) { s.resolver = r }
}

// WithID fixes the socket's own peer id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(s *Socket) { s.self = id }
}
