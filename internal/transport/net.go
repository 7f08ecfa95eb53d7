package transport

import (
	"fmt"
	"net"

	ptransport "github.com/pion/transport/v4"
	"github.com/pion/transport/v4/stdnet"
)

// NewNet returns the operating system network behind pion's Net interface.
// Sockets resolve and bind through it so tests can swap in a virtual one.
func NewNet() (ptransport.Net, error) {
	n, err := stdnet.NewNet()
	if err != nil {
		return nil, fmt.Errorf("open system network: %w", err)
	}
	return n, nil
}

// ListenUDP binds a datagram endpoint on n.
func ListenUDP(n ptransport.Net, address string) (net.PacketConn, error) {
	conn, err := n.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}
	return conn, nil
}
