// Package app contains the chat server and client that run on top of a
// socket, plus the carrier setup shared by both roles.
package app

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/1ureka/rudp/internal/peer"
	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/socket"
	"github.com/1ureka/rudp/internal/util"
)

// StopCommand makes the server announce shutdown and close.
const StopCommand = "/stop_server"

// broadcaster is the part of a socket the chat server drives.
type broadcaster interface {
	Broadcast(payload []byte) error
	Close() error
}

// chatServer relays every message to every peer and announces peers coming
// and going.
type chatServer struct {
	sock broadcaster
	out  io.Writer
}

func (c *chatServer) announce(msg string) {
	fmt.Fprintln(c.out, msg)
	if err := c.sock.Broadcast([]byte(msg)); err != nil {
		util.LogWarning("broadcast: %v", err)
	}
}

func (c *chatServer) OnConnect(p *peer.Peer) {
	c.announce(p.ID.String() + " connected!")
}

func (c *chatServer) OnDisconnect(p *peer.Peer) {
	c.announce(p.ID.String() + " disconnected!")
}

func (c *chatServer) OnTimeout(p *peer.Peer) {
	c.announce(p.ID.String() + "'s connection has timed out!")
}

func (c *chatServer) OnReceive(pkt *protocol.Packet, p *peer.Peer) {
	msg := string(pkt.Payload)
	fmt.Fprintf(c.out, "%s: %s\n", p.ID, msg)

	if msg == StopCommand {
		if err := c.sock.Broadcast([]byte("Server is stopping...")); err != nil {
			util.LogWarning("broadcast: %v", err)
		}
		_ = c.sock.Close()
		return
	}
	if err := c.sock.Broadcast([]byte(p.ID.String() + ": " + msg)); err != nil {
		util.LogWarning("broadcast: %v", err)
	}
}

// Server is a running chat server.
type Server struct {
	sock *socket.Socket
}

// NewServer wraps conn in a socket whose events drive the chat. Lines shown
// to the operator go to out.
func NewServer(conn net.PacketConn, cfg socket.Config, out io.Writer, opts ...socket.Option) *Server {
	chat := &chatServer{out: out}
	sock := socket.New(conn, cfg, chat, opts...)
	chat.sock = sock
	return &Server{sock: sock}
}

// Socket exposes the underlying socket.
func (s *Server) Socket() *socket.Socket { return s.sock }

// Run serves until ctx is cancelled or a peer sends StopCommand.
func (s *Server) Run(ctx context.Context) error {
	s.sock.Start(ctx)
	util.LogInfo("server %s listening on %s (%s)", s.sock.Self(), s.sock.LocalAddr(), s.sock.Variant())

	select {
	case <-ctx.Done():
		_ = s.sock.Close()
	case <-s.sock.Done():
	}
	<-s.sock.Done()
	return nil
}
