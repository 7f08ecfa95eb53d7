package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/1ureka/rudp/internal/peer"
	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/socket"
	"github.com/1ureka/rudp/internal/util"
)

// QuitCommand ends the client session.
const QuitCommand = "/quit"

// chatClient prints whatever the server relays.
type chatClient struct {
	out io.Writer
}

func (c *chatClient) OnConnect(*peer.Peer)    { fmt.Fprintln(c.out, "Connected to server!") }
func (c *chatClient) OnDisconnect(*peer.Peer) { fmt.Fprintln(c.out, "Disconnected from server!") }
func (c *chatClient) OnTimeout(*peer.Peer)    { fmt.Fprintln(c.out, "Server connection has timed out!") }

func (c *chatClient) OnReceive(pkt *protocol.Packet, _ *peer.Peer) {
	fmt.Fprintln(c.out, string(pkt.Payload))
}

// Client is a chat client bound to one server.
type Client struct {
	sock   *socket.Socket
	server peer.Peer
}

// NewClient wraps conn in a socket that prints relayed messages to out.
func NewClient(conn net.PacketConn, cfg socket.Config, out io.Writer, opts ...socket.Option) *Client {
	return &Client{sock: socket.New(conn, cfg, &chatClient{out: out}, opts...)}
}

// Socket exposes the underlying socket.
func (c *Client) Socket() *socket.Socket { return c.sock }

// Dial starts the socket and registers the server at address.
func (c *Client) Dial(ctx context.Context, address string) error {
	c.sock.Start(ctx)
	p, err := c.sock.Connect(address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	c.server = p
	return nil
}

// DialAddr is Dial for an already resolved address, such as the far end of
// a DataChannel.
func (c *Client) DialAddr(ctx context.Context, addr net.Addr) error {
	c.sock.Start(ctx)
	p, err := c.sock.ConnectAddr(addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	c.server = p
	return nil
}

// Run sends every line read from in to the server until in is exhausted,
// QuitCommand is read, ctx is cancelled or the socket stops.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	defer c.sock.Close()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case line := <-lines:
			if line == QuitCommand {
				return c.hangUp()
			}
			if _, err := c.sock.SendTo(c.server.ID, []byte(line)); err != nil {
				if errors.Is(err, socket.ErrUnknownPeer) {
					return errors.New("server is gone")
				}
				return err
			}
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return c.hangUp()
		case <-c.sock.Done():
			return nil
		case <-ctx.Done():
			return c.hangUp()
		}
	}
}

func (c *Client) hangUp() error {
	if err := c.sock.Disconnect(c.server.ID); err != nil && !errors.Is(err, socket.ErrUnknownPeer) {
		util.LogDebug("disconnect: %v", err)
	}
	return nil
}
