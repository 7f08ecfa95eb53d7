// Package signaling runs the WebSocket rendezvous that turns two processes
// into the ends of a WebRTC DataChannel carrier. All WebSocket and SDP/ICE
// details stay here; callers receive a ready Transport.
package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/1ureka/rudp/internal/transport"
	"github.com/1ureka/rudp/internal/util"
)

const pinLength = 6

// EstablishAsHost opens a PIN-protected rendezvous on listen, waits for one
// client, offers a DataChannel carrier and returns it once open. The
// rendezvous and its WebSocket are gone by the time it returns.
func EstablishAsHost(ctx context.Context, listen string, opts ...transport.Option) (*transport.Transport, error) {
	pin := newPIN(pinLength)
	rv := newRendezvous(pin)
	bound, err := rv.listen(listen)
	if err != nil {
		return nil, err
	}
	defer rv.shutdown()

	pterm.DefaultBox.WithTitle("WebSocket Signaling").Printfln("Port : %d\nPIN  : %s\nPath : %s?pin=%s", bound.Port, pin, rendezvousPath, pin)
	util.LogInfo("waiting for client...")

	wsConn, err := rv.await(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for client: %w", err)
	}
	defer wsConn.Close()
	util.LogInfo("signaling client connected")

	tr, err := transport.NewTransport(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Transport: %w", err)
	}
	return exchange(ctx, wsConn, tr, true)
}

// EstablishAsClient joins the host's rendezvous at wsURL and answers its
// offer. It returns the carrier once the DataChannel is open.
func EstablishAsClient(ctx context.Context, wsURL string, opts ...transport.Option) (*transport.Transport, error) {
	wsConn, err := dial(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogInfo("WS connected: %s", wsURL)

	tr, err := transport.NewTransport(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Transport: %w", err)
	}
	return exchange(ctx, wsConn, tr, false)
}

// exchange wires trickle ICE over wsConn and blocks until the DataChannel
// opens. The offering side sends the Offer first. On failure tr is closed.
func exchange(ctx context.Context, wsConn *websocket.Conn, tr *transport.Transport, offer bool) (*transport.Transport, error) {
	n := newNegotiator(tr, wsConn)

	tr.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		// A lost candidate only narrows the pair set.
		if err := n.trickle(c.ToJSON()); err != nil {
			util.LogDebug("send ICE candidate: %v", err)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.serve() // exits when wsConn is closed by the caller
	}()

	if offer {
		if err := n.offer(); err != nil {
			tr.Close()
			return nil, fmt.Errorf("failed to send Offer: %w", err)
		}
	}

	select {
	case <-tr.Ready():
		util.LogInfo("WebRTC DataChannel established, closing WS")
		return tr, nil

	case err := <-errCh:
		tr.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)

	case <-ctx.Done():
		tr.Close()
		return nil, ctx.Err()
	}
}
