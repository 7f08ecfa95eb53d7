// Package transport provides the datagram carriers a socket can run over:
// the operating system's UDP stack through pion's network abstraction, and a
// WebRTC DataChannel that behaves like a single-peer net.PacketConn.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	ptransport "github.com/pion/transport/v4"
	"github.com/pion/transport/v4/deadline"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rudp/internal/util"
)

const (
	inboxSize    = 256 // inbound datagrams held before new ones are dropped
	channelLabel = "rudp"
)

// Addr is the address reported for the far end of a DataChannel.
type Addr struct {
	Label string
}

func (a Addr) Network() string { return "webrtc" }
func (a Addr) String() string  { return a.Label }

type options struct {
	net        ptransport.Net
	iceServers []string
}

// Option customizes NewTransport.
type Option func(*options)

// WithNet runs ICE over n instead of the operating system network.
func WithNet(n ptransport.Net) Option {
	return func(o *options) { o.net = n }
}

// WithICEServers replaces the default STUN servers. No arguments disables
// server reflexive gathering.
func WithICEServers(urls ...string) Option {
	return func(o *options) { o.iceServers = urls }
}

// Transport wraps a single PeerConnection + DataChannel pair. Once the
// channel is open it is used as a net.PacketConn with exactly one remote
// address.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded but does not
// drive open/close decisions.
type Transport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	inbox      chan []byte
	openSignal chan struct{}
	readDL     *deadline.Deadline
	local      Addr
	remote     Addr

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

var _ net.PacketConn = (*Transport)(nil)

// NewTransport creates a Transport backed by a new PeerConnection and a
// pre-negotiated DataChannel. The caller performs signaling through the
// exposed methods (CreateOffer / CreateAnswer / ...) and then hands the
// Transport to a socket as its carrier.
func NewTransport(ctx context.Context, opts ...Option) (*Transport, error) {
	o := options{iceServers: stunServers}
	for _, opt := range opts {
		opt(&o)
	}

	pc, err := newPeerConnection(o)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc, channelLabel)
	if err != nil {
		return nil, errors.Join(err, pc.Close())
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:         pc,
		dc:         dc,
		inbox:      make(chan []byte, inboxSize),
		openSignal: make(chan struct{}),
		readDL:     deadline.New(),
		local:      Addr{Label: "local"},
		remote:     Addr{Label: "remote"},
		ctx:        tCtx,
		cancel:     tCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(t.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		tCancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case t.inbox <- msg.Data:
		default:
			util.Stats.AddDrop()
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()
	})

	t.sender = newSender(tCtx, dc, t.openSignal)

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done returns a channel that is closed when the Transport is shut down
// (DataChannel closed or parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = errors.Join(t.dc.Close(), t.pc.Close())
	})
	return err
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// RemoteAddr returns the single address datagrams arrive from.
func (t *Transport) RemoteAddr() net.Addr { return t.remote }

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// LocalDescription returns the applied local SDP, including candidates
// gathered so far.
func (t *Transport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

// GatheringComplete returns a channel closed when ICE gathering finishes.
// Call it before SetLocalDescription.
func (t *Transport) GatheringComplete() <-chan struct{} {
	return webrtc.GatheringCompletePromise(t.pc)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (t *Transport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// net.PacketConn
// ---------------------------------------------------------------------------

// ReadFrom blocks until a datagram arrives, the read deadline passes, or the
// Transport closes.
func (t *Transport) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case data := <-t.inbox:
		return copy(p, data), t.remote, nil
	case <-t.readDL.Done():
		return 0, nil, errTimeout
	case <-t.ctx.Done():
		return 0, nil, net.ErrClosed
	}
}

// WriteTo queues p for the remote end. addr is ignored; a DataChannel has
// exactly one peer.
func (t *Transport) WriteTo(p []byte, _ net.Addr) (int, error) {
	if t.ctx.Err() != nil {
		return 0, net.ErrClosed
	}
	data := make([]byte, len(p))
	copy(data, p)
	if !t.sender.send(t.ctx, data) {
		return 0, net.ErrClosed
	}
	return len(p), nil
}

func (t *Transport) LocalAddr() net.Addr { return t.local }

func (t *Transport) SetDeadline(tm time.Time) error {
	return t.SetReadDeadline(tm)
}

func (t *Transport) SetReadDeadline(tm time.Time) error {
	t.readDL.Set(tm)
	return nil
}

// SetWriteDeadline is a no-op; writes only block on a full send queue.
func (t *Transport) SetWriteDeadline(time.Time) error { return nil }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var errTimeout net.Error = timeoutError{}
