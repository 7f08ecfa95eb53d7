package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// session is the SDP/ICE surface of a carrier under negotiation.
// *transport.Transport implements it.
type session interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
}

// negotiator drives one side of the offer/answer exchange over ws. Writes
// come from both the caller and pion's candidate callback, so they are
// serialized.
type negotiator struct {
	sess session
	ws   *websocket.Conn
	wmu  sync.Mutex
}

func newNegotiator(sess session, ws *websocket.Conn) *negotiator {
	return &negotiator{sess: sess, ws: ws}
}

func (n *negotiator) write(sig signal) error {
	n.wmu.Lock()
	defer n.wmu.Unlock()
	return n.ws.WriteJSON(sig)
}

// offer publishes a fresh local offer.
func (n *negotiator) offer() error {
	return n.describe(kindOffer, n.sess.CreateOffer)
}

func (n *negotiator) answer() error {
	return n.describe(kindAnswer, n.sess.CreateAnswer)
}

func (n *negotiator) describe(kind signalKind, create func() (webrtc.SessionDescription, error)) error {
	desc, err := create()
	if err != nil {
		return fmt.Errorf("create %s: %w", kind, err)
	}
	if err := n.sess.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local %s: %w", kind, err)
	}
	return n.write(signal{Kind: kind, SDP: desc.SDP})
}

// trickle forwards one local ICE candidate.
func (n *negotiator) trickle(c webrtc.ICECandidateInit) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return n.write(signal{Kind: kindCandidate, Candidate: string(data)})
}

// serve applies remote signals until the WebSocket fails or closes. An
// offer is answered on the spot.
func (n *negotiator) serve() error {
	for {
		var sig signal
		if err := n.ws.ReadJSON(&sig); err != nil {
			return fmt.Errorf("read signal: %w", err)
		}
		if err := n.apply(sig); err != nil {
			return err
		}
	}
}

func (n *negotiator) apply(sig signal) error {
	switch sig.Kind {
	case kindOffer:
		if err := n.sess.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}); err != nil {
			return fmt.Errorf("apply offer: %w", err)
		}
		return n.answer()

	case kindAnswer:
		if err := n.sess.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}); err != nil {
			return fmt.Errorf("apply answer: %w", err)
		}

	case kindCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(sig.Candidate), &init); err != nil {
			return fmt.Errorf("parse ICE candidate: %w", err)
		}
		if err := n.sess.AddICECandidate(init); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	return nil
}
