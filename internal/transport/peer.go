package transport

import (
	"github.com/pion/webrtc/v4"
)

// Default STUN servers for ICE candidate gathering. No TURN; the carrier is
// meant for direct connectivity.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection on the configured network with
// the configured ICE servers.
func newPeerConnection(o options) (*webrtc.PeerConnection, error) {
	var se webrtc.SettingEngine
	if o.net != nil {
		se.SetNet(o.net)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	config := webrtc.Configuration{}
	if len(o.iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: o.iceServers}}
	}
	return api.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated DataChannel with datagram
// semantics: unordered and never retransmitted. Negotiated mode (ID 0) lets
// both sides create the channel without waiting for OnDataChannel.
func newDataChannel(pc *webrtc.PeerConnection, label string) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	retransmits := uint16(0)
	id := uint16(0)

	return pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
		Negotiated:     &negotiated,
		ID:             &id,
	})
}
