package signaling

// signalKind tags each JSON frame on the rendezvous WebSocket.
type signalKind string

const (
	kindOffer     signalKind = "offer"
	kindAnswer    signalKind = "answer"
	kindCandidate signalKind = "candidate"
)

// signal is one frame of SDP/ICE negotiation. Candidate holds a JSON encoded
// webrtc.ICECandidateInit.
type signal struct {
	Kind      signalKind `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate string     `json:"candidate,omitempty"`
}
