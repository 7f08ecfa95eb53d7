package signaling

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	name string

	mu         sync.Mutex
	local      []webrtc.SessionDescription
	remote     []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	applied    chan struct{}
}

func newFakeSession(name string) *fakeSession {
	return &fakeSession{name: name, applied: make(chan struct{}, 8)}
}

func (f *fakeSession) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-" + f.name}, nil
}

func (f *fakeSession) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-" + f.name}, nil
}

func (f *fakeSession) SetLocalDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = append(f.local, d)
	return nil
}

func (f *fakeSession) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	f.remote = append(f.remote, d)
	f.mu.Unlock()
	f.applied <- struct{}{}
	return nil
}

func (f *fakeSession) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	f.candidates = append(f.candidates, c)
	f.mu.Unlock()
	f.applied <- struct{}{}
	return nil
}

func (f *fakeSession) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.applied:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not updated")
	}
}

// joinPair opens a rendezvous and returns both ends of one admitted link.
func joinPair(t *testing.T) (host, client *websocket.Conn) {
	t.Helper()
	rv := newRendezvous("123456")
	hs := httptest.NewServer(rv.routes())
	t.Cleanup(hs.Close)

	client, err := dial(t.Context(), wsURL(hs, "123456"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	host, err = rv.await(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { host.Close() })
	return host, client
}

func wsURL(hs *httptest.Server, pin string) string {
	return "ws" + strings.TrimPrefix(hs.URL, "http") + rendezvousPath + "?pin=" + pin
}

func TestRendezvousRejectsWrongPIN(t *testing.T) {
	rv := newRendezvous("123456")
	hs := httptest.NewServer(rv.routes())
	defer hs.Close()

	resp, err := http.Get(hs.URL + rendezvousPath + "?pin=000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = dial(t.Context(), wsURL(hs, "12345"))
	assert.Error(t, err)
}

func TestOfferAnswerExchange(t *testing.T) {
	hostConn, clientConn := joinPair(t)

	hostSess := newFakeSession("host")
	clientSess := newFakeSession("client")
	host := newNegotiator(hostSess, hostConn)
	client := newNegotiator(clientSess, clientConn)

	go func() { _ = host.serve() }()
	go func() { _ = client.serve() }()

	require.NoError(t, host.offer())
	clientSess.wait(t)
	hostSess.wait(t)

	clientSess.mu.Lock()
	assert.Equal(t, []webrtc.SessionDescription{{Type: webrtc.SDPTypeOffer, SDP: "offer-host"}}, clientSess.remote)
	assert.Equal(t, webrtc.SDPTypeAnswer, clientSess.local[0].Type)
	clientSess.mu.Unlock()

	hostSess.mu.Lock()
	assert.Equal(t, []webrtc.SessionDescription{{Type: webrtc.SDPTypeAnswer, SDP: "answer-client"}}, hostSess.remote)
	assert.Equal(t, "offer-host", hostSess.local[0].SDP)
	hostSess.mu.Unlock()
}

func TestCandidateTrickle(t *testing.T) {
	hostConn, clientConn := joinPair(t)
	clientSess := newFakeSession("client")
	client := newNegotiator(clientSess, clientConn)

	errCh := make(chan error, 1)
	go func() { errCh <- client.serve() }()

	host := newNegotiator(newFakeSession("host"), hostConn)
	require.NoError(t, host.trickle(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"}))
	clientSess.wait(t)

	clientSess.mu.Lock()
	require.Len(t, clientSess.candidates, 1)
	assert.Contains(t, clientSess.candidates[0].Candidate, "10.0.0.1 5000")
	clientSess.mu.Unlock()

	require.NoError(t, host.write(signal{Kind: kindCandidate, Candidate: "not json"}))
	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "parse ICE candidate")
	case <-time.After(2 * time.Second):
		t.Fatal("negotiator kept running after a malformed candidate")
	}
}

func TestSecondClientRejected(t *testing.T) {
	rv := newRendezvous("1")
	hs := httptest.NewServer(rv.routes())
	defer hs.Close()

	first, err := dial(t.Context(), wsURL(hs, "1"))
	require.NoError(t, err)
	defer first.Close()

	second, err := dial(t.Context(), wsURL(hs, "1"))
	require.NoError(t, err)
	defer second.Close()

	_, _, err = second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestRendezvousListenAndShutdown(t *testing.T) {
	rv := newRendezvous("42")
	bound, err := rv.listen("127.0.0.1:0")
	require.NoError(t, err)
	require.NotZero(t, bound.Port)

	url := fmt.Sprintf("ws://%s%s?pin=42", bound, rendezvousPath)
	conn, err := dial(t.Context(), url)
	require.NoError(t, err)
	defer conn.Close()

	admitted, err := rv.await(t.Context())
	require.NoError(t, err)
	defer admitted.Close()

	rv.shutdown()
	_, err = dial(t.Context(), url)
	assert.Error(t, err)
}

func TestNewPIN(t *testing.T) {
	for range 20 {
		pin := newPIN(pinLength)
		assert.Len(t, pin, pinLength)
		for _, c := range pin {
			assert.True(t, c >= '0' && c <= '9', "non-digit in %q", pin)
		}
	}
}
