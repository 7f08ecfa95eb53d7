package signaling

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const rendezvousPath = "/ws"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// rendezvous is the host's WebSocket endpoint. It admits exactly one dialer
// that presents the PIN; the negotiated carrier replaces it afterwards.
type rendezvous struct {
	pin    string
	srv    *http.Server
	joined chan *websocket.Conn
}

func newRendezvous(pin string) *rendezvous {
	r := &rendezvous{pin: pin, joined: make(chan *websocket.Conn, 1)}
	r.srv = &http.Server{Handler: r.routes(), ReadHeaderTimeout: 10 * time.Second}
	return r
}

// listen binds addr (":0" picks a free port) and serves in the background.
func (r *rendezvous) listen(addr string) (*net.TCPAddr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for signaling on %s: %w", addr, err)
	}
	go func() { _ = r.srv.Serve(ln) }()
	return ln.Addr().(*net.TCPAddr), nil
}

func (r *rendezvous) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(rendezvousPath, r.admit)
	return mux
}

func (r *rendezvous) admit(w http.ResponseWriter, req *http.Request) {
	got := req.URL.Query().Get("pin")
	if subtle.ConstantTimeCompare([]byte(got), []byte(r.pin)) != 1 {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	select {
	case r.joined <- conn:
	default:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "carrier already negotiating"))
		conn.Close()
	}
}

// await returns the admitted dialer's connection.
func (r *rendezvous) await(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-r.joined:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown stops accepting dialers. Connections already handed out by await
// stay open.
func (r *rendezvous) shutdown() {
	_ = r.srv.Close()
}

// dial joins a host's rendezvous, e.g. ws://host:port/ws?pin=123456.
func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling %s: %w", url, err)
	}
	return conn, nil
}

// newPIN draws a zero-padded decimal PIN of n digits, n <= 18.
func newPIN(n int) string {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		panic(fmt.Sprintf("signaling: read random PIN: %v", err))
	}
	return fmt.Sprintf("%0*d", n, v.Int64())
}
