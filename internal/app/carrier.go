package app

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/1ureka/rudp/internal/config"
	"github.com/1ureka/rudp/internal/metrics"
	"github.com/1ureka/rudp/internal/signaling"
	"github.com/1ureka/rudp/internal/socket"
	"github.com/1ureka/rudp/internal/transport"
	"github.com/1ureka/rudp/internal/util"
)

// RunServer opens the configured carrier and serves the chat on it.
func RunServer(ctx context.Context, cfg *config.Config, out io.Writer) error {
	var (
		conn net.PacketConn
		opts []socket.Option
	)
	switch cfg.Carrier {
	case config.CarrierWebRTC:
		tr, err := signaling.EstablishAsHost(ctx, cfg.Listen, transport.WithICEServers(cfg.ICEServers...))
		if err != nil {
			return fmt.Errorf("failed to establish carrier: %w", err)
		}
		conn = tr
	default:
		n, err := transport.NewNet()
		if err != nil {
			return err
		}
		if conn, err = transport.ListenUDP(n, cfg.Listen); err != nil {
			return err
		}
		opts = append(opts, socket.WithResolver(n))
	}

	srv := NewServer(conn, cfg.SocketConfig(), out, opts...)
	startObservability(ctx, cfg, srv.Socket())
	return srv.Run(ctx)
}

// RunClient opens the configured carrier, registers the server and relays
// lines from in until the session ends.
func RunClient(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	switch cfg.Carrier {
	case config.CarrierWebRTC:
		tr, err := signaling.EstablishAsClient(ctx, cfg.Server, transport.WithICEServers(cfg.ICEServers...))
		if err != nil {
			return fmt.Errorf("failed to establish carrier: %w", err)
		}
		c := NewClient(tr, cfg.SocketConfig(), out)
		startObservability(ctx, cfg, c.Socket())
		if err := c.DialAddr(ctx, tr.RemoteAddr()); err != nil {
			return err
		}
		return c.Run(ctx, in)

	default:
		n, err := transport.NewNet()
		if err != nil {
			return err
		}
		conn, err := transport.ListenUDP(n, ":0")
		if err != nil {
			return err
		}
		c := NewClient(conn, cfg.SocketConfig(), out, socket.WithResolver(n))
		startObservability(ctx, cfg, c.Socket())
		if err := c.Dial(ctx, cfg.Server); err != nil {
			_ = c.Socket().Close()
			return err
		}
		return c.Run(ctx, in)
	}
}

// startObservability launches the stats reporter and, when configured, the
// Prometheus endpoint. Both stop with ctx.
func startObservability(ctx context.Context, cfg *config.Config, sock *socket.Socket) {
	util.StartStatsReporter(ctx, cfg.StatsInterval)
	if cfg.MetricsAddr == "" {
		return
	}
	reg := metrics.NewRegistry(func() int { return len(sock.Peers()) })
	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
			util.LogError("%v", err)
		}
	}()
}
