package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/rudp/internal/app"
	"github.com/1ureka/rudp/internal/config"
)

func newClientCmd(root *rootOptions) *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "client [server]",
		Short: "Connect to a chat server and send lines from stdin",
		Long: `Sends each stdin line to the server and prints everything it relays.
Type "` + app.QuitCommand + `" to leave. The server is host:port for udp, or the
signaling URL printed by the server for webrtc.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("server", args[0]); err != nil {
					return err
				}
			}
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}

			if cfg.Carrier == config.CarrierWebRTC {
				if cfg.Server, err = normalizeWSURL(cfg.Server, pin); err != nil {
					return err
				}
			} else {
				cfg.Server = withDefaultPort(cfg.Server)
			}

			pterm.Info.Printfln("rudp client v%s", version)
			return app.RunClient(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}

	fs := cmd.Flags()
	fs.StringP("server", "s", fmt.Sprintf("127.0.0.1:%d", config.DefaultPort), "Server address or signaling URL")
	fs.StringVar(&pin, "pin", "", "Signaling PIN shown by the server (webrtc)")
	addSocketFlags(fs)
	return cmd
}

// withDefaultPort appends the well-known port to a bare host.
func withDefaultPort(server string) string {
	if strings.Contains(server, ":") {
		return server
	}
	return fmt.Sprintf("%s:%d", server, config.DefaultPort)
}

// normalizeWSURL validates a signaling URL and points it at /ws with the
// PIN query. A PIN already present in raw is kept unless pin overrides it.
func normalizeWSURL(raw, pin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	if pin == "" {
		pin = u.Query().Get("pin")
	}
	if pin == "" {
		return "", fmt.Errorf("missing signaling PIN for %s", raw)
	}
	q := url.Values{"pin": []string{pin}}
	return fmt.Sprintf("%s://%s/ws?%s", scheme, u.Host, q.Encode()), nil
}
