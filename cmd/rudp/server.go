package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/rudp/internal/app"
	"github.com/1ureka/rudp/internal/util"
)

func newServerCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the chat server",
		Long: `Relays every line a peer sends to all peers and announces peers joining,
leaving and timing out. A peer sending "` + app.StopCommand + `" stops the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}

			pterm.Info.Printfln("rudp server v%s", version)
			if err := app.RunServer(cmd.Context(), cfg, os.Stdout); err != nil {
				return err
			}
			util.LogInfo("server closed")
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringP("listen", "l", ":2000", "UDP bind address, or WebSocket signaling address for webrtc")
	addSocketFlags(fs)
	return cmd
}
