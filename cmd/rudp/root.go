package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/1ureka/rudp/internal/config"
	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/socket"
	"github.com/1ureka/rudp/internal/util"
)

type rootOptions struct {
	configFile string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "rudp",
		Short:         "Reliable UDP chat server and client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServerCmd(opts))
	cmd.AddCommand(newClientCmd(opts))
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newConfigCmd(opts))
	return cmd
}

// addSocketFlags registers the flags every socket-running command shares.
// Names match configuration keys with dashes for underscores.
func addSocketFlags(fs *pflag.FlagSet) {
	fs.String("carrier", string(config.CarrierUDP), "Datagram carrier: udp or webrtc")
	fs.String("variant", protocol.Basic.String(), "Header variant: basic, time-critical or reliable-order")
	fs.Duration("connection-timeout", socket.DefaultConnectionTimeout, "Silence after which a peer is dropped")
	fs.Duration("keep-alive-interval", socket.DefaultKeepAliveInterval, "Idle time before a keep-alive is sent")
	fs.Duration("ack-timeout", socket.DefaultAckTimeout, "Age at which an unacknowledged reliable-order send is lost")
	fs.Duration("reorder-timeout", socket.DefaultReorderTimeout, "How long a reliable-order gap may hold back delivery")
	fs.Int("buffer-size", socket.DefaultBufferSize, "Receive buffer size in bytes")
	fs.StringSlice("ice-servers", nil, "STUN/TURN URLs for webrtc (default: public Google STUN)")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.Duration("stats-interval", 5*time.Second, "Traffic summary interval, 0 disables")
}

// load reads the effective config for cmd and applies the log level.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := util.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if o.debug {
		util.EnableDebug()
	}
	return cfg, nil
}
