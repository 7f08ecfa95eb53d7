// Command rudp is the CLI entry point.
//
// The server relays chat lines between every peer that reaches it; the
// client sends stdin lines to a server and prints what comes back. Both run
// over plain UDP or over a WebRTC DataChannel negotiated through WebSocket
// signaling.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/1ureka/rudp/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
