package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/rudp/internal/protocol"
	"github.com/1ureka/rudp/internal/socket"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <hex>",
		Short: "Decode a captured datagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := decodeHex(args[0])
			if err != nil {
				return err
			}
			pkt, err := inspect(raw)
			if err != nil {
				return err
			}
			return pterm.DefaultTable.WithHasHeader().WithData(describe(pkt)).Render()
		},
	}
}

// decodeHex accepts plain hex as well as the spaced or colon separated
// dumps packet tools print.
func decodeHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\n", "", "0x", "").Replace(s)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return raw, nil
}

func inspect(raw []byte) (*protocol.Packet, error) {
	v, err := protocol.Identify(raw)
	if err != nil {
		return nil, err
	}
	return protocol.Parse(v, raw)
}

func describe(pkt *protocol.Packet) pterm.TableData {
	h := pkt.Header
	rows := pterm.TableData{
		{"Field", "Value"},
		{"variant", h.Variant.String()},
		{"protocol id", fmt.Sprintf("%d", h.Variant.ProtocolID())},
		{"peer id", h.PeerID.String()},
	}
	if h.Variant.Sequenced() {
		rows = append(rows,
			[]string{"sequence", fmt.Sprintf("%d", h.Sequence)},
			[]string{"ack", fmt.Sprintf("%d", h.Ack)},
		)
	}
	if h.Variant == protocol.ReliableOrder {
		rows = append(rows, []string{"ack bits", fmt.Sprintf("%032b", h.AckBits)})
	}

	payload := fmt.Sprintf("%d bytes %q", len(pkt.Payload), pkt.Payload)
	switch {
	case len(pkt.Payload) == 0:
		payload = "keep-alive"
	case socket.IsDisconnect(pkt.Payload):
		payload = "disconnect"
	}
	return append(rows, []string{"payload", payload})
}
