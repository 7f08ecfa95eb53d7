package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide datagram/peer counter.
var Stats = &stats{}

type stats struct {
	DatagramsIn  atomic.Int64 // datagrams accepted by a socket
	DatagramsOut atomic.Int64 // datagrams handed to the transport
	BytesIn      atomic.Int64
	BytesOut     atomic.Int64
	Dropped      atomic.Int64 // malformed, foreign or conflicting datagrams
	Connects     atomic.Int64
	Disconnects  atomic.Int64 // explicit, either side
	Timeouts     atomic.Int64
	Lost         atomic.Int64 // sequences that fell out of the ack window
}

func (s *stats) AddRecv(n int) {
	s.DatagramsIn.Add(1)
	s.BytesIn.Add(int64(n))
}

func (s *stats) AddSent(n int) {
	s.DatagramsOut.Add(1)
	s.BytesOut.Add(int64(n))
}

func (s *stats) AddDrop()       { s.Dropped.Add(1) }
func (s *stats) AddConnect()    { s.Connects.Add(1) }
func (s *stats) AddDisconnect() { s.Disconnects.Add(1) }
func (s *stats) AddTimeout()    { s.Timeouts.Add(1) }
func (s *stats) AddLost(n int)  { s.Lost.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics every
// interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevIn, prevOut, prevConn, prevGone int64
		for {
			select {
			case <-ticker.C:
				in := Stats.BytesIn.Load()
				out := Stats.BytesOut.Load()
				conn := Stats.Connects.Load()
				gone := Stats.Disconnects.Load() + Stats.Timeouts.Load()

				inS := float64(in-prevIn) / secs
				outS := float64(out-prevOut) / secs
				inC := conn - prevConn
				outC := gone - prevGone

				if inC > 0 || outC > 0 || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inC, outC))
				}

				prevIn = in
				prevOut = out
				prevConn = conn
				prevGone = gone

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inC, outC int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Peers: %2d↑ %2d↓",
		formatBytes(inS),
		formatBytes(outS),
		inC,
		outC,
	)
}
