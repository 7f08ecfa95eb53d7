package transport

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rudp/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing datagram channel capacity
)

// sender is the single writer to a DataChannel. It holds datagrams until the
// channel opens and pauses while the SCTP buffer is above the high-water
// mark.
type sender struct {
	inbox       chan []byte
	drainSignal chan struct{}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case data := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}
			if err := dc.Send(data); err != nil {
				util.LogError("DataChannel send failed (%d bytes): %v", len(data), err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a datagram. It blocks while the queue is full and reports
// false once ctx is cancelled.
func (s *sender) send(ctx context.Context, data []byte) bool {
	select {
	case s.inbox <- data:
		return true
	case <-ctx.Done():
		return false
	}
}
