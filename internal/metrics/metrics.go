// Package metrics exposes the process traffic counters to Prometheus.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/1ureka/rudp/internal/util"
)

// PeerCounter reports the number of live peers.
type PeerCounter func() int

// NewRegistry returns a registry holding the Go runtime collectors, one
// counter per util.Stats field and a live-peer gauge fed by peers.
func NewRegistry(peers PeerCounter) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	counter := func(name, help string, v *atomic.Int64) {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rudp",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}

	counter("datagrams_received_total", "Datagrams accepted from peers", &util.Stats.DatagramsIn)
	counter("datagrams_sent_total", "Datagrams written to the carrier", &util.Stats.DatagramsOut)
	counter("received_bytes_total", "Bytes accepted from peers, headers included", &util.Stats.BytesIn)
	counter("sent_bytes_total", "Bytes written to the carrier, headers included", &util.Stats.BytesOut)
	counter("datagrams_dropped_total", "Malformed, foreign or conflicting datagrams", &util.Stats.Dropped)
	counter("peer_connects_total", "Peers recognized", &util.Stats.Connects)
	counter("peer_disconnects_total", "Peers removed by an explicit hang-up", &util.Stats.Disconnects)
	counter("peer_timeouts_total", "Peers removed after going silent", &util.Stats.Timeouts)
	counter("sequences_lost_total", "Reliable-order sequences never acknowledged", &util.Stats.Lost)

	if peers != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rudp",
			Name:      "peers",
			Help:      "Peers currently registered",
		}, func() float64 { return float64(peers()) })
	}
	return reg
}
