// Package metrics exposes the server's Prometheus counters and gauges.
//
// Uses github.com/prometheus/client_golang's promauto/promhttp for metrics
// exposition.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtspserver",
		Name:      "connections_accepted_total",
		Help:      "Total RTSP control connections accepted.",
	})

	SessionsPlaying = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtspserver",
		Name:      "sessions_playing",
		Help:      "Number of sessions currently in the Playing state.",
	})

	FramesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtspserver",
		Name:      "frames_published_total",
		Help:      "Total frames passed to PublishFrame, by stream.",
	}, []string{"stream"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtspserver",
		Name:      "frames_dropped_total",
		Help:      "Frames PublishFrame could not deliver to any subscriber, by stream.",
	}, []string{"stream"})

	RTPPacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtspserver",
		Name:      "rtp_packets_sent_total",
		Help:      "Total RTP packets written to client sockets.",
	})
)

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
