package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	StoreWrites         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "board_store_writes_total", Help: "Collection writes accepted by the backend"}, []string{"collection"})
	StoreWriteFailures  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "board_store_write_failures_total", Help: "Collection writes that fell back to memory"}, []string{"collection"})
	StoreConflicts      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "board_store_conflicts_total", Help: "Collection writes rejected by a stale version"}, []string{"collection"})
	StoreDecodeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "board_store_decode_failures_total", Help: "Collections that could not be decoded"}, []string{"collection"})
	StoreDegraded       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "board_store_degraded", Help: "1 when the store serves from its in-memory fallback"})

	EventsEmitted     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "board_events_emitted_total", Help: "Bus events emitted locally"}, []string{"type"})
	EventsReceived    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "board_events_received_total", Help: "Bus events received from the transport"}, []string{"type"})
	ListenerPanics    = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_listener_panics_total", Help: "Bus listeners that panicked"})
	TransportFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_transport_failures_total", Help: "Envelopes the transport failed to publish"})

	NotifySent        = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_notify_sent_total", Help: "Job notices pushed successfully"})
	NotifyFailures    = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_notify_failures_total", Help: "Job notices the gateway rejected"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_notify_rate_limit_rejects_total", Help: "Job notices rejected by the rate limiter"})
	SnapshotsUploaded = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_snapshots_uploaded_total", Help: "Collection snapshots uploaded"})
	ApplyReplies      = prometheus.NewCounter(prometheus.CounterOpts{Name: "board_apply_replies_total", Help: "Apply button replies from known candidates"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			StoreWrites,
			StoreWriteFailures,
			StoreConflicts,
			StoreDecodeFailures,
			StoreDegraded,
			EventsEmitted,
			EventsReceived,
			ListenerPanics,
			TransportFailures,
			NotifySent,
			NotifyFailures,
			RateLimitRejects,
			SnapshotsUploaded,
			ApplyReplies,
		)
	})
	return promhttp.Handler()
}
