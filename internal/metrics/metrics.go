// Registers:
//
//	#marketfeed_stream_updates_total
//	#marketfeed_pull_calls_total
//	#marketfeed_reorder_dropped_total
//	#marketfeed_reorder_evicted_total
//	#marketfeed_malformed_frames_total
//	#marketfeed_queue_dropped_total
//	#marketfeed_reconnects_total
//	#go_* and process_* system metrics
//
// Exposed through the stats server's /metrics endpoint.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once            sync.Once
	streamUpdates   *prometheus.CounterVec
	pullCalls       *prometheus.CounterVec
	reorderDropped  *prometheus.CounterVec
	reorderEvicted  *prometheus.CounterVec
	malformedFrames *prometheus.CounterVec
	queueDropped    *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
)

func Init() {
	once.Do(func() {
		streamUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_stream_updates_total",
				Help: "Number of streaming frames applied to the cache",
			},
			[]string{"symbol", "channel"},
		)

		pullCalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_pull_calls_total",
				Help: "Number of pull API calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		)

		reorderDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_reorder_dropped_total",
				Help: "Number of events dropped as unrecoverably late",
			},
			[]string{"symbol"},
		)

		reorderEvicted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_reorder_evicted_total",
				Help: "Number of buffered events evicted at capacity",
			},
			[]string{"symbol"},
		)

		malformedFrames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_malformed_frames_total",
				Help: "Number of streaming frames skipped as malformed",
			},
			[]string{"reason"},
		)

		queueDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_queue_dropped_total",
				Help: "Number of frames dropped because a symbol queue was full",
			},
			[]string{"symbol"},
		)

		reconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_reconnects_total",
				Help: "Number of websocket reconnect attempts",
			},
			[]string{"connection"},
		)

		_ = prometheus.Register(streamUpdates)
		_ = prometheus.Register(pullCalls)
		_ = prometheus.Register(reorderDropped)
		_ = prometheus.Register(reorderEvicted)
		_ = prometheus.Register(malformedFrames)
		_ = prometheus.Register(queueDropped)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the HTTP handler serving the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncrementStreamUpdate increases the applied-frame counter for a symbol and channel.
func IncrementStreamUpdate(symbol, channel string) {
	if streamUpdates != nil {
		streamUpdates.WithLabelValues(symbol, channel).Inc()
	}
}

// IncrementPullCall increases the pull-call counter for an endpoint and outcome.
func IncrementPullCall(endpoint, outcome string) {
	if pullCalls != nil {
		pullCalls.WithLabelValues(endpoint, outcome).Inc()
	}
}

// IncrementReorderDropped increases the too-late drop counter for a symbol.
func IncrementReorderDropped(symbol string) {
	if reorderDropped != nil {
		reorderDropped.WithLabelValues(symbol).Inc()
	}
}

// IncrementReorderEvicted increases the capacity-eviction counter for a symbol.
func IncrementReorderEvicted(symbol string) {
	if reorderEvicted != nil {
		reorderEvicted.WithLabelValues(symbol).Inc()
	}
}

// IncrementMalformedFrame increases the malformed-frame counter.
func IncrementMalformedFrame(reason string) {
	if malformedFrames != nil {
		malformedFrames.WithLabelValues(reason).Inc()
	}
}

// IncrementQueueDropped increases the full-queue drop counter for a symbol.
func IncrementQueueDropped(symbol string) {
	if queueDropped != nil {
		queueDropped.WithLabelValues(symbol).Inc()
	}
}

// IncrementReconnect increases the reconnect counter for a connection.
func IncrementReconnect(connection string) {
	if reconnects != nil {
		reconnects.WithLabelValues(connection).Inc()
	}
}
