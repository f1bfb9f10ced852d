package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	ChannelSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxsearch",
			Name:      "channel_search_duration_seconds",
			Help:      "Per-channel search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel", "status"},
	)

	ChannelHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxsearch",
			Name:      "channel_hits_total",
			Help:      "Total hits returned per channel",
		},
		[]string{"channel"},
	)

	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxsearch",
			Name:      "retrieval_requests_total",
			Help:      "Total retrieval requests processed in the background",
		},
		[]string{"status"}, // "success" / "failure"
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxsearch",
			Name:      "delivery_attempts_total",
			Help:      "Callback delivery attempts by outcome",
		},
		[]string{"outcome"}, // "delivered" / "rejected" / "transport_error" / "dropped"
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(ChannelSearchDuration)
	prometheus.MustRegister(ChannelHitsTotal)
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(DeliveryAttemptsTotal)
	retrievalMetricsRegistered = true
}
