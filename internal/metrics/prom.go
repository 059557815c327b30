package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsdk_requests_total",
			Help: "Wallet requests by message type and outcome",
		},
		[]string{"type", "network", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletsdk_request_duration_seconds",
			Help:    "Wallet request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	popupOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletsdk_popup_opens_total",
			Help: "Wallet windows opened",
		},
	)

	droppedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsdk_dropped_messages_total",
			Help: "Inbound messages discarded before dispatch",
		},
		[]string{"reason"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(requests, requestDuration, popupOpens, droppedMessages)
}

// RecordRequest increments the request counter.
func RecordRequest(msgType, network string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	requests.WithLabelValues(msgType, network, outcome).Inc()
}

// ObserveRequestDuration records the duration of a settled request.
func ObserveRequestDuration(msgType string, d time.Duration) {
	requestDuration.WithLabelValues(msgType).Observe(d.Seconds())
}

// RecordPopupOpen increments the popup counter.
func RecordPopupOpen() {
	popupOpens.Inc()
}

// RecordDroppedMessage counts a discarded inbound message. Reasons:
// origin_mismatch, stale, malformed.
func RecordDroppedMessage(reason string) {
	droppedMessages.WithLabelValues(reason).Inc()
}
