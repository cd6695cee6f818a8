// Package metrics defines Prometheus metrics for the FeatherStore client.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// Client-side request metrics (rate, errors, duration, volume).
var (
	// RequestsTotal counts storage API requests by method and HTTP status.
	// Transport failures are recorded with status "error".
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featherstore_requests_total",
			Help: "Total storage API requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration observes request latency in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "featherstore_request_duration_seconds",
			Help:    "Storage API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// BytesSentTotal counts request body bytes sent to the storage API.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "featherstore_bytes_sent_total",
			Help: "Request body bytes sent",
		},
	)

	// BytesReceivedTotal counts response body bytes read from ranged GETs.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "featherstore_bytes_received_total",
			Help: "Response body bytes received",
		},
	)

	// MultipartPartsTotal counts uploaded multipart parts.
	MultipartPartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "featherstore_multipart_parts_total",
			Help: "Multipart parts uploaded",
		},
	)
)

// Register registers all FeatherStore collectors with the default
// Prometheus registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestDuration,
			BytesSentTotal,
			BytesReceivedTotal,
			MultipartPartsTotal,
		)
	})
}

// ObserveRequest records one completed exchange. status <= 0 means no HTTP
// response was obtained.
func ObserveRequest(method string, status int, bytesSent int64, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(method, label).Inc()
	RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	if bytesSent > 0 {
		BytesSentTotal.Add(float64(bytesSent))
	}
}
