package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogocls_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pogocls_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Classification metrics
	imagesClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogocls_images_classified_total",
			Help: "Total number of classified text-line images",
		},
		[]string{"label"}, // label: 0, 180
	)

	imagesRotatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pogocls_images_rotated_total",
			Help: "Total number of images rotated by 180 degrees",
		},
	)

	inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pogocls_inference_duration_seconds",
			Help:    "Summed backend inference time per request in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"}, // source: http, websocket
	)

	batchImages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pogocls_batch_images",
			Help:    "Number of images per classification request",
			Buckets: []float64{1, 2, 4, 6, 12, 24, 48, 96, 192},
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogocls_rate_limit_hits_total",
			Help: "Total number of rejected requests due to rate limits or quotas",
		},
		[]string{"type"}, // type: minute, hour, requests, images
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pogocls_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pogocls_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pogocls_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// recordClassification updates the classification counters for one request.
func recordClassification(source string, n int, labels []string, rotated int, seconds float64) {
	batchImages.Observe(float64(n))
	inferenceDuration.WithLabelValues(source).Observe(seconds)
	for _, l := range labels {
		imagesClassifiedTotal.WithLabelValues(l).Inc()
	}
	imagesRotatedTotal.Add(float64(rotated))
}
