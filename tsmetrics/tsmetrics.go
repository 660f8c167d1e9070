// Package tsmetrics defines Prometheus instrumentation for Channel
// operations: request counts, byte counts, batch counts, and errors by
// kind. Adapted from the teacher's metrics package, which tracks
// analogous counters (errors by type, snapshot counts, rate histograms)
// for its own polling pipeline.
package tsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestCount counts requests issued, labeled by operation
	// (get, get_stream, get_acq, put, put_a).
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tstorage_client_request_total",
			Help: "Number of requests issued, by operation.",
		}, []string{"op"})

	// RequestErrorCount counts requests that ended in a non-ok result,
	// labeled by operation and the public error kind.
	RequestErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tstorage_client_request_error_total",
			Help: "Number of requests that returned an error, by operation and error kind.",
		}, []string{"op", "kind"})

	// BytesSent and BytesReceived track the wire bytes the channel
	// wrote/read, labeled by operation.
	BytesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tstorage_client_bytes_sent_total",
			Help: "Bytes written to the underlying stream, by operation.",
		}, []string{"op"})
	BytesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tstorage_client_bytes_received_total",
			Help: "Bytes read from the underlying stream, by operation.",
		}, []string{"op"})

	// BatchCount counts the number of batch headers emitted by a PUT or
	// PUT_A request, which is the direct cost of the grouping algorithm's
	// effectiveness (fewer batches is better).
	BatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tstorage_client_batch_total",
			Help: "Number of batch headers written, by operation.",
		}, []string{"op"})

	// RecordCount counts records sent (PUT/PUT_A) or received (GET)
	RecordCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tstorage_client_record_total",
			Help: "Number of records transferred, by operation and direction.",
		}, []string{"op", "direction"})

	// RequestLatency tracks end-to-end request latency by operation.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tstorage_client_request_latency_seconds",
			Help: "Request latency distribution, by operation.",
			Buckets: []float64{
				0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
				0.25, 0.5, 1, 2.5, 5, 10, 20,
			},
		}, []string{"op"})
)
