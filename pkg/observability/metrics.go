package observability

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// ClientMetrics holds all Prometheus metrics for one CLI invocation.
// A nil *ClientMetrics is valid and records nothing.
type ClientMetrics struct {
	// API metrics
	RequestsTotal  *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec

	// Upload metrics
	UploadsTotal     *prometheus.CounterVec
	UploadBytesTotal *prometheus.CounterVec
	UploadSeconds    *prometheus.HistogramVec

	// Capture metrics
	RecordingSeconds prometheus.Histogram
	RecordingBytes   prometheus.Histogram

	// Analysis and watch metrics
	AnalysesTotal   *prometheus.CounterVec
	WatchFilesTotal *prometheus.CounterVec
	HistoryOpsTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// NewClientMetrics creates a new set of client metrics on a private registry.
func NewClientMetrics() *ClientMetrics {
	reg := prometheus.NewRegistry()
	m := NewClientMetricsWith(reg)
	m.gatherer = reg
	return m
}

// NewClientMetricsWith registers client metrics on reg.
func NewClientMetricsWith(reg prometheus.Registerer) *ClientMetrics {
	factory := promauto.With(reg)

	m := &ClientMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_api_requests_total",
				Help: "Total API requests by endpoint and status class",
			},
			[]string{"endpoint", "status"},
		),
		RequestSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minutes_api_request_seconds",
				Help:    "API request latency",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
			},
			[]string{"endpoint"},
		),
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_uploads_total",
				Help: "Total media uploads by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		UploadBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_upload_bytes_total",
				Help: "Total request body bytes sent for uploads",
			},
			[]string{"kind"},
		),
		UploadSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minutes_upload_seconds",
				Help:    "Upload duration including server-side transcription",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		RecordingSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "minutes_recording_seconds",
				Help:    "Length of microphone recordings",
				Buckets: []float64{5, 30, 60, 300, 900, 1800, 3600},
			},
		),
		RecordingBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "minutes_recording_encoded_bytes",
				Help:    "Encoded size of microphone recordings",
				Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
			},
		),
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_analyses_total",
				Help: "Total analyses by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		WatchFilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_watch_files_total",
				Help: "Files picked up by watch mode by outcome",
			},
			[]string{"outcome"},
		),
		HistoryOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_history_operations_total",
				Help: "History store operations by backend, operation and outcome",
			},
			[]string{"backend", "op", "outcome"},
		),
	}
	m.registerer = reg
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Gatherer returns the registry the metrics were registered on, if it can be gathered.
func (m *ClientMetrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.gatherer
}

// Registerer returns the registry the metrics were registered on, for
// collectors owned by other components such as the history database pool.
func (m *ClientMetrics) Registerer() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.registerer
}

// StatusClass maps an HTTP status to a low-cardinality label ("2xx", "4xx", ...),
// or "error" when no response was received.
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", status/100)
}

// RecordRequest records one API round trip.
func (m *ClientMetrics) RecordRequest(endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, StatusClass(status)).Inc()
	m.RequestSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// RecordUpload records a finished upload attempt.
func (m *ClientMetrics) RecordUpload(kind, outcome string, bytes int64, seconds float64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(kind, outcome).Inc()
	m.UploadBytesTotal.WithLabelValues(kind).Add(float64(bytes))
	m.UploadSeconds.WithLabelValues(kind).Observe(seconds)
}

// RecordRecording records a finalized microphone recording.
func (m *ClientMetrics) RecordRecording(seconds float64, encodedBytes int) {
	if m == nil {
		return
	}
	m.RecordingSeconds.Observe(seconds)
	m.RecordingBytes.Observe(float64(encodedBytes))
}

// RecordAnalysis records an analysis outcome for a source (upload, recording, transcript).
func (m *ClientMetrics) RecordAnalysis(source, outcome string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordWatchFile records a file handled by watch mode.
func (m *ClientMetrics) RecordWatchFile(outcome string) {
	if m == nil {
		return
	}
	m.WatchFilesTotal.WithLabelValues(outcome).Inc()
}

// RecordHistoryOp records a history store operation.
func (m *ClientMetrics) RecordHistoryOp(backend, op string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.HistoryOpsTotal.WithLabelValues(backend, op, outcome).Inc()
}

// WriteTextfile writes the gathered metrics in Prometheus text format to path,
// for pickup by node_exporter's textfile collector.
func (m *ClientMetrics) WriteTextfile(path string) error {
	if m == nil || m.gatherer == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
