// Package observability provides Prometheus metrics and OpenTelemetry spans
// for the minutes client.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for client operations.
	TracerName = "minutes"
)

// Span attribute keys
const (
	AttrEndpoint   = "http.route"
	AttrMethod     = "http.method"
	AttrStatusCode = "http.status_code"
	AttrRequestID  = "request_id"
	AttrFilename   = "media.filename"
	AttrMediaKind  = "media.kind"
	AttrMediaBytes = "media.bytes"
	AttrErrorKind  = "error.kind"
	AttrRetryable  = "retryable"
	AttrPercent    = "progress.percent"
	AttrSource     = "analysis.source"
)

// Span names
const (
	SpanRequest   = "minutes.request"
	SpanUpload    = "minutes.upload"
	SpanAnalyze   = "minutes.analyze_transcript"
	SpanRecording = "minutes.recording"
	SpanWatchFile = "minutes.watch.file"
)

// Tracer provides tracing for client operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new client tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewTracerWithProvider creates a tracer from an explicit provider.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartRequestSpan starts a span for a single API request.
func (t *Tracer) StartRequestSpan(ctx context.Context, method, endpoint, requestID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrMethod, method),
			attribute.String(AttrEndpoint, endpoint),
			attribute.String(AttrRequestID, requestID),
		),
	)
}

// StartUploadSpan starts the root span of a media upload.
func (t *Tracer) StartUploadSpan(ctx context.Context, filename, kind string, size int64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanUpload,
		trace.WithAttributes(
			attribute.String(AttrFilename, filename),
			attribute.String(AttrMediaKind, kind),
			attribute.Int64(AttrMediaBytes, size),
		),
	)
}

// StartAnalyzeSpan starts the span of a transcript analysis.
func (t *Tracer) StartAnalyzeSpan(ctx context.Context, chars int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAnalyze,
		trace.WithAttributes(attribute.Int("transcript.chars", chars)),
	)
}

// StartRecordingSpan starts the span covering a microphone recording.
func (t *Tracer) StartRecordingSpan(ctx context.Context, device string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRecording,
		trace.WithAttributes(attribute.String("device", device)),
	)
}

// StartWatchFileSpan starts the span for one watched file.
func (t *Tracer) StartWatchFileSpan(ctx context.Context, filename string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanWatchFile,
		trace.WithAttributes(attribute.String(AttrFilename, filename)),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetStatusCode sets the HTTP status attribute.
func (h *SpanHelper) SetStatusCode(status int) {
	h.span.SetAttributes(attribute.Int(AttrStatusCode, status))
}

// SetProgress records an upload progress step as a span event.
func (h *SpanHelper) SetProgress(percent int) {
	h.span.AddEvent("progress", trace.WithAttributes(attribute.Int(AttrPercent, percent)))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, errorKind string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorKind, errorKind),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}
