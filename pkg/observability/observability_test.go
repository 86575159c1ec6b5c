package observability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestClientMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewClientMetricsWith(reg)

	metrics.RecordRequest("/api/upload", 200, 1.2)
	metrics.RecordRequest("/api/me", 401, 0.01)
	metrics.RecordUpload("audio", OutcomeSuccess, 1024, 3.5)
	metrics.RecordRecording(62, 512*1024)
	metrics.RecordAnalysis("upload", OutcomeSuccess)
	metrics.RecordWatchFile(OutcomeFailure)
	metrics.RecordHistoryOp("file", "append", nil)
	metrics.RecordHistoryOp("redis", "list", errors.New("down"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"minutes_api_requests_total":       false,
		"minutes_api_request_seconds":      false,
		"minutes_uploads_total":            false,
		"minutes_upload_bytes_total":       false,
		"minutes_upload_seconds":           false,
		"minutes_recording_seconds":        false,
		"minutes_recording_encoded_bytes":  false,
		"minutes_analyses_total":           false,
		"minutes_watch_files_total":        false,
		"minutes_history_operations_total": false,
	}

	for _, fam := range families {
		if _, ok := expectedMetrics[fam.GetName()]; ok {
			expectedMetrics[fam.GetName()] = true
		}
	}

	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("Metric %s not found in registry", name)
		}
	}
}

func TestClientMetrics_NilIsNoop(t *testing.T) {
	var metrics *ClientMetrics

	metrics.RecordRequest("/api/upload", 200, 1)
	metrics.RecordUpload("audio", OutcomeSuccess, 1, 1)
	metrics.RecordRecording(1, 1)
	metrics.RecordAnalysis("transcript", OutcomeFailure)
	metrics.RecordWatchFile(OutcomeSuccess)
	metrics.RecordHistoryOp("file", "list", nil)

	if metrics.Gatherer() != nil {
		t.Error("nil metrics should have no gatherer")
	}
	if err := metrics.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Errorf("WriteTextfile on nil metrics = %v", err)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{
		0:   "error",
		-1:  "error",
		200: "2xx",
		201: "2xx",
		401: "4xx",
		413: "4xx",
		502: "5xx",
	}
	for status, want := range tests {
		if got := StatusClass(status); got != want {
			t.Errorf("StatusClass(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestClientMetrics_WriteTextfile(t *testing.T) {
	metrics := NewClientMetrics()
	metrics.RecordUpload("video", OutcomeCanceled, 2048, 0.5)

	path := filepath.Join(t.TempDir(), "textfile", "minutes.prom")
	if err := metrics.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `minutes_uploads_total{kind="video",outcome="canceled"} 1`) {
		t.Errorf("textfile missing upload counter:\n%s", data)
	}
	if !strings.Contains(string(data), `minutes_upload_bytes_total{kind="video"} 2048`) {
		t.Errorf("textfile missing byte counter:\n%s", data)
	}
}

func TestClientMetrics_WriteTextfileEmptyPath(t *testing.T) {
	if err := NewClientMetrics().WriteTextfile(""); err != nil {
		t.Errorf("WriteTextfile(\"\") = %v, want nil", err)
	}
}

func TestTracer_Spans(t *testing.T) {
	tracer := NewTracerWithProvider(noop.NewTracerProvider())
	ctx := context.Background()

	spans := []func() (context.Context, trace.Span){
		func() (context.Context, trace.Span) {
			return tracer.StartRequestSpan(ctx, "POST", "/api/upload", "req-1")
		},
		func() (context.Context, trace.Span) {
			return tracer.StartUploadSpan(ctx, "standup.mp3", "audio", 1024)
		},
		func() (context.Context, trace.Span) { return tracer.StartAnalyzeSpan(ctx, 120) },
		func() (context.Context, trace.Span) { return tracer.StartRecordingSpan(ctx, "default") },
		func() (context.Context, trace.Span) { return tracer.StartWatchFileSpan(ctx, "a.wav") },
	}

	for _, start := range spans {
		spanCtx, span := start()
		if spanCtx == nil || span == nil {
			t.Fatal("span start returned nil")
		}
		helper := NewSpanHelper(span)
		helper.SetStatusCode(200)
		helper.SetProgress(45)
		helper.AddEvent("done")
		helper.SetError(errors.New("boom"), "network_error", true)
		helper.SetSuccess()
		span.End()
	}
}

func TestNewTracer_Global(t *testing.T) {
	if NewTracer() == nil {
		t.Fatal("NewTracer returned nil")
	}
}
