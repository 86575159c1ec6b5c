package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
)

// UploadEventType identifies an UploadEvent.
type UploadEventType int

const (
	EventProgress UploadEventType = iota
	EventDone
	EventFailed
)

func (t UploadEventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// UploadEvent is one step of an upload. Percent is set for progress events,
// Bundle for Done and Err for Failed.
type UploadEvent struct {
	Type    UploadEventType
	Percent int
	Bundle  *AnalysisBundle
	Err     error
}

// Terminal reports whether the event ends the stream.
func (e UploadEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventFailed
}

// Transfer progress is scaled into [0, TransferPercent]; the remainder is
// reserved for server-side processing and reported as 100 on success.
const (
	TransferPercent = 90
	CompletePercent = 100
)

// eventBuffer holds every event one upload can produce: progress values
// 0..90 are strictly increasing, then 100 and the terminal event. Sends
// therefore never block, even when nobody reads the channel.
const eventBuffer = TransferPercent + 1 + 2

// UploadTask is one in-flight upload. Events arrive in order on Events():
// zero or more progress events, then exactly one Done or Failed, then the
// channel is closed.
type UploadTask struct {
	events chan UploadEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	closed      bool
	lastPercent int

	bundle *AnalysisBundle
	err    error
}

// Events returns the ordered event stream.
func (t *UploadTask) Events() <-chan UploadEvent {
	return t.events
}

// Cancel aborts the upload. The terminal event is Failed with a Canceled error
// unless the upload already finished.
func (t *UploadTask) Cancel() {
	t.cancel()
}

// Wait blocks until the upload finishes and returns its outcome.
func (t *UploadTask) Wait() (*AnalysisBundle, error) {
	<-t.done
	return t.bundle, t.err
}

// Done is closed when the terminal event has been sent.
func (t *UploadTask) Done() <-chan struct{} {
	return t.done
}

func (t *UploadTask) progress(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || percent <= t.lastPercent {
		return
	}
	t.lastPercent = percent
	t.events <- UploadEvent{Type: EventProgress, Percent: percent}
}

func (t *UploadTask) finish(bundle *AnalysisBundle, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.bundle, t.err = bundle, err
	if err != nil {
		t.events <- UploadEvent{Type: EventFailed, Err: err}
	} else {
		if t.lastPercent < CompletePercent {
			t.lastPercent = CompletePercent
			t.events <- UploadEvent{Type: EventProgress, Percent: CompletePercent}
		}
		t.events <- UploadEvent{Type: EventDone, Bundle: bundle}
	}
	close(t.events)
	t.mu.Unlock()
	close(t.done)
	t.cancel()
}

// progressReader reports floor(sent*90/total) as the body is consumed.
type progressReader struct {
	r     io.Reader
	sent  atomic.Int64
	total int64
	task  *UploadTask
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		sent := p.sent.Add(int64(n))
		p.task.progress(int(sent * TransferPercent / p.total))
	}
	return n, err
}

// buildMultipart renders the upload body in memory so its full length is
// known up front and progress can be measured against it.
func buildMultipart(payload *media.Payload) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(payload.Name())))
	contentType := payload.MIME()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, payload.Reader()); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &body, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// StartUpload begins uploading payload and returns immediately.
func (c *Client) StartUpload(ctx context.Context, payload *media.Payload) *UploadTask {
	ctx, cancel := context.WithCancel(ctx)
	task := &UploadTask{
		events:      make(chan UploadEvent, eventBuffer),
		cancel:      cancel,
		done:        make(chan struct{}),
		lastPercent: -1,
	}
	go c.runUpload(ctx, task, payload)
	return task
}

func (c *Client) runUpload(ctx context.Context, task *UploadTask, payload *media.Payload) {
	kind := payload.Kind().String()
	ctx, span := c.tracer.StartUploadSpan(ctx, payload.Name(), kind, payload.Size())
	defer span.End()
	helper := observability.NewSpanHelper(span)
	log := c.logger.WithContext(ctx).With(
		logging.F("filename", payload.Name()),
		logging.F("kind", kind),
	)

	start := time.Now()
	var sent int64
	bundle, err := c.upload(ctx, task, payload, &sent)

	outcome := observability.OutcomeSuccess
	switch {
	case err == nil:
		helper.SetSuccess()
		log.Info("Upload complete", logging.F("duration_ms", time.Since(start).Milliseconds()))
	case mferrors.IsCanceled(err):
		outcome = observability.OutcomeCanceled
		helper.SetError(err, string(mferrors.KindCanceled), false)
		log.Info("Upload canceled")
	default:
		outcome = observability.OutcomeFailure
		k, _ := mferrors.KindOf(err)
		helper.SetError(err, string(k), mferrors.IsRetryable(k))
		log.Warn("Upload failed", logging.Err(err))
	}
	c.options.Metrics.RecordUpload(kind, outcome, sent, time.Since(start).Seconds())

	task.finish(bundle, err)
}

func (c *Client) upload(ctx context.Context, task *UploadTask, payload *media.Payload, sent *int64) (*AnalysisBundle, error) {
	body, contentType, err := buildMultipart(payload)
	if err != nil {
		return nil, mferrors.Wrap(mferrors.KindUploadFailed, "", err)
	}
	total := int64(body.Len())
	reader := &progressReader{r: bytes.NewReader(body.Bytes()), total: total, task: task}

	resp, err := c.send(ctx, request{
		method:        http.MethodPost,
		endpoint:      EndpointUpload,
		body:          reader,
		contentType:   contentType,
		contentLength: total,
		guarded:       true,
	})
	*sent = reader.sent.Load()
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, statusError(mferrors.KindUploadFailed, resp, "Upload failed: "+resp.statusText)
	}
	return ParseAnalysisBundle(resp.body)
}

// Upload uploads payload and blocks until it finishes. onProgress, if set,
// receives every progress percentage in order.
func (c *Client) Upload(ctx context.Context, payload *media.Payload, onProgress func(percent int)) (*AnalysisBundle, error) {
	task := c.StartUpload(ctx, payload)
	for ev := range task.Events() {
		if ev.Type == EventProgress && onProgress != nil {
			onProgress(ev.Percent)
		}
	}
	return task.Wait()
}
