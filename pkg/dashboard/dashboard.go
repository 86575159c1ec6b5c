// Package dashboard owns the state of one analysis session: the media being
// uploaded, its upload progress, the transcript and the analysis result. All
// transitions happen under one mutex, so a Snapshot never shows a result
// next to a transcript or payload that did not produce it.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/otherjamesbrown/minutes-cli/client"
	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/history"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
	"github.com/otherjamesbrown/minutes-cli/pkg/notice"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
	"github.com/otherjamesbrown/minutes-cli/pkg/presenter"
)

var (
	// ErrBusy is returned when an operation starts while an upload, an
	// analysis or a recording is running.
	ErrBusy = errors.New("an upload or recording is already in progress")

	// ErrNoResult is returned by the export operations before any analysis succeeded.
	ErrNoResult = errors.New("no analysis to export")

	// ErrNoRecorder is returned by the recording operations when no recorder was configured.
	ErrNoRecorder = errors.New("no recording device configured")
)

// API is the part of the HTTP client the dashboard drives.
type API interface {
	StartUpload(ctx context.Context, payload *media.Payload) *client.UploadTask
	AnalyzeTranscript(ctx context.Context, text string) (*client.TranscriptAnalysis, error)
}

// Recorder captures audio for StartRecording and StopRecording.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*media.Payload, error)
	Finalized() <-chan struct{}
	Elapsed() time.Duration
}

// Dashboard coordinates capture, upload, analysis and export. It is safe for
// concurrent use; operations that would overlap return ErrBusy.
type Dashboard struct {
	api        API
	recorder   Recorder
	notifier   notice.Notifier
	history    history.Store
	metrics    *observability.ClientMetrics
	logger     logging.Logger
	now        func() time.Time
	onProgress func(percent int)
	exportTag  string

	mu         sync.Mutex
	upload     UploadState
	result     *client.AnalysisResult
	transcript string
	payload    *media.Payload
	historyID  string
	recording  bool
	busy       bool
	generation uint64
	cancel     context.CancelFunc
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithRecorder enables StartRecording and StopRecording.
func WithRecorder(r Recorder) Option {
	return func(d *Dashboard) { d.recorder = r }
}

// WithNotifier sets where notices go. The default discards them.
func WithNotifier(n notice.Notifier) Option {
	return func(d *Dashboard) { d.notifier = n }
}

// WithHistory appends every successful analysis to store.
func WithHistory(store history.Store) Option {
	return func(d *Dashboard) { d.history = store }
}

// WithMetrics records analysis and recording metrics.
func WithMetrics(m *observability.ClientMetrics) Option {
	return func(d *Dashboard) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dashboard) { d.logger = l }
}

// WithClock overrides the clock used for exports and history entries.
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

// WithProgress calls fn for every upload progress step, after the state has
// been updated. fn runs on the goroutine that called the upload operation.
func WithProgress(fn func(percent int)) Option {
	return func(d *Dashboard) { d.onProgress = fn }
}

// WithExportTag adds tag to export file names, so exports from several
// dashboards on the same day do not replace each other.
func WithExportTag(tag string) Option {
	return func(d *Dashboard) { d.exportTag = tag }
}

// New returns an idle dashboard.
func New(api API, opts ...Option) *Dashboard {
	d := &Dashboard{
		api:      api,
		notifier: notice.Discard,
		logger:   logging.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Snapshot returns a copy of the current state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Upload:     d.upload,
		Result:     copyResult(d.result),
		Transcript: d.transcript,
		HistoryID:  d.historyID,
		Recording:  d.recording,
		Busy:       d.busy,
	}
	if d.payload != nil {
		s.Filename = d.payload.Name()
		s.Kind = d.payload.Kind()
	}
	return s
}

// Clear resets the result, transcript, payload and upload state in one step.
// An upload or analysis still running is canceled and its outcome discarded.
func (d *Dashboard) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.generation++
	d.upload = UploadState{}
	d.result = nil
	d.transcript = ""
	d.payload = nil
	d.historyID = ""
}

func (d *Dashboard) acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy || d.recording {
		return ErrBusy
	}
	d.busy = true
	return nil
}

func (d *Dashboard) release() {
	d.mu.Lock()
	d.busy = false
	d.cancel = nil
	d.mu.Unlock()
}

// begin starts a new attempt: it clears the previous outcome, runs reset and
// returns the attempt's generation and cancelable context.
func (d *Dashboard) begin(ctx context.Context, reset func()) (uint64, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.cancel = cancel
	d.result = nil
	d.historyID = ""
	reset()
	return d.generation, ctx, cancel
}

// apply runs fn under the lock unless Clear ran since the attempt began.
func (d *Dashboard) apply(gen uint64, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation {
		return false
	}
	fn()
	return true
}

func (d *Dashboard) notify(level notice.Level, title, message string) {
	d.notifier.Notify(notice.Notice{Level: level, Title: title, Message: message})
}

// SubmitFile validates the file at path, uploads it and returns the analysis.
// Invalid files are rejected before any network call.
func (d *Dashboard) SubmitFile(ctx context.Context, path string, kind media.Kind) (*client.AnalysisResult, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	payload, err := media.LoadFile(path, kind)
	if err != nil {
		title := "Invalid File Type"
		switch {
		case errors.Is(err, media.ErrFileTooLarge):
			title = "File Too Large"
		case !errors.Is(err, media.ErrUnsupportedType):
			title = "Invalid File"
		}
		d.notify(notice.LevelError, title, mferrors.Message(err))
		return nil, err
	}
	return d.uploadPayload(ctx, payload, history.SourceUpload)
}

// SubmitPayload uploads an already built payload, such as one read from stdin.
func (d *Dashboard) SubmitPayload(ctx context.Context, payload *media.Payload) (*client.AnalysisResult, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	if err := media.ValidateFile(payload.Name(), payload.MIME(), payload.Size(), payload.Kind()); err != nil {
		d.notify(notice.LevelError, "Invalid File", mferrors.Message(err))
		return nil, err
	}
	return d.uploadPayload(ctx, payload, history.SourceUpload)
}

func (d *Dashboard) uploadPayload(ctx context.Context, payload *media.Payload, source history.Source) (*client.AnalysisResult, error) {
	gen, ctx, cancel := d.begin(ctx, func() {
		d.payload = payload
		d.transcript = ""
		d.upload = UploadState{Phase: PhaseInProgress}
	})
	defer cancel()

	logger := d.logger.WithContext(ctx).With(
		logging.F("filename", payload.Name()),
		logging.F("source", string(source)),
	)
	d.notify(notice.LevelInfo, fmt.Sprintf("Uploading %s...", payload.Kind()), "Processing "+payload.Name())

	task := d.api.StartUpload(ctx, payload)
	for ev := range task.Events() {
		if ev.Type != client.EventProgress {
			continue
		}
		percent := ev.Percent
		if d.apply(gen, func() { d.upload.Percent = percent }) && d.onProgress != nil {
			d.onProgress(percent)
		}
	}

	bundle, err := task.Wait()
	if err != nil {
		d.failed(gen, source, err, "Upload Failed", logger)
		return nil, err
	}

	result := copyResult(bundle.Analysis)
	filename := bundle.Filename
	if filename == "" {
		filename = payload.Name()
	}
	d.apply(gen, func() {
		d.upload = UploadState{Phase: PhaseSucceeded, Percent: client.CompletePercent}
		d.result = result
		d.transcript = bundle.Transcript
	})

	d.metrics.RecordAnalysis(string(source), observability.OutcomeSuccess)
	logger.Info("Analysis complete", logging.F("transcript_chars", len(bundle.Transcript)))
	d.notify(notice.LevelSuccess, "Analysis Complete!", "Successfully processed "+filename)
	d.remember(ctx, gen, source, filename, bundle.Transcript, result)
	return copyResult(result), nil
}

// failed records a failed upload or analysis. AuthRequired leaves the
// attempt's state unset and sends no notice of its own: the session guard
// has already told the user to log in.
func (d *Dashboard) failed(gen uint64, source history.Source, err error, title string, logger logging.Logger) {
	outcome := observability.OutcomeFailure
	reason := mferrors.Message(err)
	markFailed := func() {
		if source != history.SourceTranscript {
			d.upload = UploadState{Phase: PhaseFailed, Percent: d.upload.Percent, Reason: reason}
		}
	}
	switch {
	case mferrors.IsAuthRequired(err):
		d.apply(gen, func() {
			d.upload = UploadState{}
			d.payload = nil
			d.transcript = ""
		})
	case mferrors.IsCanceled(err):
		outcome = observability.OutcomeCanceled
		d.apply(gen, markFailed)
		d.notify(notice.LevelWarning, "Canceled", reason)
	default:
		d.apply(gen, markFailed)
		d.notify(notice.LevelError, title, reason)
	}
	d.metrics.RecordAnalysis(string(source), outcome)
	logger.Warn("Analysis failed", logging.Err(err))
}

// remember appends a successful analysis to the history store. A store
// failure is logged and reported as a warning; the analysis itself stands.
func (d *Dashboard) remember(ctx context.Context, gen uint64, source history.Source, filename, transcript string, result *client.AnalysisResult) {
	if d.history == nil || result == nil {
		return
	}
	entry, err := history.NewEntry(source, filename, transcript, *copyResult(result), d.now())
	if err == nil {
		err = d.history.Append(ctx, entry)
	}
	if err != nil {
		d.logger.WithContext(ctx).Warn("Saving analysis to history failed", logging.Err(err))
		d.notify(notice.LevelWarning, "History Not Saved", err.Error())
		return
	}
	d.apply(gen, func() { d.historyID = entry.ID })
}

// StartRecording opens the microphone and begins buffering audio.
func (d *Dashboard) StartRecording(ctx context.Context) error {
	if d.recorder == nil {
		return ErrNoRecorder
	}
	d.mu.Lock()
	if d.busy || d.recording {
		d.mu.Unlock()
		return ErrBusy
	}
	d.recording = true
	d.mu.Unlock()

	if err := d.recorder.Start(ctx); err != nil {
		d.mu.Lock()
		d.recording = false
		d.mu.Unlock()
		d.logger.WithContext(ctx).Warn("Recording failed to start", logging.Err(err))
		d.notify(notice.LevelError, "Recording Failed", mferrors.Message(err))
		return err
	}

	d.logger.WithContext(ctx).Info("Recording started")
	d.notify(notice.LevelInfo, "Recording Started", "Your meeting is being recorded...")
	return nil
}

// StopRecording finalizes the recording and, once the recorder signals that
// its buffer is complete, uploads it like a selected file.
func (d *Dashboard) StopRecording(ctx context.Context) (*client.AnalysisResult, error) {
	if d.recorder == nil {
		return nil, ErrNoRecorder
	}
	d.mu.Lock()
	if !d.recording {
		d.mu.Unlock()
		return nil, media.ErrNotRecording
	}
	d.busy = true
	d.mu.Unlock()
	defer d.release()

	finalized := d.recorder.Finalized()
	elapsed := d.recorder.Elapsed()
	payload, err := d.recorder.Stop()

	d.mu.Lock()
	d.recording = false
	d.mu.Unlock()

	if err != nil {
		d.logger.WithContext(ctx).Warn("Recording failed to finalize", logging.Err(err))
		d.notify(notice.LevelError, "Recording Failed", mferrors.Message(err))
		return nil, err
	}

	select {
	case <-finalized:
	default:
		select {
		case <-finalized:
		case <-ctx.Done():
			return nil, mferrors.Wrap(mferrors.KindCanceled, "", ctx.Err())
		}
	}

	d.metrics.RecordRecording(elapsed.Seconds(), int(payload.Size()))
	d.logger.WithContext(ctx).Info("Recording stopped",
		logging.F("duration", elapsed.Round(time.Second).String()),
		logging.F("bytes", payload.Size()),
	)
	d.notify(notice.LevelInfo, "Recording Stopped", "Processing your recording...")
	return d.uploadPayload(ctx, payload, history.SourceRecording)
}

// Recording reports whether a recording is running.
func (d *Dashboard) Recording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}

// AnalyzeTranscript analyzes pasted text. Empty or short transcripts are
// rejected locally with TranscriptTooShort.
func (d *Dashboard) AnalyzeTranscript(ctx context.Context, text string) (*client.AnalysisResult, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	trimmed, err := client.ValidateTranscript(text)
	if err != nil {
		title := "Transcript Too Short"
		if strings.TrimSpace(text) == "" {
			title = "No Transcript"
		}
		d.notify(notice.LevelWarning, title, mferrors.Message(err))
		return nil, err
	}

	gen, ctx, cancel := d.begin(ctx, func() {
		d.payload = nil
		d.transcript = ""
	})
	defer cancel()
	logger := d.logger.WithContext(ctx).With(logging.F("source", string(history.SourceTranscript)))

	analysis, err := d.api.AnalyzeTranscript(ctx, trimmed)
	if err != nil {
		d.failed(gen, history.SourceTranscript, err, "Analysis Failed", logger)
		return nil, err
	}
	if analysis.Note != "" {
		logger.Info("Server note", logging.F("note", analysis.Note))
	}

	result := copyResult(analysis.Analysis)
	d.apply(gen, func() {
		d.result = result
		d.transcript = trimmed
	})

	d.metrics.RecordAnalysis(string(history.SourceTranscript), observability.OutcomeSuccess)
	logger.Info("Analysis complete")
	d.notify(notice.LevelSuccess, "Analysis Complete!", "Successfully analyzed your transcript")
	d.remember(ctx, gen, history.SourceTranscript, "", trimmed, result)
	return copyResult(result), nil
}

// Export writes the current result and transcript to
// dir/meeting-analysis-<date>.json and returns the path.
func (d *Dashboard) Export(dir string) (string, error) {
	return d.export(dir, presenter.Export)
}

// ExportDocx writes the current result as a Word document.
func (d *Dashboard) ExportDocx(dir string) (string, error) {
	return d.export(dir, presenter.ExportDocx)
}

func (d *Dashboard) export(dir string, write func(*client.AnalysisResult, string, string, string, time.Time) (string, error)) (string, error) {
	snap := d.Snapshot()
	if snap.Result == nil {
		return "", ErrNoResult
	}
	path, err := write(snap.Result, snap.Transcript, dir, d.exportTag, d.now())
	if err != nil {
		d.notify(notice.LevelError, "Export Failed", err.Error())
		return "", err
	}
	d.logger.Info("Analysis exported", logging.F("path", path))
	d.notify(notice.LevelSuccess, "Export Complete!", "Analysis results have been downloaded")
	return path, nil
}

// CopyResult copies the current result to the clipboard as plain text.
func (d *Dashboard) CopyResult() error {
	snap := d.Snapshot()
	if snap.Result == nil {
		return ErrNoResult
	}
	if err := presenter.CopyToClipboard(snap.Result); err != nil {
		d.notify(notice.LevelWarning, "Copy Failed", err.Error())
		return err
	}
	d.notify(notice.LevelSuccess, "Copied", "Analysis copied to the clipboard")
	return nil
}
