package media

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
)

var (
	// ErrRecordingActive is returned by Start while a recording is running.
	ErrRecordingActive = errors.New("recording already in progress")

	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("no recording in progress")
)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithDevice records from device instead of the system default.
func WithDevice(device *DeviceInfo) RecorderOption {
	return func(r *Recorder) { r.device = device }
}

// WithClock overrides the clock used for recording names.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger logging.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// Recorder captures microphone audio into an in-memory PCM buffer and
// finalizes it into a FLAC payload.
//
// Device callbacks run on the audio thread; samples are appended under a
// mutex in arrival order. Stop detaches the callback before releasing the
// device, so no chunk can arrive after finalization.
type Recorder struct {
	actx   AudioContext
	device *DeviceInfo
	now    func() time.Time
	logger logging.Logger

	mu        sync.Mutex
	active    bool
	capture   CaptureDevice
	startedAt time.Time
	finalized chan struct{}

	bufMu   sync.Mutex
	samples []int16
}

// NewRecorder returns a recorder that opens devices through actx.
func NewRecorder(actx AudioContext, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		actx:      actx,
		now:       time.Now,
		logger:    logging.NewNopLogger(),
		finalized: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the capture device and begins buffering audio.
func (r *Recorder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return mferrors.Wrap(mferrors.KindCanceled, "", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ErrRecordingActive
	}

	capture, err := r.actx.NewCapture(r.device, CaptureConfig{SampleRate: SampleRate, Channels: Channels})
	if err != nil {
		r.logger.WithContext(ctx).Warn("Opening capture device failed", logging.Err(err))
		return mferrors.Wrap(mferrors.KindPermissionDenied, "", err)
	}

	r.bufMu.Lock()
	r.samples = r.samples[:0]
	r.bufMu.Unlock()

	capture.SetCallback(r.onData)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		r.logger.WithContext(ctx).Warn("Starting capture device failed", logging.Err(err))
		return mferrors.Wrap(mferrors.KindPermissionDenied, "", err)
	}

	select {
	case <-r.finalized:
		r.finalized = make(chan struct{})
	default:
	}
	r.capture = capture
	r.active = true
	r.startedAt = r.now()
	r.logger.WithContext(ctx).Debug("Recording started")
	return nil
}

func (r *Recorder) onData(data []byte, _ uint32) {
	n := len(data) / 2
	if n == 0 {
		return
	}
	chunk := make([]int16, n)
	for i := range chunk {
		chunk[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	r.bufMu.Lock()
	r.samples = append(r.samples, chunk...)
	r.bufMu.Unlock()
}

// Stop releases the device and encodes the buffered audio. Finalized() is
// closed before Stop returns, whether or not encoding succeeded.
func (r *Recorder) Stop() (*Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil, ErrNotRecording
	}
	defer close(r.finalized)

	r.capture.ClearCallback()
	r.capture.Stop()
	r.capture.Close()
	r.capture = nil
	r.active = false

	r.bufMu.Lock()
	samples := r.samples
	r.samples = nil
	r.bufMu.Unlock()

	if len(samples) == 0 {
		return nil, mferrors.New(mferrors.KindInvalidFile, "Recording is empty. Please try again.")
	}

	data, err := EncodePCM(samples)
	if err != nil {
		return nil, fmt.Errorf("encoding recording: %w", err)
	}

	name := fmt.Sprintf("recording-%d.flac", r.now().UnixMilli())
	r.logger.Debug("Recording finalized",
		logging.F("name", name),
		logging.F("samples", len(samples)),
		logging.F("bytes", len(data)),
	)
	return &Payload{kind: KindAudio, name: name, mime: "audio/flac", data: data}, nil
}

// Active reports whether a recording is running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Elapsed returns how long the current recording has been running.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return 0
	}
	return r.now().Sub(r.startedAt)
}

// Finalized returns a channel closed when the current (or next) recording
// has been stopped and its buffer encoded.
func (r *Recorder) Finalized() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}
