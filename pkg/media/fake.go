package media

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// ErrFakeDevice is returned by a FakeAudioContext configured to fail.
var ErrFakeDevice = errors.New("fake device unavailable")

// FakeAudioContext is an AudioContext that replays fixed PCM. It is used by
// tests and by `record --fake`.
type FakeAudioContext struct {
	PCM       []byte
	DeviceSet []DeviceInfo
	FailOpen  bool
	FailStart bool

	mu       sync.Mutex
	captures []*FakeCapture
}

// NewFakeAudioContext returns a fake context that feeds pcm once per Start.
func NewFakeAudioContext(pcm []byte) *FakeAudioContext {
	return &FakeAudioContext{
		PCM:       pcm,
		DeviceSet: []DeviceInfo{{ID: "fake-0", Name: "Fake Microphone"}},
	}
}

func (f *FakeAudioContext) Devices() ([]DeviceInfo, error) { return f.DeviceSet, nil }
func (f *FakeAudioContext) Close()                         {}

func (f *FakeAudioContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.FailOpen {
		return nil, ErrFakeDevice
	}
	c := &FakeCapture{pcm: f.PCM, failStart: f.FailStart}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Captures returns every device opened through the context.
func (f *FakeAudioContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeCapture, len(f.captures))
	copy(out, f.captures)
	return out
}

// FakeCapture feeds its PCM to the callback in 1024-frame chunks on Start.
type FakeCapture struct {
	pcm       []byte
	failStart bool

	mu      sync.Mutex
	cb      DataCallback
	started bool
	stopped bool
	closed  bool
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

// Feed delivers extra PCM to the current callback, as if the device produced it.
func (f *FakeCapture) Feed(pcm []byte) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return
	}
	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	for pos := 0; pos < len(pcm); {
		end := min(pos+chunkBytes, len(pcm))
		chunk := make([]byte, end-pos)
		copy(chunk, pcm[pos:end])
		cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
		pos = end
	}
}

func (f *FakeCapture) Start() error {
	if f.failStart {
		return ErrFakeDevice
	}
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	f.Feed(f.pcm)
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Released reports whether the device was stopped and closed.
func (f *FakeCapture) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped && f.closed
}

// FakeTone returns d of a quiet 440 Hz tone as PCM for a FakeAudioContext.
func FakeTone(d time.Duration) []byte {
	n := int(d.Seconds() * SampleRate)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(3000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}
