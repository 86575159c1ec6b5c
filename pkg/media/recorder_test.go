package media

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

func pcmTone(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16((i%200)-100)*50))
	}
	return buf
}

func fixedClock() time.Time {
	return time.UnixMilli(1700000000123)
}

func TestRecorder_StartStop(t *testing.T) {
	actx := NewFakeAudioContext(pcmTone(SampleRate))
	r := NewRecorder(actx, WithClock(fixedClock))

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Active())

	finalized := r.Finalized()
	select {
	case <-finalized:
		t.Fatal("finalized closed before Stop")
	default:
	}

	p, err := r.Stop()
	require.NoError(t, err)

	select {
	case <-finalized:
	default:
		t.Fatal("finalized not closed when Stop returned")
	}

	assert.False(t, r.Active())
	assert.Equal(t, "recording-1700000000123.flac", p.Name())
	assert.Equal(t, KindAudio, p.Kind())
	assert.Equal(t, "audio/flac", p.MIME())
	assert.Equal(t, "fLaC", string(p.Bytes()[:4]))

	captures := actx.Captures()
	require.Len(t, captures, 1)
	assert.True(t, captures[0].Released())
}

func TestRecorder_ChunksAfterStopAreDropped(t *testing.T) {
	actx := NewFakeAudioContext(pcmTone(100))
	r := NewRecorder(actx)

	require.NoError(t, r.Start(context.Background()))
	capture := actx.Captures()[0]
	capture.Feed(pcmTone(100))

	_, err := r.Stop()
	require.NoError(t, err)

	capture.Feed(pcmTone(100))
	r.bufMu.Lock()
	assert.Empty(t, r.samples)
	r.bufMu.Unlock()
}

func TestRecorder_StartWhileActive(t *testing.T) {
	r := NewRecorder(NewFakeAudioContext(pcmTone(10)))
	require.NoError(t, r.Start(context.Background()))

	assert.ErrorIs(t, r.Start(context.Background()), ErrRecordingActive)
}

func TestRecorder_StopWithoutStart(t *testing.T) {
	r := NewRecorder(NewFakeAudioContext(nil))
	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestRecorder_PermissionDenied(t *testing.T) {
	t.Run("open fails", func(t *testing.T) {
		actx := NewFakeAudioContext(nil)
		actx.FailOpen = true
		err := NewRecorder(actx).Start(context.Background())
		assert.True(t, mferrors.IsPermissionDenied(err))
		assert.Equal(t, "Could not access microphone. Please check permissions.", mferrors.Message(err))
	})

	t.Run("start fails", func(t *testing.T) {
		actx := NewFakeAudioContext(nil)
		actx.FailStart = true
		r := NewRecorder(actx)
		err := r.Start(context.Background())
		assert.True(t, mferrors.IsPermissionDenied(err))
		assert.False(t, r.Active())
	})
}

func TestRecorder_EmptyRecording(t *testing.T) {
	r := NewRecorder(NewFakeAudioContext(nil))
	require.NoError(t, r.Start(context.Background()))
	finalized := r.Finalized()

	_, err := r.Stop()
	assert.True(t, mferrors.IsInvalidFile(err))

	select {
	case <-finalized:
	default:
		t.Fatal("finalized not closed on empty recording")
	}
}

func TestRecorder_Restart(t *testing.T) {
	r := NewRecorder(NewFakeAudioContext(pcmTone(50)))

	require.NoError(t, r.Start(context.Background()))
	first := r.Finalized()
	_, err := r.Stop()
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	second := r.Finalized()
	assert.NotEqual(t, first, second)

	select {
	case <-second:
		t.Fatal("new recording already finalized")
	default:
	}
	_, err = r.Stop()
	require.NoError(t, err)
}

func TestRecorder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRecorder(NewFakeAudioContext(nil)).Start(ctx)
	assert.True(t, mferrors.IsCanceled(err))
}

func TestFindDevice(t *testing.T) {
	actx := NewFakeAudioContext(nil)
	actx.DeviceSet = []DeviceInfo{
		{ID: "1", Name: "Built-in Microphone"},
		{ID: "2", Name: "USB Audio"},
	}

	d, err := FindDevice(actx, "")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = FindDevice(actx, "usb")
	require.NoError(t, err)
	assert.Equal(t, "2", d.ID)

	_, err = FindDevice(actx, "headset")
	assert.Error(t, err)
}

func TestEncodePCM(t *testing.T) {
	samples := make([]int16, BlockSize*2+BlockSize/4)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	data, err := EncodePCM(samples)
	require.NoError(t, err)
	assert.Equal(t, "fLaC", string(data[:4]))
}
