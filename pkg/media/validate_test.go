package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		mime    string
		size    int64
		kind    Kind
		wantErr string
	}{
		{name: "mp3 by extension", file: "standup.mp3", size: 1024, kind: KindAudio},
		{name: "upper-case extension", file: "STANDUP.WAV", size: 1024, kind: KindAudio},
		{name: "audio mime without extension", file: "blob", mime: "audio/webm", size: 10, kind: KindAudio},
		{name: "mime with parameters", file: "blob", mime: "audio/ogg; codecs=opus", size: 10, kind: KindAudio},
		{name: "video by extension", file: "allhands.mkv", size: 10, kind: KindVideo},
		{name: "exactly 50MB", file: "big.mp4", size: MaxFileSize, kind: KindVideo},
		{name: "over 50MB", file: "big.mp4", size: MaxFileSize + 1, kind: KindVideo, wantErr: "Please select a file smaller than 50MB."},
		{name: "audio file as video", file: "standup.mp3", size: 10, kind: KindVideo, wantErr: "Please select a valid video file."},
		{name: "document", file: "notes.pdf", mime: "application/pdf", size: 10, kind: KindAudio, wantErr: "Please select a valid audio file."},
		{name: "extension without dot", file: "mp3", size: 10, kind: KindAudio, wantErr: "Please select a valid audio file."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFile(tt.file, tt.mime, tt.size, tt.kind)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, mferrors.IsInvalidFile(err))
			assert.Equal(t, tt.wantErr, mferrors.Message(err))
			if tt.size > MaxFileSize {
				assert.True(t, errors.Is(err, ErrFileTooLarge))
			} else {
				assert.True(t, errors.Is(err, ErrUnsupportedType))
			}
		})
	}
}

func TestValidateFile_UnknownKind(t *testing.T) {
	err := ValidateFile("a.mp3", "", 1, Kind("image"))
	assert.True(t, mferrors.IsInvalidFile(err))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Video ")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, k)

	_, err = ParseKind("image")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "standup.wav")
		require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVE"), 0644))

		p, err := LoadFile(path, KindAudio)
		require.NoError(t, err)
		assert.Equal(t, "standup.wav", p.Name())
		assert.Equal(t, KindAudio, p.Kind())
		assert.Equal(t, int64(12), p.Size())
		assert.NotEmpty(t, p.MIME())
	})

	t.Run("wrong type", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

		_, err := LoadFile(path, KindAudio)
		assert.True(t, mferrors.IsInvalidFile(err))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.mp3"), KindAudio)
		assert.True(t, mferrors.IsInvalidFile(err))
	})

	t.Run("directory", func(t *testing.T) {
		sub := filepath.Join(dir, "folder.mp3")
		require.NoError(t, os.Mkdir(sub, 0755))
		_, err := LoadFile(sub, KindAudio)
		assert.True(t, mferrors.IsInvalidFile(err))
	})
}

func TestPayload_Immutable(t *testing.T) {
	src := []byte("abc")
	p := NewPayload(KindAudio, "a.mp3", "audio/mpeg", src)
	src[0] = 'z'

	assert.Equal(t, []byte("abc"), p.Bytes())

	b := p.Bytes()
	b[1] = 'z'
	assert.Equal(t, []byte("abc"), p.Bytes())
}
