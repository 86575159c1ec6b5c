package notice

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotice_String(t *testing.T) {
	assert.Equal(t, "Authentication Required: Please log in to continue",
		Notice{Title: "Authentication Required", Message: "Please log in to continue"}.String())
	assert.Equal(t, "Export Complete!", Notice{Title: "Export Complete!"}.String())
	assert.Equal(t, "just text", Notice{Message: "just text"}.String())
}

func TestWriterNotifier_Plain(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier(&buf, false)
	n.Notify(Notice{Level: LevelSuccess, Title: "Recording Started", Message: "Your meeting is being recorded..."})
	n.Notify(Notice{Level: LevelError, Title: "Upload Failed"})

	assert.Equal(t, "Recording Started: Your meeting is being recorded...\nUpload Failed\n", buf.String())
}

func TestWriterNotifier_Styled(t *testing.T) {
	var buf bytes.Buffer
	NewWriterNotifier(&buf, true).Notify(Notice{Level: LevelWarning, Title: "Heads up", Message: "details"})
	assert.Contains(t, buf.String(), "Heads up")
	assert.Contains(t, buf.String(), "details")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)

	r.Notify(Notice{Title: "a"})
	r.Notify(Notice{Title: "b"})
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, "b", last.Title)
	assert.Len(t, r.Notices(), 2)
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "error", LevelError.String())
}
