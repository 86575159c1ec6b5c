package presenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atotto/clipboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
)

func sampleResult() *client.AnalysisResult {
	return &client.AnalysisResult{
		Summary:     "The team agreed to ship the release on Friday.",
		ActionItems: []string{"Alice to tag v1.2", "Bob to update the changelog"},
		Decisions:   []string{"Ship on Friday"},
		NextSteps:   []string{},
	}
}

func TestSections_OrderAndOmission(t *testing.T) {
	sections := Sections(sampleResult())
	require.Len(t, sections, 3)
	assert.Equal(t, TitleSummary, sections[0].Title)
	assert.Equal(t, TitleActionItems, sections[1].Title)
	assert.Equal(t, TitleDecisions, sections[2].Title)

	all := Sections(&client.AnalysisResult{
		Summary:     "s",
		ActionItems: []string{"a"},
		Decisions:   []string{"d"},
		NextSteps:   []string{"n"},
	})
	require.Len(t, all, 4)
	assert.Equal(t, TitleNextSteps, all[3].Title)

	assert.Len(t, Sections(&client.AnalysisResult{}), 1)
	assert.Nil(t, Sections(nil))
}

func TestRender_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult(), RenderOptions{}))

	want := strings.Join([]string{
		"Meeting Summary",
		"  The team agreed to ship the release on Friday.",
		"",
		"Action Items (2)",
		"  1. Alice to tag v1.2",
		"  2. Bob to update the changelog",
		"",
		"Key Decisions (1)",
		"  1. Ship on Friday",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
	assert.NotContains(t, buf.String(), "Next Steps")
}

func TestRender_Wrap(t *testing.T) {
	out := RenderString(&client.AnalysisResult{
		Summary:     "one two three four five six",
		ActionItems: []string{"alpha beta gamma delta epsilon"},
	}, RenderOptions{Width: 16})

	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), 16, "line %q", line)
	}
	assert.Contains(t, out, "  1. alpha beta")
	assert.Contains(t, out, "     gamma delta")
}

func TestRender_Nil(t *testing.T) {
	assert.Equal(t, "No analysis available.", RenderString(nil, RenderOptions{}))
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 23, 30, 0, 123000000, time.UTC)

	path, err := Export(sampleResult(), "Alice: hi\nBob: hello", dir, "", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "meeting-analysis-2024-03-15.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"timestamp\": \"2024-03-15T23:30:00.123Z\",\n"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "The team agreed to ship the release on Friday.", rec["summary"])
	assert.Equal(t, "Alice: hi\nBob: hello", rec["originalTranscript"])
	assert.Len(t, rec["actionItems"], 2)
	assert.Equal(t, []any{}, rec["nextSteps"])
	for _, key := range []string{"timestamp", "summary", "actionItems", "decisions", "nextSteps", "originalTranscript"} {
		assert.Contains(t, rec, key)
	}
}

func TestExport_FilenameUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	now := time.Date(2024, 3, 16, 5, 0, 0, 0, loc)
	assert.Equal(t, "meeting-analysis-2024-03-15.json", ExportFilename(now, "", ".json"))
}

func TestExport_TaggedFilesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	first, err := Export(sampleResult(), "first", dir, ExportTag("/rec/a.mp3"), now)
	require.NoError(t, err)
	second, err := Export(sampleResult(), "second", dir, ExportTag("/rec/b.mp3"), now)
	require.NoError(t, err)

	assert.Equal(t, "meeting-analysis-2024-03-15-a-mp3.json", filepath.Base(first))
	assert.Equal(t, "meeting-analysis-2024-03-15-b-mp3.json", filepath.Base(second))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExportTag(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{source: "standup.mp3", want: "standup-mp3"},
		{source: "/home/alice/Recordings/Team Sync.m4a", want: "Team-Sync-m4a"},
		{source: "weekly_review-2.wav", want: "weekly_review-2-wav"},
		{source: ".hidden.ogg", want: "hidden-ogg"},
		{source: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, ExportTag(tt.source))
		})
	}
}

func TestExport_NoResult(t *testing.T) {
	_, err := Export(nil, "", t.TempDir(), "", time.Now())
	assert.Error(t, err)
}

func TestExportDocx(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	path, err := ExportDocx(sampleResult(), "Alice: hi", dir, "", now)
	require.NoError(t, err)
	assert.Equal(t, "meeting-analysis-2024-03-15.docx", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]), "docx is a zip archive")
}

func TestCopyToClipboard(t *testing.T) {
	var copied string
	origWrite, origUnsupported := clipboardWrite, clipboard.Unsupported
	t.Cleanup(func() { clipboardWrite, clipboard.Unsupported = origWrite, origUnsupported })
	clipboard.Unsupported = false
	clipboardWrite = func(s string) error {
		copied = s
		return nil
	}

	require.NoError(t, CopyToClipboard(sampleResult()))
	assert.True(t, strings.HasPrefix(copied, "Meeting Summary\n"))
	assert.Contains(t, copied, "Ship on Friday")

	clipboardWrite = func(string) error { return errors.New("no display") }
	assert.Error(t, CopyToClipboard(sampleResult()))
	assert.Error(t, CopyToClipboard(nil))
}

func TestUploadProgressModel(t *testing.T) {
	m := newUploadProgressModel("Uploading")

	next, _ := m.Update(progressMsg(45))
	m = next.(uploadProgressModel)
	assert.Equal(t, 45, m.percent)
	assert.Contains(t, m.View(), "45%")

	next, _ = m.Update(progressMsg(30))
	assert.Equal(t, 45, next.(uploadProgressModel).percent, "percent never goes back")

	next, cmd := m.Update(finishMsg{ok: true})
	m = next.(uploadProgressModel)
	assert.True(t, m.done)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "100%")

	next, _ = newUploadProgressModel("x").Update(finishMsg{ok: false})
	assert.Empty(t, next.(uploadProgressModel).View())
}

func TestProgressBar_FinishWithoutTerminal(t *testing.T) {
	var out bytes.Buffer
	bar := StartProgressBar(context.Background(), &out, "Uploading")
	bar.Update(10)
	bar.Update(90)
	bar.Finish(true)
	bar.Finish(true)
}

func TestLineProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"transcript":"t","analysis":{"summary":"s"}}`)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, nil)
	require.NoError(t, err)
	payload := media.NewPayload(media.KindAudio, "a.mp3", "audio/mpeg", bytes.Repeat([]byte("x"), 256*1024))

	var out bytes.Buffer
	lines := NewLineProgress(&out, "Uploading", 25)
	bundle, err := c.Upload(context.Background(), payload, lines.Update)
	require.NoError(t, err)
	lines.Finish(true)
	assert.Equal(t, "s", bundle.Analysis.Summary)
	assert.True(t, strings.HasSuffix(out.String(), "Uploading 100%\n"), out.String())
	assert.Equal(t, 1, strings.Count(out.String(), "100%"))
}
