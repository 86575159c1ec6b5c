package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/otherjamesbrown/minutes-cli/client"
	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/credentials"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

const okBundle = `{
	"status": "success",
	"transcript": "Alice: let's ship on Friday. Bob: agreed.",
	"analysis": {
		"summary": "Release planning",
		"action_items": ["Alice to tag the release"],
		"decisions": ["Ship on Friday"],
		"next_steps": ["Write release notes"]
	},
	"filename": "standup.mp3",
	"file_type": "audio"
}`

const longTranscript = "Alice opened the meeting and we reviewed the release checklist in detail."

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// fakeServer is the meeting assistant API.
type fakeServer struct {
	*httptest.Server

	requests     atomic.Int32
	unauthorized atomic.Bool

	// When uploadGate is set, uploads signal uploadStarted and then block
	// until the gate is closed.
	uploadGate    chan struct{}
	uploadStarted chan struct{}
	startOnce     sync.Once

	mu          sync.Mutex
	uploadNames []string
	transcripts []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.Close)
	return fs
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.requests.Add(1)
	if fs.unauthorized.Load() && r.URL.Path != client.EndpointLogin {
		writeBody(w, http.StatusUnauthorized, `{"detail":"Not authenticated"}`)
		return
	}

	switch r.URL.Path {
	case client.EndpointUpload:
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeBody(w, http.StatusBadRequest, `{"detail":"No file uploaded"}`)
			return
		}
		f.Close()
		fs.mu.Lock()
		fs.uploadNames = append(fs.uploadNames, hdr.Filename)
		fs.mu.Unlock()
		if fs.uploadGate != nil {
			fs.startOnce.Do(func() { close(fs.uploadStarted) })
			select {
			case <-fs.uploadGate:
			case <-r.Context().Done():
				return
			}
		}
		writeBody(w, http.StatusOK, okBundle)
	case client.EndpointAnalyze:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fs.mu.Lock()
		fs.transcripts = append(fs.transcripts, body["transcript"])
		fs.mu.Unlock()
		writeBody(w, http.StatusOK, `{"status":"success","analysis":{"summary":"Checklist review","action_items":["Update the checklist"],"decisions":[],"next_steps":[]}}`)
	case client.EndpointLogin:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter22" {
			writeBody(w, http.StatusUnauthorized, `{"detail":"Invalid username or password"}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: client.DefaultCookieName, Value: "sess-42", MaxAge: 86400, Path: "/"})
		writeBody(w, http.StatusOK, `{"status":"success","user":{"username":"alice","email":"alice@example.com"}}`)
	case client.EndpointMe:
		ck, err := r.Cookie(client.DefaultCookieName)
		if err != nil || ck.Value != "sess-42" {
			writeBody(w, http.StatusUnauthorized, `{"detail":"Not authenticated"}`)
			return
		}
		writeBody(w, http.StatusOK, `{"status":"success","user":{"username":"alice","email":"alice@example.com"}}`)
	case client.EndpointRegister:
		writeBody(w, http.StatusBadRequest, `{"detail":"Username already exists"}`)
	default:
		http.NotFound(w, r)
	}
}

func (fs *fakeServer) uploads() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.uploadNames...)
}

// testEnv is one isolated CLI invocation environment.
type testEnv struct {
	deps   *Deps
	out    *bytes.Buffer
	errOut *bytes.Buffer
	dir    string
}

func newTestEnv(t *testing.T, serverURL string, stdin string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MINUTES_CONFIG_DIR", dir)
	t.Setenv(credentials.EnvEncryptionKey, testEncryptionKey)
	t.Setenv(credentials.EnvSessionID, "")

	cfg := config.DefaultConfig()
	cfg.ServerURL = serverURL
	cfg.History.Dir = filepath.Join(dir, "history")
	cfg.ExportDir = filepath.Join(dir, "exports")

	env := &testEnv{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, dir: dir}
	env.deps = &Deps{
		Config:             cfg,
		Logger:             logging.NewNopLogger(),
		Metrics:            observability.NewClientMetricsWith(prometheus.NewRegistry()),
		Tracer:             observability.NewTracerWithProvider(noop.NewTracerProvider()),
		In:                 strings.NewReader(stdin),
		Out:                env.out,
		ErrOut:             env.errOut,
		NewCredentialStore: credentials.NewStore,
		Now:                func() time.Time { return fixedNow },
		ClientOptions: func() *client.ClientOptions {
			opts := client.DefaultOptions()
			opts.MaxRetries = 0
			return opts
		},
	}
	return env
}

func (e *testEnv) run(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	return e.runContext(context.Background(), cmd, args...)
}

func (e *testEnv) runContext(ctx context.Context, cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true
	return cmd.ExecuteContext(ctx)
}

func writeMedia(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x42}, 64*1024), 0o600))
	return path
}

func TestUpload_JSONWithExport(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")
	env.deps.Config.OutputFormat = config.OutputFormatJSON
	path := writeMedia(t, t.TempDir(), "standup.mp3")

	require.NoError(t, env.run(t, NewUploadCommand(env.deps), path, "--export"))

	var view resultView
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &view), env.out.String())
	assert.True(t, strings.HasPrefix(view.HistoryID, "mt-"), view.HistoryID)
	assert.Equal(t, "standup.mp3", view.Filename)
	assert.Equal(t, "Release planning", view.Analysis.Summary)
	assert.Equal(t, "Alice: let's ship on Friday. Bob: agreed.", view.Transcript)
	require.Len(t, view.Exports, 1)
	assert.Equal(t, filepath.Join(env.dir, "exports", "meeting-analysis-2026-03-14.json"), view.Exports[0])
	assert.FileExists(t, view.Exports[0])

	errOut := env.errOut.String()
	assert.Contains(t, errOut, "Uploading audio...: Processing standup.mp3")
	assert.Contains(t, errOut, "Uploading standup.mp3 100%")
	assert.Contains(t, errOut, "Analysis Complete!: Successfully processed standup.mp3")
	assert.Contains(t, errOut, "Export Complete!: Analysis results have been downloaded")
	assert.Equal(t, []string{"standup.mp3"}, srv.uploads())
}

func TestUpload_TextOutput(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")
	path := writeMedia(t, t.TempDir(), "standup.mp3")

	require.NoError(t, env.run(t, NewUploadCommand(env.deps), path, "--no-history"))

	out := env.out.String()
	assert.Contains(t, out, "Analysis of standup.mp3")
	assert.Contains(t, out, "Release planning")
	assert.Contains(t, out, "Ship on Friday")
	assert.NotContains(t, out, "Saved to history")
	assert.NotContains(t, out, "let's ship on Friday", "text output omits the transcript")
}

func TestUpload_Unauthorized(t *testing.T) {
	srv := newFakeServer(t)
	srv.unauthorized.Store(true)
	env := newTestEnv(t, srv.URL, "")
	path := writeMedia(t, t.TempDir(), "standup.mp3")

	err := env.run(t, NewUploadCommand(env.deps), path)
	require.Error(t, err)
	assert.True(t, AlreadyReported(err))

	errOut := env.errOut.String()
	assert.Contains(t, errOut, "Authentication Required: Please log in to continue")
	assert.Contains(t, errOut, "Run 'minutes auth login' to sign in, then try again.")
	assert.NotContains(t, errOut, "Upload Failed")
	assert.Less(t, strings.Index(errOut, "Authentication Required"), strings.Index(errOut, "Run 'minutes auth login'"))
	assert.Empty(t, env.out.String())
}

func TestUpload_InvalidFileNeverReachesServer(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")
	path := writeMedia(t, t.TempDir(), "slides.pdf")

	err := env.run(t, NewUploadCommand(env.deps), path)
	require.Error(t, err)
	assert.True(t, AlreadyReported(err))
	assert.Contains(t, env.errOut.String(), "Invalid File Type")
	assert.NotContains(t, env.errOut.String(), "%", "no progress is drawn for rejected files")
	assert.Equal(t, int32(0), srv.requests.Load())
}

func TestUpload_Stdin(t *testing.T) {
	srv := newFakeServer(t)

	env := newTestEnv(t, srv.URL, "RIFF....WAVE")
	err := env.run(t, NewUploadCommand(env.deps), "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name")

	env = newTestEnv(t, srv.URL, "RIFF....WAVE")
	require.NoError(t, env.run(t, NewUploadCommand(env.deps), "-", "--name", "call.wav"))
	assert.Equal(t, []string{"call.wav"}, srv.uploads())
}

func TestUpload_HelpListsAllowedExtensions(t *testing.T) {
	long := NewUploadCommand(&Deps{}).Long
	for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
		line := "Video uploads accept "
		if kind == media.KindAudio {
			line = "Audio uploads accept "
		}
		want := line + strings.Join(media.AllowedExtensions(kind), ", ") + "."
		assert.Contains(t, long, want)
	}
	assert.NotContains(t, long, "webm, ogg, mov")
}

func TestUpload_BadKind(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	err := env.run(t, NewUploadCommand(env.deps), "x.mp3", "--kind", "image")
	assert.Error(t, err)
}

func TestAnalyze_CharsetFile(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")

	latin1 := []byte("Caf\xe9 meeting: " + longTranscript)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, latin1, 0o600))

	require.NoError(t, env.run(t, NewAnalyzeCommand(env.deps), "--file", path, "--charset", "iso-8859-1"))

	srv.mu.Lock()
	got := srv.transcripts
	srv.mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "Café meeting: "+longTranscript, got[0])
	assert.Contains(t, env.out.String(), "Checklist review")
	assert.Contains(t, env.errOut.String(), "Analysis Complete!: Successfully analyzed your transcript")
}

func TestAnalyze_Stdin(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "  "+longTranscript+"\n")

	require.NoError(t, env.run(t, NewAnalyzeCommand(env.deps)))
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{longTranscript}, srv.transcripts)
}

func TestAnalyze_RejectedLocally(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		title string
	}{
		{name: "too short", args: []string{"short transcript"}, title: "Transcript Too Short"},
		{name: "blank", args: []string{"   "}, title: "No Transcript"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t)
			env := newTestEnv(t, srv.URL, "")

			err := env.run(t, NewAnalyzeCommand(env.deps), tt.args...)
			require.Error(t, err)
			assert.True(t, AlreadyReported(err))
			assert.Contains(t, env.errOut.String(), tt.title)
			assert.Equal(t, int32(0), srv.requests.Load())
		})
	}
}

func TestAnalyze_ArgumentAndFileConflict(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	err := env.run(t, NewAnalyzeCommand(env.deps), longTranscript, "--file", "x.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not both")
}

func TestHistory_ListShowExportClear(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")
	path := writeMedia(t, t.TempDir(), "standup.mp3")
	require.NoError(t, env.run(t, NewUploadCommand(env.deps), path))

	env.out.Reset()
	env.deps.Config.OutputFormat = config.OutputFormatJSON
	require.NoError(t, env.run(t, NewHistoryCommand(env.deps), "list"))
	var rows []historyRow
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &rows), env.out.String())
	require.Len(t, rows, 1)
	assert.Equal(t, "upload", rows[0].Source)
	assert.Equal(t, "standup.mp3", rows[0].Filename)
	assert.Equal(t, 1, rows[0].ActionItems)
	id := rows[0].ID

	env.out.Reset()
	env.deps.Config.OutputFormat = config.OutputFormatText
	require.NoError(t, env.run(t, NewHistoryCommand(env.deps), "show", id, "--transcript"))
	assert.Contains(t, env.out.String(), id)
	assert.Contains(t, env.out.String(), "Release planning")
	assert.Contains(t, env.out.String(), "Bob: agreed.")

	env.out.Reset()
	exportDir := t.TempDir()
	require.NoError(t, env.run(t, NewHistoryCommand(env.deps), "export", id, "--export-dir", exportDir))
	assert.FileExists(t, filepath.Join(exportDir, "meeting-analysis-2026-03-14.json"))

	err := env.run(t, NewHistoryCommand(env.deps), "show", "mt-00000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no analysis with id")

	err = env.run(t, NewHistoryCommand(env.deps), "clear")
	require.Error(t, err, "clearing without a terminal needs --confirm")

	env.out.Reset()
	require.NoError(t, env.run(t, NewHistoryCommand(env.deps), "clear", "--confirm"))
	assert.Contains(t, env.out.String(), "History cleared.")

	env.out.Reset()
	require.NoError(t, env.run(t, NewHistoryCommand(env.deps), "list"))
	assert.Contains(t, env.out.String(), "No analyses in history.")
}

func TestHistory_Disabled(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	env.deps.Config.History.Backend = config.HistoryBackendNone

	err := env.run(t, NewHistoryCommand(env.deps), "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestAuth_LoginThenStatus(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "hunter22\n")

	require.NoError(t, env.run(t, NewAuthCommand(env.deps), "login", "--username", "alice", "--password-stdin"))
	assert.Contains(t, env.errOut.String(), "Welcome back!: Successfully logged in as alice")

	// A new invocation restores the stored session.
	next := newTestEnv(t, srv.URL, "")
	t.Setenv("MINUTES_CONFIG_DIR", env.dir)
	next.deps.Config.OutputFormat = config.OutputFormatJSON
	require.NoError(t, next.run(t, NewAuthCommand(next.deps), "status"))

	var status authStatus
	require.NoError(t, json.Unmarshal(next.out.Bytes(), &status), next.out.String())
	assert.True(t, status.IsAuthenticated)
	assert.Equal(t, "alice", status.Username)
	assert.Equal(t, "stored", status.Source)
	assert.NotEmpty(t, status.KeyProvider)

	next.out.Reset()
	require.NoError(t, next.run(t, NewAuthCommand(next.deps), "whoami"))
	assert.Equal(t, "alice\n", next.out.String())
}

func TestAuth_LoginFailed(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "wrong\n")

	err := env.run(t, NewAuthCommand(env.deps), "login", "-u", "alice", "--password-stdin")
	require.Error(t, err)
	assert.True(t, AlreadyReported(err))
	assert.Contains(t, env.errOut.String(), "Login Failed: Invalid username or password")
}

func TestAuth_WhoamiWithoutSession(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")

	err := env.run(t, NewAuthCommand(env.deps), "whoami")
	require.Error(t, err)
	assert.True(t, AlreadyReported(err))
	assert.Contains(t, env.errOut.String(), "Authentication Required: Please log in to continue")
}

func TestAuth_Register(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		title    string
		requests int32
	}{
		{name: "mismatch", stdin: "alice\nalice@example.com\nhunter22\nhunter23\n", title: "Password Mismatch"},
		{name: "weak", stdin: "alice\nalice@example.com\nabc\nabc\n", title: "Weak Password"},
		{name: "server rejects", stdin: "alice\nalice@example.com\nhunter22\nhunter22\n", title: "Registration Failed: Username already exists", requests: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t)
			env := newTestEnv(t, srv.URL, tt.stdin)

			err := env.run(t, NewAuthCommand(env.deps), "register")
			require.Error(t, err)
			assert.True(t, AlreadyReported(err))
			assert.Contains(t, env.errOut.String(), tt.title)
			assert.Equal(t, tt.requests, srv.requests.Load())
		})
	}
}

func TestRecord_Fake(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "\n")

	require.NoError(t, env.run(t, NewRecordCommand(env.deps), "--fake", "--no-history"))

	uploads := srv.uploads()
	require.Len(t, uploads, 1)
	assert.Regexp(t, `^recording-\d+\.flac$`, uploads[0])

	errOut := env.errOut.String()
	started := strings.Index(errOut, "Recording Started")
	stopped := strings.Index(errOut, "Recording Stopped: Processing your recording...")
	done := strings.Index(errOut, "Analysis Complete!")
	require.True(t, started >= 0 && stopped > started && done > stopped, errOut)
	assert.Contains(t, env.out.String(), "Release planning")
}

func TestRecord_MaxDuration(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")

	start := time.Now()
	require.NoError(t, env.run(t, NewRecordCommand(env.deps), "--fake", "--max-duration", "50ms", "--no-history"))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, srv.uploads(), 1)
}

// lockedBuffer is a bytes.Buffer that can be read while a command writes it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRecord_LoginPromptAfterTimeLimit(t *testing.T) {
	srv := newFakeServer(t)
	srv.unauthorized.Store(true)
	env := newTestEnv(t, srv.URL, "")

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	errOut := &lockedBuffer{}
	env.deps.In = pr
	env.deps.ErrOut = errOut
	env.deps.Interactive = true

	done := make(chan error, 1)
	go func() {
		done <- env.runContext(context.Background(), NewRecordCommand(env.deps), "--fake", "--max-duration", "50ms", "--no-history")
	}()

	require.Eventually(t, func() bool { return strings.Contains(errOut.String(), "Username: ") }, 5*time.Second, 10*time.Millisecond)
	go func() { _, _ = io.WriteString(pw, "alice\nhunter22\n") }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, AlreadyReported(err))
	case <-time.After(5 * time.Second):
		t.Fatalf("login prompt never received the username; stderr:\n%s", errOut.String())
	}

	out := errOut.String()
	assert.Contains(t, out, "Reached the 50ms limit.")
	assert.Contains(t, out, "Authentication Required: Please log in to continue")
	assert.Contains(t, out, "Welcome back!: Successfully logged in as alice")
}

func TestLineReader_UnreadLineGoesToNextConsumer(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	deps := &Deps{In: pr, ErrOut: io.Discard}

	// A waiter starts a read and gives up before the line arrives.
	abandoned := deps.lines().next()
	go func() { _, _ = io.WriteString(pw, "first\nsecond\n") }()

	first, err := deps.readLine("")
	require.NoError(t, err)
	assert.Equal(t, "first", first)
	second, err := deps.readLine("")
	require.NoError(t, err)
	assert.Equal(t, "second", second)

	select {
	case <-abandoned:
		t.Fatal("abandoned channel delivered a second value")
	default:
	}
}

func TestRecordDevices(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	require.NoError(t, env.run(t, NewRecordCommand(env.deps), "devices", "--fake"))
	assert.Contains(t, env.out.String(), "Fake Microphone")
}

func TestRecord_DeviceNotFound(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	env.deps.NewAudioContext = func() (media.AudioContext, error) {
		return media.NewFakeAudioContext(nil), nil
	}
	err := env.run(t, NewRecordCommand(env.deps), "--device", "Studio Mic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no capture device")
}

func TestWatch_ExistingFiles(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")
	env.deps.Config.OutputFormat = config.OutputFormatJSON
	dir := t.TempDir()
	writeMedia(t, dir, "standup.mp3")
	writeMedia(t, dir, "notes.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.runContext(ctx, NewWatchCommand(env.deps), dir, "--existing") }()

	require.Eventually(t, func() bool { return len(srv.uploads()) == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"standup.mp3"}, srv.uploads())
	var view resultView
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &view), env.out.String())
	assert.Equal(t, "Release planning", view.Analysis.Summary)
}

func TestWatch_ExportsEveryFile(t *testing.T) {
	srv := newFakeServer(t)
	env := newTestEnv(t, srv.URL, "")
	dir := t.TempDir()
	exportDir := t.TempDir()
	writeMedia(t, dir, "a.mp3")
	writeMedia(t, dir, "b.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- env.runContext(ctx, NewWatchCommand(env.deps), dir, "--existing", "--export", "--export-dir", exportDir)
	}()

	require.Eventually(t, func() bool { return len(srv.uploads()) == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"meeting-analysis-2026-03-14-a-mp3.json",
		"meeting-analysis-2026-03-14-b-mp3.json",
	}, names)
}

func TestWatch_CancelFinishesRunningUpload(t *testing.T) {
	srv := newFakeServer(t)
	srv.uploadGate = make(chan struct{})
	srv.uploadStarted = make(chan struct{})
	release := sync.OnceFunc(func() { close(srv.uploadGate) })
	t.Cleanup(release)

	env := newTestEnv(t, srv.URL, "")
	env.deps.Config.OutputFormat = config.OutputFormatJSON
	dir := t.TempDir()
	writeMedia(t, dir, "standup.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.runContext(ctx, NewWatchCommand(env.deps), dir, "--existing") }()

	select {
	case <-srv.uploadStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never reached the server")
	}
	cancel()
	select {
	case err := <-done:
		t.Fatalf("watch returned before the running upload finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	release()
	require.NoError(t, <-done)

	var view resultView
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &view), env.out.String())
	assert.Equal(t, "Release planning", view.Analysis.Summary)
	assert.NotContains(t, env.errOut.String(), "Canceled")
}

func TestWatch_StopsOnUnauthorized(t *testing.T) {
	srv := newFakeServer(t)
	srv.unauthorized.Store(true)
	env := newTestEnv(t, srv.URL, "")
	dir := t.TempDir()
	writeMedia(t, dir, "standup.mp3")

	err := env.run(t, NewWatchCommand(env.deps), dir, "--existing")
	require.Error(t, err)
	assert.True(t, AlreadyReported(err))
	assert.Contains(t, env.errOut.String(), "Authentication Required")
}

func TestWatch_NoFolder(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	err := env.run(t, NewWatchCommand(env.deps))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no folder to watch")
}
