// Package watch uploads media files as they appear in a folder.
//
// Files are picked up from create and write events once they have been quiet
// for the settle delay, so a file still being copied in is not uploaded
// half-written. At most Concurrency files are handled at once.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/semaphore"

	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/media"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
)

const (
	DefaultConcurrency = 2
	DefaultSettle      = 500 * time.Millisecond
)

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Watcher monitors a single directory.
type Watcher struct {
	dir         string
	kind        media.Kind
	handler     Handler
	concurrency int
	settle      time.Duration
	existing    bool
	logger      logging.Logger
	metrics     *observability.ClientMetrics
	tracer      *observability.Tracer

	fsw *fsnotify.Watcher
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.Mutex
	pending  map[string]*time.Timer
	inFlight map[string]bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithConcurrency bounds the number of files handled at once.
func WithConcurrency(n int) Option {
	return func(w *Watcher) { w.concurrency = n }
}

// WithSettle sets how long a file must go without events before it is handled.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithExisting also handles matching files already in the folder when Run starts.
func WithExisting(enabled bool) Option {
	return func(w *Watcher) { w.existing = enabled }
}

func WithLogger(l logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

func WithMetrics(m *observability.ClientMetrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

func WithTracer(t *observability.Tracer) Option {
	return func(w *Watcher) { w.tracer = t }
}

// New starts watching dir for files of the given kind.
func New(dir string, kind media.Kind, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch folder: %s is not a directory", dir)
	}
	if len(media.AllowedExtensions(kind)) == 0 {
		return nil, fmt.Errorf("watch: invalid media kind %q", kind)
	}

	w := &Watcher{
		dir:         dir,
		kind:        kind,
		handler:     handler,
		concurrency: DefaultConcurrency,
		settle:      DefaultSettle,
		logger:      logging.NewNopLogger(),
		tracer:      observability.NewTracer(),
		pending:     make(map[string]*time.Timer),
		inFlight:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.concurrency <= 0 {
		w.concurrency = DefaultConcurrency
	}
	if w.tracer == nil {
		w.tracer = observability.NewTracer()
	}
	if w.logger == nil {
		w.logger = logging.NewNopLogger()
	}
	w.sem = semaphore.NewWeighted(int64(w.concurrency))

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	w.fsw = fsw
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Matches reports whether path has an extension accepted for the watcher's kind.
// Hidden files are ignored.
func (w *Watcher) Matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")
	return ext != "" && slices.Contains(media.AllowedExtensions(w.kind), ext)
}

// Run handles files until ctx is canceled, then waits for the files in
// progress and returns ctx.Err(). Handlers get a context that is not
// canceled with ctx, so a file already being handled is finished; files
// still settling or waiting for a slot are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	log := w.logger.WithContext(ctx).With(logging.F("dir", w.dir))
	log.Info("Watching folder",
		logging.F("kind", string(w.kind)),
		logging.F("concurrency", w.concurrency),
	)

	if w.existing {
		if err := w.scan(ctx); err != nil {
			log.Warn("Scanning existing files failed", logging.Err(err))
		}
	}

	defer w.shutdown(log)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				log.Debug("Ignoring file", logging.F("path", event.Name))
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			log.Error("Watcher error", logging.Err(err))
		}
	}
}

// Close stops watching. Run must not be called after Close.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Type().IsRegular() && w.Matches(e.Name()) {
			w.schedule(ctx, filepath.Join(w.dir, e.Name()))
		}
	}
	return nil
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[path] {
		return
	}
	if t, ok := w.pending[path]; ok {
		// A timer that already fired is about to dispatch the file.
		if t.Stop() {
			t.Reset(w.settle)
		}
		return
	}
	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.dispatch(ctx, path)
	})
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.inFlight[path] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, path)
		w.mu.Unlock()
	}()

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer w.sem.Release(1)
	// Acquire can succeed after cancellation; queued files are not started.
	if ctx.Err() != nil {
		return
	}
	// A started file runs to completion even if Run is canceled.
	w.process(context.WithoutCancel(ctx), path)
}

func (w *Watcher) process(ctx context.Context, path string) {
	ctx, span := w.tracer.StartWatchFileSpan(ctx, filepath.Base(path))
	defer span.End()
	helper := observability.NewSpanHelper(span)
	log := w.logger.WithContext(ctx).With(logging.F("path", path))

	if _, err := os.Stat(path); err != nil {
		// Removed or renamed before it settled.
		log.Debug("File vanished before upload", logging.Err(err))
		return
	}

	log.Info("New file detected")
	start := time.Now()
	err := w.handler(ctx, path)
	switch {
	case err == nil:
		helper.SetSuccess()
		w.metrics.RecordWatchFile(observability.OutcomeSuccess)
		log.Info("File processed", logging.F("duration_ms", time.Since(start).Milliseconds()))
	case errors.Is(err, context.Canceled):
		helper.SetError(err, "canceled", false)
		w.metrics.RecordWatchFile(observability.OutcomeCanceled)
	default:
		helper.SetError(err, "watch_failed", false)
		w.metrics.RecordWatchFile(observability.OutcomeFailure)
		log.Error("Failed to process file", logging.Err(err))
	}
}

// shutdown stops the settle timers that have not fired and waits for the
// files already being handled.
func (w *Watcher) shutdown(log logging.Logger) {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			delete(w.pending, path)
			w.wg.Done()
		}
	}
	w.mu.Unlock()

	log.Info("Waiting for ongoing uploads to complete...")
	w.wg.Wait()
	log.Info("Folder watch stopped")
}
