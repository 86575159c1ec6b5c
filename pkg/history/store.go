package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/contentid"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("history entry not found")

	// ErrDisabled is returned by Open when the configured backend is "none".
	ErrDisabled = errors.New("history is disabled")
)

// Store persists history entries.
type Store interface {
	// Append stores e. Appending an id that already exists replaces it.
	Append(ctx context.Context, e *Entry) error
	// List returns entries newest first. limit <= 0 returns all of them.
	List(ctx context.Context, limit int) ([]Entry, error)
	// Get returns the entry with id or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

type options struct {
	logger  logging.Logger
	metrics *observability.ClientMetrics
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger used for store operations.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics counts store operations and, for postgres, exports pool stats.
func WithMetrics(m *observability.ClientMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// Open returns the store selected by cfg.History.
func Open(ctx context.Context, cfg *config.CLIConfig, opts ...Option) (Store, error) {
	o := options{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		store Store
		err   error
	)
	backend := cfg.History.Backend
	switch backend {
	case config.HistoryBackendNone:
		return nil, ErrDisabled
	case config.HistoryBackendFile, "":
		backend = config.HistoryBackendFile
		var dir string
		if dir, err = cfg.HistoryDir(); err == nil {
			store, err = NewFileStore(dir)
		}
	case config.HistoryBackendRedis:
		store, err = OpenRedis(ctx, cfg.History.RedisAddr)
	case config.HistoryBackendPostgres:
		store, err = OpenPostgres(ctx, cfg.History.PostgresDSN, o.metrics.Registerer())
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s history: %w", backend, err)
	}

	o.logger.Debug("History store opened", logging.F("backend", string(backend)))
	return Instrument(store, string(backend), o.logger, o.metrics), nil
}

// Instrument wraps store so every operation is logged and counted.
func Instrument(store Store, backend string, logger logging.Logger, metrics *observability.ClientMetrics) Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &instrumented{
		next:    store,
		backend: backend,
		logger:  logger.With(logging.F("history_backend", backend)),
		metrics: metrics,
	}
}

type instrumented struct {
	next    Store
	backend string
	logger  logging.Logger
	metrics *observability.ClientMetrics
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	s.metrics.RecordHistoryOp(s.backend, op, err)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("History operation failed", logging.F("op", op), logging.Err(err))
		return
	}
	s.logger.Debug("History operation", logging.F("op", op), logging.F("duration_ms", time.Since(start).Milliseconds()))
}

func (s *instrumented) Append(ctx context.Context, e *Entry) error {
	start := time.Now()
	err := validateEntry(e)
	if err == nil {
		err = s.next.Append(ctx, e)
	}
	s.observe("append", start, err)
	return err
}

func validateEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("nil history entry")
	}
	if _, err := contentid.Parse(e.ID); err != nil {
		return fmt.Errorf("history entry id: %w", err)
	}
	return nil
}

func (s *instrumented) List(ctx context.Context, limit int) ([]Entry, error) {
	start := time.Now()
	entries, err := s.next.List(ctx, limit)
	s.observe("list", start, err)
	return entries, err
}

func (s *instrumented) Get(ctx context.Context, id string) (*Entry, error) {
	start := time.Now()
	e, err := s.next.Get(ctx, id)
	s.observe("get", start, err)
	return e, err
}

func (s *instrumented) Clear(ctx context.Context) error {
	start := time.Now()
	err := s.next.Clear(ctx)
	s.observe("clear", start, err)
	return err
}

func (s *instrumented) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *instrumented) Close() error {
	return s.next.Close()
}

// newestFirst sorts entries by creation time descending, id breaking ties,
// and applies limit.
func newestFirst(entries []Entry, limit int) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
