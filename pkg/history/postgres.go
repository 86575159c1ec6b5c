package history

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/otherjamesbrown/minutes-cli/pkg/db"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const entryColumns = "id, created_at, source, filename, transcript, analysis"

// PostgresStore keeps entries in the history_entries table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, applies the history schema and, when reg is
// non-nil, registers pool statistics on it.
func OpenPostgres(ctx context.Context, dsn string, reg prometheus.Registerer) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, db.DefaultConfig(dsn))
	if err != nil {
		return nil, err
	}

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := db.Migrate(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	if _, err := db.RegisterPoolStats(reg, pool, "minutes", "history"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("registering pool metrics: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	analysis, err := json.Marshal(e.Analysis)
	if err != nil {
		return fmt.Errorf("marshaling analysis: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO history_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			source = EXCLUDED.source,
			filename = EXCLUDED.filename,
			transcript = EXCLUDED.transcript,
			analysis = EXCLUDED.analysis`,
		e.ID, e.CreatedAt, string(e.Source), e.Filename, e.Transcript, analysis)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT " + entryColumns + " FROM history_entries ORDER BY created_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return entries, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+entryColumns+" FROM history_entries WHERE id = $1", id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM history_entries"); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Close implements Store.
// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if status := db.Check(ctx, s.pool); !status.Healthy {
		return status.Error
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e        Entry
		source   string
		analysis []byte
	)
	if err := row.Scan(&e.ID, &e.CreatedAt, &source, &e.Filename, &e.Transcript, &analysis); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entry: %w", err)
	}
	e.Source = Source(source)
	if err := json.Unmarshal(analysis, &e.Analysis); err != nil {
		return nil, fmt.Errorf("decoding analysis of %s: %w", e.ID, err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
