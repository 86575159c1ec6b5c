package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the file the file backend keeps its entries in.
const DefaultFileName = "history.yaml"

// fileDocument is the on-disk layout of the file backend.
type fileDocument struct {
	Entries []Entry `yaml:"entries"`
}

// FileStore keeps entries in a single YAML file. Writes replace the file
// atomically via a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates dir if needed and returns a store backed by
// dir/history.yaml.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("history directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, DefaultFileName)}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing history file: %w", err)
	}
	return doc.Entries, nil
}

func (s *FileStore) save(entries []Entry) error {
	data, err := yaml.Marshal(&fileDocument{Entries: entries})
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint: errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing history file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("setting history file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing history file: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *FileStore) Append(ctx context.Context, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, existing := range entries {
		if existing.ID != e.ID {
			kept = append(kept, existing)
		}
	}
	return s.save(append(kept, *e))
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return newestFirst(entries, limit), nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, id string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, ErrNotFound
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing history file: %w", err)
	}
	return nil
}

// Ping implements Store. The history directory must exist.
func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		return fmt.Errorf("history directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("history directory: %s is not a directory", filepath.Dir(s.path))
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
