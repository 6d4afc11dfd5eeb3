package rl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ErrNoTable is returned by a Store that has never been saved to.
var ErrNoTable = errors.New("q-table not found")

// Store persists a Q-table.
type Store interface {
	Load(ctx context.Context) (Table, error)
	Save(ctx context.Context, t Table) error
}

// FileStore keeps the table as a JSON document on local disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (Table, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("read q-table %s: %w", s.path, err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode q-table %s: %w", s.path, err)
	}
	if t == nil {
		t = make(Table)
	}
	return t, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the target, so readers never observe a partial table.
func (s *FileStore) Save(_ context.Context, t Table) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encode q-table: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create q-table dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp q-table: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp q-table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp q-table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp q-table: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename q-table: %w", err)
	}
	return nil
}

// LoadInto fills agent from store. A missing or unreadable table is not
// fatal: the agent keeps an empty table and the error is logged.
func LoadInto(ctx context.Context, agent *Agent, store Store, logger zerolog.Logger) {
	t, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoTable):
		logger.Info().Msg("no saved q-table, starting empty")
		return
	case err != nil:
		logger.Warn().Err(err).Msg("failed to load q-table, starting empty")
		return
	}
	agent.Load(t)
	logger.Info().Int("states", len(t)).Msg("q-table loaded")
}
