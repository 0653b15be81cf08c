package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrThreadNotFound indicates no record exists for the requested thread.
var ErrThreadNotFound = errors.New("state: thread not found")

// Storage persists ThreadState records keyed by (channel, thread). Save
// is an atomic whole-record replace; a partial write must never become
// visible to Load.
type Storage interface {
	Load(ctx context.Context, key ThreadKey) (*ThreadState, error)
	Save(ctx context.Context, ts *ThreadState) error
	Delete(ctx context.Context, key ThreadKey) error
}

// JSONStorage persists one JSON file per thread under dataDir/threads.
// Writes go through a temp file plus rename so a crash mid-write leaves
// the previous record intact.
type JSONStorage struct {
	threadsDir string
}

// NewJSONStorage creates the threads directory under dataDir.
func NewJSONStorage(dataDir string) (*JSONStorage, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	threadsDir := filepath.Join(dataDir, "threads")
	if err := os.MkdirAll(threadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create threads dir: %w", err)
	}
	return &JSONStorage{threadsDir: threadsDir}, nil
}

func (s *JSONStorage) path(key ThreadKey) string {
	return filepath.Join(s.threadsDir, sanitizeFilename(key.String())+".json")
}

func (s *JSONStorage) Load(_ context.Context, key ThreadKey) (*ThreadState, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("state: read thread file: %w", err)
	}

	var ts ThreadState
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("state: decode thread file: %w", err)
	}
	return &ts, nil
}

func (s *JSONStorage) Save(_ context.Context, ts *ThreadState) error {
	if ts == nil {
		return errors.New("state: thread state cannot be nil")
	}
	data, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode thread state: %w", err)
	}

	path := s.path(ts.Key())
	tmp, err := os.CreateTemp(s.threadsDir, ".thread-*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: replace thread file: %w", err)
	}
	return nil
}

func (s *JSONStorage) Delete(_ context.Context, key ThreadKey) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: delete thread file: %w", err)
	}
	return nil
}

// sanitizeFilename keeps channel/thread identifiers from escaping the
// threads directory. Slack ids are alphanumeric with dots, but the
// identifiers are opaque strings by contract.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", string(os.PathSeparator), "_")
	return replacer.Replace(name)
}
