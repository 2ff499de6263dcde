package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"Bindr/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// FileStore
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// wrapper versions the stored record for future migration.
type wrapper[T any] struct {
	Version int `json:"version"`
	Value   T   `json:"value"`
}

// FileStore implements Store[T] with one JSON file per record. Writes
// are atomic (temp file plus rename) and IDs are confined to baseDir.
type FileStore[T any] struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore[T any](dir string) (*FileStore[T], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore[T]{baseDir: dir}, nil
}

func (s *FileStore[T]) path(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// validatePath keeps record files inside baseDir even when an ID carries
// path separators.
func (s *FileStore[T]) validatePath(p string) error {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return ErrWorkspaceEscape
	}
	return nil
}

func (s *FileStore[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T

	p := s.path(id)
	if err := s.validatePath(p); err != nil {
		return zero, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("read record: %w", err)
	}

	var w wrapper[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return zero, fmt.Errorf("unmarshal record: %w", err)
	}
	if isNil(w.Value) {
		return zero, fmt.Errorf("record data is nil for id: %s", id)
	}
	return w.Value, nil
}

func (s *FileStore[T]) Put(ctx context.Context, id string, value T) error {
	p := s.path(id)
	if err := s.validatePath(p); err != nil {
		return err
	}

	data, err := json.MarshalIndent(wrapper[T]{Version: 1, Value: value}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := p + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *FileStore[T]) Del(ctx context.Context, id string) error {
	p := s.path(id)
	if err := s.validatePath(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); os.IsNotExist(err) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (s *FileStore[T]) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list records: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// isNil reports whether a stored pointer value decoded to nil.
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Constructors
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// NewFileSessionStore stores sessions under <stateRoot>/sessions.
func NewFileSessionStore(stateRoot string) (SessionStore, error) {
	return NewFileStore[*api.Session](filepath.Join(stateRoot, "sessions"))
}

// NewFileHandoffStore stores handoff archives under <stateRoot>/handoffs.
func NewFileHandoffStore(stateRoot string) (HandoffStore, error) {
	return NewFileStore[*api.HandoffArchive](filepath.Join(stateRoot, "handoffs"))
}
