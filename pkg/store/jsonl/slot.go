package jsonl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nstogner/ragchat/pkg/store"
)

// Slot implements store.Slot with one JSONL file per key under a root directory.
// Values are replaced atomically so a crash mid-write never leaves a torn file.
type Slot struct {
	rootDir string
	mu      sync.RWMutex
}

var _ store.Slot = (*Slot)(nil)

// NewSlot creates a Slot rooted at rootDir, creating the directory if needed.
func NewSlot(rootDir string) (*Slot, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create slot directory: %w", err)
	}
	return &Slot{rootDir: rootDir}, nil
}

// Path returns the file backing key.
func (s *Slot) Path(key string) string {
	return filepath.Join(s.rootDir, key+".jsonl")
}

func (s *Slot) Load(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", store.ErrLoadFailed, key, err)
	}
	return data, nil
}

func (s *Slot) Save(_ context.Context, key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.rootDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrSaveFailed, key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", store.ErrSaveFailed, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", store.ErrSaveFailed, key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", store.ErrSaveFailed, key, err)
	}
	return nil
}

func (s *Slot) Delete(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete failed: %s: %w", key, err)
	}
	return nil
}

// Keys map straight to file names, so path separators are rejected.
func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid slot key %q", key)
	}
	return nil
}
