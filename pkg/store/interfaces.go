package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Slot.Load when the key has never been saved.
	ErrNotFound = errors.New("slot key not found")
	// ErrLoadFailed wraps backend failures while reading a slot.
	ErrLoadFailed = errors.New("slot load failed")
	// ErrSaveFailed wraps backend failures while writing a slot.
	ErrSaveFailed = errors.New("slot save failed")
)

// Slot is a process-local durable key-value store. Each key holds one
// opaque text value that is replaced wholesale on every Save.
type Slot interface {
	// Load returns the value stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save overwrites the value stored under key.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
