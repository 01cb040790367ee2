// Package storage defines the durable key-value medium behind the
// AlumniSphere session core, together with Redis, SQLite, and in-memory
// backends. Every value carries a version stamp so that read-check-write
// sequences (the signup uniqueness check in particular) can be committed
// with compare-and-swap instead of a lock.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has never been written or was deleted.
var ErrNotFound = errors.New("storage key not found")

// ErrVersionMismatch is returned by CompareAndSwap when the stored version
// no longer matches the expected one.
var ErrVersionMismatch = errors.New("storage version mismatch")

// ErrUnavailable wraps backend transport or driver failures.
var ErrUnavailable = errors.New("storage unavailable")

// Versioned pairs a stored value with its version stamp. Version 0 means
// the key does not exist; the first successful write produces version 1.
type Versioned struct {
	Value   []byte
	Version uint64
}

// Backend is the durable key-value medium. Implementations must treat each
// key independently and bump the version on every successful write.
type Backend interface {
	// Get returns the current value, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetVersioned returns the current value and version. A missing key
	// yields ErrNotFound with Version 0.
	GetVersioned(ctx context.Context, key string) (Versioned, error)
	// Set writes unconditionally and bumps the version.
	Set(ctx context.Context, key string, value []byte) error
	// CompareAndSwap writes value only if the stored version equals
	// expected (0 for "key must not exist"). Returns the new version, or
	// ErrVersionMismatch on conflict.
	CompareAndSwap(ctx context.Context, key string, expected uint64, value []byte) (uint64, error)
	// Delete removes a key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}
