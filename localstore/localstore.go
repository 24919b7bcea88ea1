// Package localstore provides the persisted key-value substrate shared by
// the credential and team-context stores. Values survive process reloads;
// keys are fixed identifiers owned by their writing package.
package localstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("localstore: key not found")

// Store is a minimal persisted key-value contract.
// Implementations: SQLite (durable), Memory (testing).
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases underlying resources.
	Close() error
}
