// Package kv defines the key-value medium the archive, history and result
// managers persist into. Each manager owns its own key namespace.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kv: key not found")

// UpdateFunc computes the next value of a key from its current value.
// found is false when the key does not exist. Returning write=false leaves
// the key untouched.
type UpdateFunc func(current []byte, found bool) (next []byte, write bool, err error)

// Store is a persisted key-value medium (embedded file, Redis, Postgres, memory).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Update runs fn against the most recent value of key and stores the
	// result atomically relative to other Update/Put/Delete calls on key.
	// Optimistic backends may run fn more than once, so fn must not have
	// side effects.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}
