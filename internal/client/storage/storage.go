// Package storage provides the durable string key/value store the local
// record collection, the sync queue and the cache persist into.
package storage

import (
	"context"
)

// KV is a string-to-string durable store. Writes may fail (disk full,
// read-only media); callers decide whether a failure is fatal.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
