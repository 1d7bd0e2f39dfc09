// Package genstore holds named generation counters. A SharedToken keeps its
// invalidation generation in a GenStore so that every process using the same
// store and name observes the same stream of invalidations.
package genstore

import "context"

// GenStore is a set of named, monotonically bumped counters.
// A name that was never bumped (or was pruned or expired) reads as 0.
type GenStore interface {
	// Snapshot returns the current generation of name.
	Snapshot(ctx context.Context, name string) (uint64, error)
	// Bump atomically increments name and returns the new generation.
	Bump(ctx context.Context, name string) (uint64, error)
	// Close releases resources held by the store.
	Close(context.Context) error
}
