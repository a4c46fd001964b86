// Package store provides ledger backends for the fixed-window rate limiter.
package store

import (
	"context"
	"time"
)

// Window is the ledger record kept for one client key.
// Count is the number of requests seen since Start.
type Window struct {
	Count int64
	Start time.Time
}

// Store defines the interface for rate limit ledger backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Increment records one request for key and returns the new count and the
	// time left until the window closes. A window that has been open for longer
	// than the window duration is replaced by a fresh one holding count 1.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// Get returns the current window for key without recording a request.
	// Returns the zero Window if the key is unknown or its window has closed.
	Get(ctx context.Context, key string) (Window, error)

	// Reset removes the window for key.
	Reset(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
