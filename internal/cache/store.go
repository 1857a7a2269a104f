package cache

import (
	"context"
	"time"
)

// Store represents a shared counter store used by rate limiting and
// maintenance jobs.
type Store interface {
	// IncrementWithTTL bumps the counter for key inside a fixed window and
	// returns the new count with the time left in the window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// PurgeExpired removes entries whose window has elapsed.
	PurgeExpired(ctx context.Context) (int64, error)
}
