// Package ratelimit bounds how many chat messages one user may send per
// window, across all of that user's connections.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether userID may send one more message now.
type Limiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// Options holds the window parameters shared by all limiters.
type Options struct {
	Max    int
	Window time.Duration
}
