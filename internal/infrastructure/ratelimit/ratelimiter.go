// Package ratelimit counts requests per client in fixed windows.
package ratelimit

import (
	"context"
	"time"
)

// Limit is a request budget per window. A non-positive Requests disables it.
type Limit struct {
	Requests int
	Window   time.Duration
}

// PerMinute is a budget of n requests per minute.
func PerMinute(n int) Limit {
	return Limit{Requests: n, Window: time.Minute}
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int64
	// ResetAfter is the time left in the current window.
	ResetAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
	Reset(ctx context.Context, key string) error
}
