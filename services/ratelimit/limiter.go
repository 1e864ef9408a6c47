package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Policy is the limit applied to one key: at most Max requests within any
// sliding Window.
type Policy struct {
	Max    int
	Window time.Duration
}

// Limiter admits or rejects a request under a sliding-window policy. Allow
// both checks and counts: an admitted request is recorded, a rejected one
// is not, so rejected traffic cannot extend its own penalty.
type Limiter interface {
	Allow(ctx context.Context, key string, policy Policy) (Result, error)
}
