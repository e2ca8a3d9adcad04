package ports

import (
	"context"
	"time"
)

// RateLimiter admits weighted requests under a sliding-window capacity.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	// Reserve blocks until cost units fit in the trailing window, then
	// records them. A cancelled or expired ctx returns its error and leaves
	// nothing recorded.
	Reserve(ctx context.Context, cost int) error

	// Usage reports the cost currently held inside the window.
	Usage(ctx context.Context) (LimiterUsage, error)
}

// LimiterUsage is a point-in-time view of a limiter
type LimiterUsage struct {
	Used     int           `json:"used"`
	Capacity int           `json:"capacity"`
	Window   time.Duration `json:"window"`
	Records  int           `json:"records"`
}
