package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"go.uber.org/zap"
)

const (
	minSleep            = 5 * time.Millisecond
	defaultPollInterval = 100 * time.Millisecond
)

// record is one admitted request
type record struct {
	at   time.Time
	cost int
}

// SlidingWindowLimiter implements ports.RateLimiter in process memory
type SlidingWindowLimiter struct {
	capacity     int
	window       time.Duration
	clk          func() time.Time
	pollInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	records []record
}

// Option configures a SlidingWindowLimiter
type Option func(*SlidingWindowLimiter)

// WithClock replaces time.Now.
func WithClock(clk func() time.Time) Option {
	return func(l *SlidingWindowLimiter) {
		if clk != nil {
			l.clk = clk
		}
	}
}

// WithPollInterval bounds how long Reserve sleeps between two checks.
func WithPollInterval(d time.Duration) Option {
	return func(l *SlidingWindowLimiter) {
		if d >= minSleep {
			l.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for wait diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(l *SlidingWindowLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewSlidingWindowLimiter creates a limiter admitting at most capacity cost
// units within any trailing window.
func NewSlidingWindowLimiter(capacity int, window time.Duration, opts ...Option) (*SlidingWindowLimiter, error) {
	if capacity <= 0 {
		return nil, &domain.ConfigError{Field: "max_requests_per_minute", Reason: fmt.Sprintf("must be positive, got %d", capacity)}
	}
	if window <= 0 {
		return nil, &domain.ConfigError{Field: "request_window", Reason: fmt.Sprintf("must be positive, got %s", window)}
	}

	l := &SlidingWindowLimiter{
		capacity:     capacity,
		window:       window,
		clk:          time.Now,
		pollInterval: defaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Reserve blocks until cost fits in the window, then records it.
func (l *SlidingWindowLimiter) Reserve(ctx context.Context, cost int) error {
	if cost <= 0 {
		return &domain.ValidationError{Field: "cost", Reason: fmt.Sprintf("must be positive, got %d", cost)}
	}

	waited := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := l.tryAdmit(cost)
		if ok {
			return nil
		}
		if !waited {
			l.logger.Debug("rate limiter window full, waiting",
				zap.Int("cost", cost),
				zap.Int("capacity", l.capacity),
				zap.Duration("wait", wait))
			waited = true
		}

		if err := sleepCtx(ctx, l.boundSleep(wait)); err != nil {
			return err
		}
	}
}

// TryReserve records cost if it fits right now and reports whether it did.
func (l *SlidingWindowLimiter) TryReserve(cost int) bool {
	if cost <= 0 {
		return false
	}
	_, ok := l.tryAdmit(cost)
	return ok
}

// Usage reports the cost held in the current window.
func (l *SlidingWindowLimiter) Usage(ctx context.Context) (ports.LimiterUsage, error) {
	now := l.clk()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)
	return ports.LimiterUsage{
		Used:     l.used(),
		Capacity: l.capacity,
		Window:   l.window,
		Records:  len(l.records),
	}, nil
}

func (l *SlidingWindowLimiter) tryAdmit(cost int) (time.Duration, bool) {
	now := l.clk()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(now)
	if len(l.records) == 0 || l.used()+cost <= l.capacity {
		l.records = append(l.records, record{at: now, cost: cost})
		return 0, true
	}
	return l.nextExpiry(now), false
}

// evict drops every record at least one window old. Caller holds mu.
func (l *SlidingWindowLimiter) evict(now time.Time) {
	kept := l.records[:0]
	for _, r := range l.records {
		if now.Sub(r.at) < l.window {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

// used sums the recorded cost. Caller holds mu.
func (l *SlidingWindowLimiter) used() int {
	total := 0
	for _, r := range l.records {
		total += r.cost
	}
	return total
}

// nextExpiry returns how long until the oldest record leaves the window.
// Caller holds mu and records is non-empty.
func (l *SlidingWindowLimiter) nextExpiry(now time.Time) time.Duration {
	oldest := l.records[0].at
	for _, r := range l.records[1:] {
		if r.at.Before(oldest) {
			oldest = r.at
		}
	}
	return oldest.Add(l.window).Sub(now)
}

func (l *SlidingWindowLimiter) boundSleep(wait time.Duration) time.Duration {
	if wait < minSleep {
		return minSleep
	}
	if wait > l.pollInterval {
		return l.pollInterval
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ ports.RateLimiter = (*SlidingWindowLimiter)(nil)
