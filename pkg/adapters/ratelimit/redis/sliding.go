package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minSleep            = 5 * time.Millisecond
	defaultPollInterval = 100 * time.Millisecond
)

// slidingWindowScript evicts expired members, sums the remaining cost and
// either admits the new member or reports how long until the oldest member
// expires. Members are "<ms>:<id>:<cost>" scored by their admission time in
// milliseconds. A zero cost only reports usage.
//
// Returns {admitted, used, wait_ms, records}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local entries = redis.call('ZRANGE', key, 0, -1, 'WITHSCORES')
local used = 0
for i = 1, #entries, 2 do
  used = used + tonumber(string.match(entries[i], ':(%d+)$'))
end
local count = #entries / 2

if cost == 0 then
  return {0, used, 0, count}
end
if count == 0 or used + cost <= capacity then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return {1, used + cost, 0, count + 1}
end
return {0, used, tonumber(entries[2]) + window - now, count}
`)

// SlidingWindowLimiter implements ports.RateLimiter on a Redis sorted set,
// so every process sharing key shares one window.
type SlidingWindowLimiter struct {
	client       *redis.Client
	key          string
	capacity     int
	window       time.Duration
	clk          func() time.Time
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a SlidingWindowLimiter
type Option func(*SlidingWindowLimiter)

// WithClock replaces time.Now. All processes sharing a key should use
// roughly synchronized clocks.
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

// NewSlidingWindowLimiter creates a Redis-backed limiter. key groups the
// callers sharing one capacity, typically one per provider credential.
func NewSlidingWindowLimiter(client *redis.Client, key string, capacity int, window time.Duration, logger *zap.Logger, opts ...Option) (*SlidingWindowLimiter, error) {
	if client == nil {
		return nil, &domain.ConfigError{Field: "redis", Reason: "client is required"}
	}
	if key == "" {
		return nil, &domain.ConfigError{Field: "ratelimit_key", Reason: "key is required"}
	}
	if capacity <= 0 {
		return nil, &domain.ConfigError{Field: "max_requests_per_minute", Reason: fmt.Sprintf("must be positive, got %d", capacity)}
	}
	if window < time.Millisecond {
		return nil, &domain.ConfigError{Field: "request_window", Reason: fmt.Sprintf("must be at least 1ms, got %s", window)}
	}

	l := &SlidingWindowLimiter{
		client:       client,
		key:          getLimiterKey(key),
		capacity:     capacity,
		window:       window,
		clk:          time.Now,
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Reserve blocks until cost fits in the shared window, then records it.
func (l *SlidingWindowLimiter) Reserve(ctx context.Context, cost int) error {
	if cost <= 0 {
		return &domain.ValidationError{Field: "cost", Reason: fmt.Sprintf("must be positive, got %d", cost)}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := l.eval(ctx, cost)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to evaluate rate limit: %w", err)
		}
		if res.admitted {
			return nil
		}

		l.logger.Debug("shared rate limit window full, waiting",
			zap.String("key", l.key),
			zap.Int("cost", cost),
			zap.Int("used", res.used),
			zap.Duration("wait", res.wait))

		if err := sleepCtx(ctx, l.boundSleep(res.wait)); err != nil {
			return err
		}
	}
}

// Usage reports the cost held in the shared window.
func (l *SlidingWindowLimiter) Usage(ctx context.Context) (ports.LimiterUsage, error) {
	res, err := l.eval(ctx, 0)
	if err != nil {
		return ports.LimiterUsage{}, fmt.Errorf("failed to read rate limit usage: %w", err)
	}
	return ports.LimiterUsage{
		Used:     res.used,
		Capacity: l.capacity,
		Window:   l.window,
		Records:  res.records,
	}, nil
}

type evalResult struct {
	admitted bool
	used     int
	wait     time.Duration
	records  int
}

func (l *SlidingWindowLimiter) eval(ctx context.Context, cost int) (evalResult, error) {
	nowMs := l.clk().UnixMilli()
	member := fmt.Sprintf("%d:%s:%d", nowMs, uuid.New().String(), cost)

	raw, err := slidingWindowScript.Run(ctx, l.client, []string{l.key},
		nowMs, l.window.Milliseconds(), l.capacity, cost, member).Slice()
	if err != nil {
		return evalResult{}, err
	}
	if len(raw) != 4 {
		return evalResult{}, fmt.Errorf("unexpected script reply length %d", len(raw))
	}

	vals := make([]int64, len(raw))
	for i, v := range raw {
		n, ok := v.(int64)
		if !ok {
			return evalResult{}, fmt.Errorf("unexpected script reply type %T", v)
		}
		vals[i] = n
	}

	return evalResult{
		admitted: vals[0] == 1,
		used:     int(vals[1]),
		wait:     time.Duration(vals[2]) * time.Millisecond,
		records:  int(vals[3]),
	}, nil
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

// getLimiterKey returns the Redis key for a limiter group
func getLimiterKey(key string) string {
	return fmt.Sprintf("factllm:ratelimit:%s", key)
}

var _ ports.RateLimiter = (*SlidingWindowLimiter)(nil)
