package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
)

// APIConfig keys read by this adapter
const (
	// KeyResponse replaces the echo with a fixed response.
	KeyResponse = "MOCK_RESPONSE"
	// KeyFailMarker fails every prompt containing the marker.
	KeyFailMarker = "MOCK_FAIL_MARKER"
	// KeyDelay delays every call, e.g. "50ms".
	KeyDelay = "MOCK_DELAY"
)

// Client is an offline ports.LLMClient. By default it echoes the last user
// message of each batch.
type Client struct {
	model      string
	costPolicy domain.CostPolicy
	response   string
	failOn     func(prompt string) bool
	delay      time.Duration
	clk        func() time.Time

	mu        sync.Mutex
	calls     int
	callTimes []time.Time
	inFlight  int
	peak      int
}

// Option configures a Client
type Option func(*Client)

// WithResponse returns response instead of echoing.
func WithResponse(response string) Option {
	return func(c *Client) { c.response = response }
}

// WithFailOn fails every call whose last user message satisfies fn.
func WithFailOn(fn func(prompt string) bool) Option {
	return func(c *Client) { c.failOn = fn }
}

// WithDelay makes every call take at least d.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithClock replaces time.Now for recorded call times.
func WithClock(clk func() time.Time) Option {
	return func(c *Client) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// New creates a mock client with the given model name.
func New(model string, opts ...Option) *Client {
	c := &Client{model: model, costPolicy: domain.CostPerCall, clk: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient creates a mock client from a ClientConfig, reading the optional
// MOCK_* keys.
func NewClient(cfg domain.ClientConfig) (*Client, error) {
	var opts []Option
	if v := cfg.APIConfig[KeyResponse]; v != "" {
		opts = append(opts, WithResponse(v))
	}
	if marker := cfg.APIConfig[KeyFailMarker]; marker != "" {
		opts = append(opts, WithFailOn(func(p string) bool { return strings.Contains(p, marker) }))
	}
	if v := cfg.APIConfig[KeyDelay]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, &domain.ConfigError{Field: "api_config." + KeyDelay, Reason: fmt.Sprintf("invalid duration %q", v)}
		}
		opts = append(opts, WithDelay(d))
	}

	c := New(cfg.Model, opts...)
	c.costPolicy = cfg.CostPolicy
	return c, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return domain.ProviderMock }

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// RequestCost returns the limiter weight of batch.
func (c *Client) RequestCost(batch domain.MessageBatch) int {
	return c.costPolicy.Cost(batch)
}

// BuildBatches returns one [system, user] batch per prompt.
func (c *Client) BuildBatches(prompts []string, systemRole string) []domain.MessageBatch {
	return domain.BuildBatches(prompts, systemRole)
}

// Call validates like a real adapter, then echoes or fails.
func (c *Client) Call(ctx context.Context, batch domain.MessageBatch, opts domain.CallOptions) (string, error) {
	if err := batch.Validate(); err != nil {
		return "", err
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.calls++
	c.callTimes = append(c.callTimes, c.clk())
	c.inFlight++
	if c.inFlight > c.peak {
		c.peak = c.inFlight
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	prompt := batch.LastUser()
	if c.failOn != nil && c.failOn(prompt) {
		return "", &domain.BackendError{Provider: domain.ProviderMock, StatusCode: 500, Detail: "mock failure"}
	}
	if c.response != "" {
		return c.response, nil
	}
	return prompt, nil
}

// Calls returns how many calls passed validation.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// CallTimes returns when each call started.
func (c *Client) CallTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.callTimes...)
}

// PeakConcurrency returns the highest number of simultaneous calls seen.
func (c *Client) PeakConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

var _ ports.LLMClient = (*Client)(nil)
