package chatcompletions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// Config describes one OpenAI-compatible endpoint.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	CostPolicy domain.CostPolicy

	// ForceJSON requests JSON-object output even when CallOptions.JSONMode
	// is explicitly false.
	ForceJSON bool
}

// Client implements ports.LLMClient against POST <base>/chat/completions.
type Client struct {
	provider   string
	url        string
	apiKey     string
	model      string
	costPolicy domain.CostPolicy
	forceJSON  bool
	logger     *zap.Logger
	do         func(*http.Request) (*http.Response, error)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.do = hc.Do
		}
	}
}

// NewClient creates a chat-completions client.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &domain.ConfigError{Field: "base_url", Reason: "base url is required"}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &domain.ConfigError{Field: "model", Reason: "model is required"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = domain.DefaultRequestTimeout
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	c := &Client{
		provider:   cfg.Provider,
		url:        strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		costPolicy: cfg.CostPolicy,
		forceJSON:  cfg.ForceJSON,
		logger:     logger,
		do:         hc.Do,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return c.provider }

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

// Call sends batch and returns choices[0].message.content.
func (c *Client) Call(ctx context.Context, batch domain.MessageBatch, opts domain.CallOptions) (string, error) {
	if err := batch.Validate(); err != nil {
		return "", err
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}
	seed, _ := opts.SeedValue()

	body, err := json.Marshal(c.encode(batch, opts, seed))
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &domain.BackendError{Provider: c.provider, Detail: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("chat completion response",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &domain.BackendError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(slurp)),
		}
	}

	return c.decode(ctx, resp.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Seed           int64           `json:"seed"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) encode(batch domain.MessageBatch, opts domain.CallOptions, seed int64) chatRequest {
	req := chatRequest{
		Model:       c.model,
		Messages:    make([]chatMessage, 0, len(batch)),
		Seed:        seed,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range batch {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if c.forceJSON || opts.JSONModeEnabled() {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

func (c *Client) decode(ctx context.Context, body io.Reader) (string, error) {
	var cr chatResponse
	if err := json.NewDecoder(body).Decode(&cr); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &domain.BackendError{Provider: c.provider, Detail: "invalid response body", Err: err}
	}

	switch {
	case len(cr.Choices) == 0:
		return "", &domain.BackendError{Provider: c.provider, Detail: "response has no choices"}
	case cr.Choices[0].Message == nil:
		return "", &domain.BackendError{Provider: c.provider, Detail: "first choice has no message"}
	case cr.Choices[0].Message.Content == nil:
		return "", &domain.BackendError{Provider: c.provider, Detail: "first choice has no content"}
	}
	return *cr.Choices[0].Message.Content, nil
}

var _ ports.LLMClient = (*Client)(nil)
