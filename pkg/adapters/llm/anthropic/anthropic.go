package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// APIConfig keys read by this adapter
const (
	KeyAPIKey  = "ANTHROPIC_API_KEY"
	KeyBaseURL = "ANTHROPIC_BASE_URL"
)

const defaultMaxTokens = 4096

// Client implements ports.LLMClient on the Anthropic Messages API
type Client struct {
	client     anthropic.Client
	model      string
	costPolicy domain.CostPolicy
	logger     *zap.Logger
}

// NewClient creates an Anthropic adapter. SDK retries are disabled: one Call
// is one round trip.
func NewClient(cfg domain.ClientConfig, logger *zap.Logger, opts ...option.RequestOption) (*Client, error) {
	apiKey, err := cfg.RequireKey(KeyAPIKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &domain.ConfigError{Field: "model", Reason: "model is required"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if baseURL := strings.TrimSpace(cfg.APIConfig[KeyBaseURL]); baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &Client{
		client:     anthropic.NewClient(clientOpts...),
		model:      cfg.Model,
		costPolicy: cfg.CostPolicy,
		logger:     logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return domain.ProviderAnthropic }

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

// Call sends batch to the Messages API and returns the first text block.
// The seed is validated but not sent; the API has no such parameter.
func (c *Client) Call(ctx context.Context, batch domain.MessageBatch, opts domain.CallOptions) (string, error) {
	if err := batch.Validate(); err != nil {
		return "", err
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}

	params, err := c.buildParams(batch, opts)
	if err != nil {
		return "", err
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &domain.BackendError{Provider: domain.ProviderAnthropic, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", &domain.BackendError{Provider: domain.ProviderAnthropic, Detail: "request failed", Err: err}
	}

	c.logger.Debug("anthropic message response",
		zap.String("model", c.model),
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Duration("latency", time.Since(start)))

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", &domain.BackendError{Provider: domain.ProviderAnthropic, Detail: "response has no text content"}
}

func (c *Client) buildParams(batch domain.MessageBatch, opts domain.CallOptions) (anthropic.MessageNewParams, error) {
	maxTokens := int64(defaultMaxTokens)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
	}
	if system := batch.System(); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	for _, m := range batch {
		switch m.Role {
		case domain.RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(params.Messages) == 0 {
		return params, &domain.ValidationError{Field: "batch", Reason: fmt.Sprintf("batch of %d messages has no user or assistant message", len(batch))}
	}
	return params, nil
}

var _ ports.LLMClient = (*Client)(nil)
