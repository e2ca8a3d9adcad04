package openai

import (
	"strings"

	"github.com/aescanero/factllm/pkg/adapters/llm/chatcompletions"
	"github.com/aescanero/factllm/pkg/domain"
	"go.uber.org/zap"
)

// APIConfig keys read by this adapter
const (
	KeyAPIKey  = "OPENAI_API_KEY"
	KeyBaseURL = "OPENAI_BASE_URL"
)

// DefaultBaseURL is used when OPENAI_BASE_URL is not set.
const DefaultBaseURL = "https://api.openai.com/v1"

// NewClient creates an adapter for the hosted OpenAI API. JSON-object mode
// is requested unless the caller turns it off per call.
func NewClient(cfg domain.ClientConfig, logger *zap.Logger, opts ...chatcompletions.Option) (*chatcompletions.Client, error) {
	apiKey, err := cfg.RequireKey(KeyAPIKey)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.APIConfig[KeyBaseURL])
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return chatcompletions.NewClient(chatcompletions.Config{
		Provider:   domain.ProviderOpenAI,
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      cfg.Model,
		Timeout:    cfg.RequestTimeout,
		CostPolicy: cfg.CostPolicy,
	}, logger, opts...)
}
