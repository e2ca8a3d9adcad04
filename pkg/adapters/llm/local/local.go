package local

import (
	"github.com/aescanero/factllm/pkg/adapters/llm/chatcompletions"
	"github.com/aescanero/factllm/pkg/domain"
	"go.uber.org/zap"
)

// APIConfig keys read by this adapter
const (
	KeyAPIKey = "LOCAL_API_KEY"
	KeyAPIURL = "LOCAL_API_URL"
)

// NewClient creates an adapter for a local OpenAI-compatible inference
// server such as Ollama or FastChat. Both LOCAL_API_URL and LOCAL_API_KEY
// are required; servers that ignore auth accept any placeholder key.
// Every call requests a JSON object and carries an integer seed.
func NewClient(cfg domain.ClientConfig, logger *zap.Logger, opts ...chatcompletions.Option) (*chatcompletions.Client, error) {
	apiURL, err := cfg.RequireKey(KeyAPIURL)
	if err != nil {
		return nil, err
	}
	apiKey, err := cfg.RequireKey(KeyAPIKey)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("local LLM endpoint configured",
			zap.String("url", apiURL),
			zap.String("model", cfg.Model),
			zap.String("api_key", domain.Mask(apiKey)))
	}

	return chatcompletions.NewClient(chatcompletions.Config{
		Provider:   domain.ProviderLocal,
		BaseURL:    apiURL,
		APIKey:     apiKey,
		Model:      cfg.Model,
		Timeout:    cfg.RequestTimeout,
		CostPolicy: cfg.CostPolicy,
		ForceJSON:  true,
	}, logger, opts...)
}
