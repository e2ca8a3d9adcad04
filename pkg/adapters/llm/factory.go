package llm

import (
	"fmt"

	"github.com/aescanero/factllm/pkg/adapters/llm/anthropic"
	"github.com/aescanero/factllm/pkg/adapters/llm/local"
	"github.com/aescanero/factllm/pkg/adapters/llm/mock"
	"github.com/aescanero/factllm/pkg/adapters/llm/openai"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"go.uber.org/zap"
)

// Providers lists every provider NewClient accepts.
var Providers = []string{
	domain.ProviderOpenAI,
	domain.ProviderLocal,
	domain.ProviderAnthropic,
	domain.ProviderMock,
}

// NewClient validates cfg and creates the LLM client for cfg.Provider
func NewClient(cfg domain.ClientConfig, logger *zap.Logger) (ports.LLMClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("creating LLM client", zap.String("config", cfg.Redacted()))

	switch cfg.Provider {
	case domain.ProviderOpenAI:
		return asClient(openai.NewClient(cfg, logger))
	case domain.ProviderLocal:
		return asClient(local.NewClient(cfg, logger))
	case domain.ProviderAnthropic:
		return asClient(anthropic.NewClient(cfg, logger))
	case domain.ProviderMock:
		return asClient(mock.NewClient(cfg))
	default:
		return nil, &domain.ConfigError{
			Field:  "provider",
			Reason: fmt.Sprintf("unsupported LLM provider %q (supported: %v)", cfg.Provider, Providers),
		}
	}
}

// asClient keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func asClient[T ports.LLMClient](c T, err error) (ports.LLMClient, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
