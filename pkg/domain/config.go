package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultMaxRequestsPerMinute = 200
	DefaultRequestWindow        = 60 // seconds
	DefaultRequestTimeout       = 120 * time.Second
)

// Provider names accepted by the adapter factory
const (
	ProviderOpenAI    = "openai"
	ProviderLocal     = "local"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// ClientConfig describes one backend client. APIConfig holds backend-specific
// keys such as endpoint URLs and credentials; its values are never logged in
// full.
type ClientConfig struct {
	Provider             string
	Model                string
	APIConfig            map[string]string
	MaxRequestsPerMinute int
	RequestWindow        int // seconds
	RequestTimeout       time.Duration
	CostPolicy           CostPolicy
}

// WithDefaults fills zero-valued optional fields. Explicit non-positive rate
// or window values are preserved so that Validate rejects them.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.CostPolicy == "" {
		c.CostPolicy = CostPerCall
	}
	return c
}

// Validate returns a ConfigError describing the first invalid field.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return &ConfigError{Field: "model", Reason: "model is required"}
	}
	if c.APIConfig == nil {
		return &ConfigError{Field: "api_config", Reason: "api_config is required"}
	}
	if c.MaxRequestsPerMinute <= 0 {
		return &ConfigError{Field: "max_requests_per_minute", Reason: fmt.Sprintf("must be positive, got %d", c.MaxRequestsPerMinute)}
	}
	if c.RequestWindow <= 0 {
		return &ConfigError{Field: "request_window", Reason: fmt.Sprintf("must be positive, got %d", c.RequestWindow)}
	}
	if c.RequestTimeout < 0 {
		return &ConfigError{Field: "request_timeout", Reason: "must not be negative"}
	}
	if !c.CostPolicy.Valid() {
		return &ConfigError{Field: "cost_policy", Reason: fmt.Sprintf("unknown cost policy %q", c.CostPolicy)}
	}
	return nil
}

// Window returns the sliding window length.
func (c ClientConfig) Window() time.Duration {
	return time.Duration(c.RequestWindow) * time.Second
}

// RequireKey returns APIConfig[key] or a ConfigError when it is empty.
func (c ClientConfig) RequireKey(key string) (string, error) {
	v := strings.TrimSpace(c.APIConfig[key])
	if v == "" {
		return "", &ConfigError{Field: "api_config." + key, Reason: "value is required"}
	}
	return v, nil
}

// Redacted renders the configuration with every api_config value masked.
func (c ClientConfig) Redacted() string {
	keys := make([]string, 0, len(c.APIConfig))
	for k := range c.APIConfig {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+Mask(c.APIConfig[k]))
	}
	return fmt.Sprintf("provider=%s model=%s rpm=%d window=%ds api_config={%s}",
		c.Provider, c.Model, c.MaxRequestsPerMinute, c.RequestWindow, strings.Join(parts, ","))
}

// Mask keeps at most the last four characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return "****" + secret[len(secret)-4:]
}
