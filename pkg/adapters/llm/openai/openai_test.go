package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(domain.ClientConfig{Model: "gpt-4o-mini", APIConfig: map[string]string{}}, zaptest.NewLogger(t))
	assert.True(t, domain.IsConfig(err))
}

func TestOpenAIUsesConfiguredBaseURL(t *testing.T) {
	var path, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(domain.ClientConfig{
		Model:     "gpt-4o-mini",
		APIConfig: map[string]string{KeyAPIKey: "sk-test", KeyBaseURL: srv.URL + "/v1"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := c.Call(context.Background(), c.BuildBatches([]string{"q"}, "")[0], domain.CallOptions{Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, domain.ProviderOpenAI, c.Name())
	assert.Equal(t, "gpt-4o-mini", c.Model())
}
