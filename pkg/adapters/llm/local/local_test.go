package local

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// echoServer answers every chat completion with the last user message.
func echoServer(t *testing.T, seen chan<- map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := map[string]interface{}{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		seen <- raw

		msgs, _ := raw["messages"].([]interface{})
		last, _ := msgs[len(msgs)-1].(map[string]interface{})

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]interface{}{"role": "assistant", "content": last["content"]}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientRequiresURLAndKey(t *testing.T) {
	cfg := domain.ClientConfig{Model: "qwen3:30b", APIConfig: map[string]string{KeyAPIKey: "k"}}
	_, err := NewClient(cfg, zaptest.NewLogger(t))
	assert.True(t, domain.IsConfig(err))

	cfg.APIConfig = map[string]string{KeyAPIURL: "http://localhost:11434/v1"}
	_, err = NewClient(cfg, zaptest.NewLogger(t))
	assert.True(t, domain.IsConfig(err))
}

func TestLocalRoundTripAlwaysRequestsJSON(t *testing.T) {
	seen := make(chan map[string]interface{}, 1)
	srv := echoServer(t, seen)

	c, err := NewClient(domain.ClientConfig{
		Model:     "qwen3:30b",
		APIConfig: map[string]string{KeyAPIURL: srv.URL, KeyAPIKey: "amallo"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderLocal, c.Name())

	off := false
	batch := c.BuildBatches([]string{"hello"}, "sys")[0]
	out, err := c.Call(context.Background(), batch, domain.CallOptions{JSONMode: &off})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	req := <-seen
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, req["response_format"])
	assert.Equal(t, json.Number("42"), req["seed"])
	assert.Equal(t, "qwen3:30b", req["model"])
}
