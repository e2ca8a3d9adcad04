package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const messageBody = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5",
  "content": [{"type": "text", "text": "{\"verdict\":\"true\"}"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

func newTestServer(t *testing.T, status int, body string, seen chan<- map[string]interface{}) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		raw := map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if seen != nil {
			seen <- raw
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(domain.ClientConfig{
		Provider:  domain.ProviderAnthropic,
		Model:     "claude-sonnet-4-5",
		APIConfig: map[string]string{KeyAPIKey: "sk-ant-test", KeyBaseURL: baseURL},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(domain.ClientConfig{Model: "m", APIConfig: map[string]string{}}, nil)
	assert.True(t, domain.IsConfig(err))
}

func TestCallMapsSystemAndReturnsFirstText(t *testing.T) {
	seen := make(chan map[string]interface{}, 1)
	srv, hits := newTestServer(t, http.StatusOK, messageBody, seen)
	c := newTestClient(t, srv.URL)

	out, err := c.Call(context.Background(), c.BuildBatches([]string{"is water wet?"}, "sys")[0], domain.CallOptions{Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, `{"verdict":"true"}`, out)
	assert.Equal(t, int32(1), hits.Load())

	req := <-seen
	assert.Equal(t, "claude-sonnet-4-5", req["model"])
	assert.NotContains(t, req, "seed")
	assert.EqualValues(t, defaultMaxTokens, req["max_tokens"])

	system, ok := req["system"].([]interface{})
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Equal(t, "sys", system[0].(map[string]interface{})["text"])

	msgs, ok := req["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]interface{})["role"])
}

func TestCallValidatesSeedBeforeNetwork(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusOK, messageBody, nil)
	c := newTestClient(t, srv.URL)

	_, err := c.Call(context.Background(), c.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{Seed: 4.2})
	assert.True(t, domain.IsValidation(err))

	_, err = c.Call(context.Background(), domain.MessageBatch{{Role: domain.RoleSystem, Content: "only system"}}, domain.CallOptions{})
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, hits.Load())
}

func TestCallReportsBackendErrorWithoutRetrying(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusInternalServerError,
		`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`, nil)
	c := newTestClient(t, srv.URL)

	_, err := c.Call(context.Background(), c.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{})

	var be *domain.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusInternalServerError, be.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCallRejectsResponseWithoutText(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{
	  "id": "msg_02", "type": "message", "role": "assistant", "model": "m",
	  "content": [], "stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 0}
	}`, nil)
	c := newTestClient(t, srv.URL)

	_, err := c.Call(context.Background(), c.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{})
	assert.Equal(t, domain.ErrorKindBackend, domain.KindOf(err))
}
