package chatcompletions

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

type capturedRequest struct {
	Path           string
	Auth           string
	Model          string              `json:"model"`
	Messages       []map[string]string `json:"messages"`
	ResponseFormat map[string]string   `json:"response_format"`
	Seed           json.Number         `json:"seed"`
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, chan capturedRequest) {
	t.Helper()
	var hits atomic.Int32
	captured := make(chan capturedRequest, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var cr capturedRequest
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		_ = dec.Decode(&cr)
		cr.Path = r.URL.Path
		cr.Auth = r.Header.Get("Authorization")
		captured <- cr

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, captured
}

func newTestClient(t *testing.T, baseURL string, forceJSON bool) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Provider:  "local",
		BaseURL:   baseURL + "/v1/",
		APIKey:    "test-key",
		Model:     "qwen3:30b",
		ForceJSON: forceJSON,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

const okBody = `{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}},{"message":{"content":"second"}}]}`

func TestCallEncodesRequestAndReturnsFirstChoice(t *testing.T) {
	srv, hits, captured := newTestServer(t, http.StatusOK, okBody)
	c := newTestClient(t, srv.URL, false)

	batch := c.BuildBatches([]string{"hello"}, "sys")[0]
	out, err := c.Call(context.Background(), batch, domain.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, int32(1), hits.Load())

	req := <-captured
	assert.Equal(t, "/v1/chat/completions", req.Path)
	assert.Equal(t, "Bearer test-key", req.Auth)
	assert.Equal(t, "qwen3:30b", req.Model)
	assert.Equal(t, "json_object", req.ResponseFormat["type"])
	assert.Equal(t, json.Number("42"), req.Seed)
	assert.Equal(t, []map[string]string{
		{"role": "system", "content": "sys"},
		{"role": "user", "content": "hello"},
	}, req.Messages)
}

func TestCallHonoursJSONModeUnlessForced(t *testing.T) {
	off := false
	opts := domain.CallOptions{JSONMode: &off, Seed: 7}

	srv, _, captured := newTestServer(t, http.StatusOK, okBody)
	_, err := newTestClient(t, srv.URL, false).Call(context.Background(), domain.BuildBatches([]string{"x"}, "")[0], opts)
	require.NoError(t, err)
	req := <-captured
	assert.Nil(t, req.ResponseFormat)
	assert.Equal(t, json.Number("7"), req.Seed)

	srv, _, captured = newTestServer(t, http.StatusOK, okBody)
	_, err = newTestClient(t, srv.URL, true).Call(context.Background(), domain.BuildBatches([]string{"x"}, "")[0], opts)
	require.NoError(t, err)
	assert.Equal(t, "json_object", (<-captured).ResponseFormat["type"])
}

func TestCallRejectsInvalidSeedBeforeNetwork(t *testing.T) {
	srv, hits, _ := newTestServer(t, http.StatusOK, okBody)
	c := newTestClient(t, srv.URL, true)
	batch := domain.BuildBatches([]string{"x"}, "")[0]

	for _, seed := range []interface{}{1.5, "42", json.Number("4.2")} {
		_, err := c.Call(context.Background(), batch, domain.CallOptions{Seed: seed})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err), "seed %v", seed)
	}

	_, err := c.Call(context.Background(), domain.MessageBatch{}, domain.CallOptions{})
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, hits.Load())
}

func TestCallClassifiesErrorStatus(t *testing.T) {
	srv, _, _ := newTestServer(t, http.StatusServiceUnavailable, `{"error":"model loading"}`)
	c := newTestClient(t, srv.URL, true)

	_, err := c.Call(context.Background(), domain.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{})

	var be *domain.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusServiceUnavailable, be.StatusCode)
	assert.Equal(t, `{"error":"model loading"}`, be.Detail)
	assert.Equal(t, "local", be.Provider)
	assert.True(t, be.Transient())
}

func TestCallRejectsMalformedResponses(t *testing.T) {
	bodies := map[string]string{
		"not json":        `<html>`,
		"no choices":      `{"choices":[]}`,
		"no message":      `{"choices":[{}]}`,
		"null content":    `{"choices":[{"message":{"content":null}}]}`,
		"missing content": `{"choices":[{"message":{"role":"assistant"}}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, http.StatusOK, body)
			c := newTestClient(t, srv.URL, true)

			out, err := c.Call(context.Background(), domain.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{})
			assert.Empty(t, out)
			assert.Equal(t, domain.ErrorKindBackend, domain.KindOf(err))
		})
	}
}

func TestCallReturnsEmptyCompletion(t *testing.T) {
	srv, _, _ := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"content":""}}]}`)
	c := newTestClient(t, srv.URL, true)

	out, err := c.Call(context.Background(), domain.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestCallReturnsContextErrorWhenCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, domain.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientRequiresBaseURLAndModel(t *testing.T) {
	_, err := NewClient(Config{Model: "m"}, nil)
	assert.True(t, domain.IsConfig(err))

	_, err = NewClient(Config{BaseURL: "http://localhost"}, nil)
	assert.True(t, domain.IsConfig(err))
}

func TestRequestCostFollowsPolicy(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost", Model: "m", CostPolicy: domain.CostPerMessage}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, c.RequestCost(c.BuildBatches([]string{"x"}, "")[0]))
}
