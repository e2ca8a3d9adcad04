package mock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoRoundTrip(t *testing.T) {
	c := New("echo")
	batches := c.BuildBatches([]string{"hello"}, "sys")
	require.Len(t, batches, 1)

	out, err := c.Call(context.Background(), batches[0], domain.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, c.Calls())
}

func TestInvalidSeedNeverCounts(t *testing.T) {
	c := New("echo")

	_, err := c.Call(context.Background(), c.BuildBatches([]string{"x"}, "")[0], domain.CallOptions{Seed: "7"})
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, c.Calls())
}

func TestNewClientFromConfig(t *testing.T) {
	c, err := NewClient(domain.ClientConfig{
		Model: "m",
		APIConfig: map[string]string{
			KeyResponse:   `{"ok":true}`,
			KeyFailMarker: "FAIL",
		},
		CostPolicy: domain.CostPerMessage,
	})
	require.NoError(t, err)

	out, err := c.Call(context.Background(), c.BuildBatches([]string{"fine"}, "")[0], domain.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	_, err = c.Call(context.Background(), c.BuildBatches([]string{"please FAIL"}, "")[0], domain.CallOptions{})
	assert.Equal(t, domain.ErrorKindBackend, domain.KindOf(err))
	assert.Equal(t, 2, c.RequestCost(c.BuildBatches([]string{"x"}, "")[0]))

	_, err = NewClient(domain.ClientConfig{Model: "m", APIConfig: map[string]string{KeyDelay: "soon"}})
	assert.True(t, domain.IsConfig(err))
}

func TestDelayHonoursCancellation(t *testing.T) {
	c := New("slow", WithDelay(time.Minute), WithFailOn(func(p string) bool { return strings.HasPrefix(p, "x") }))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, c.BuildBatches([]string{"y"}, "")[0], domain.CallOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, c.PeakConcurrency())
}
