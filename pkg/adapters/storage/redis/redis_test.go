package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStorage(t *testing.T) (*RunStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRunStorage(client, time.Hour, zaptest.NewLogger(t)), mr
}

func TestRunRoundTripKeepsIntegerSeed(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()

	run := domain.NewRun("r1", []string{"a", "b"}, "sys", domain.CallOptions{Seed: 7}, time.Now().UTC())
	run.Results[1] = domain.Failed(1, &domain.BackendError{Provider: "local", StatusCode: 502})
	require.NoError(t, s.SaveRun(ctx, run))

	assert.True(t, mr.Exists("factllm:run:r1"))
	assert.Equal(t, time.Hour, mr.TTL("factllm:run:r1"))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	seed, err := got.Options.SeedValue()
	require.NoError(t, err)
	assert.Equal(t, int64(7), seed)
	assert.Equal(t, []string{"a", "b"}, got.Prompts)
	assert.Equal(t, domain.ErrorKindBackend, got.Results[1].Error.Kind)
}

func TestGetRunNotFound(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrRunNotFound)
}

func TestListAndDeleteRuns(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, s.SaveRun(ctx, domain.NewRun("b", []string{"x"}, "", domain.CallOptions{}, base.Add(time.Second))))
	require.NoError(t, s.SaveRun(ctx, domain.NewRun("a", []string{"x"}, "", domain.CallOptions{}, base)))
	require.NoError(t, mr.Set("factllm:run:broken", "{not json"))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)

	require.NoError(t, s.DeleteRun(ctx, "a"))
	_, err = s.GetRun(ctx, "a")
	assert.ErrorIs(t, err, ports.ErrRunNotFound)
}
