package workers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/factllm/internal/application/batch"
	"github.com/aescanero/factllm/internal/application/runs"
	"github.com/aescanero/factllm/pkg/adapters/events/memory"
	"github.com/aescanero/factllm/pkg/adapters/llm/mock"
	metrics "github.com/aescanero/factllm/pkg/adapters/metrics/prometheus"
	ratelimit "github.com/aescanero/factllm/pkg/adapters/ratelimit/memory"
	storage "github.com/aescanero/factllm/pkg/adapters/storage/memory"
	"github.com/aescanero/factllm/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	pool    *Pool
	manager *runs.Manager
	client  *mock.Client
}

func newFixture(t *testing.T, client *mock.Client, size int) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	collector := metrics.NewCollector(prometheus.NewRegistry())

	limiter, err := ratelimit.NewSlidingWindowLimiter(100, time.Minute, ratelimit.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	bus := memory.NewInMemoryEventBus(logger)
	manager := runs.NewManager(bus, storage.NewInMemoryRunStorage(), collector,
		runs.NewValidator(0), logger, domain.ProviderMock, client.Model(), time.Minute)
	driver := batch.NewDriver(client, limiter, collector, logger, 2)

	pool := NewPool(size, bus, manager, driver, collector, logger, time.Hour)
	require.NoError(t, pool.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})

	return &fixture{pool: pool, manager: manager, client: client}
}

func waitForStatus(t *testing.T, m *runs.Manager, runID string, want domain.RunStatus) *domain.Run {
	t.Helper()
	var run *domain.Run
	require.Eventually(t, func() bool {
		var err error
		run, err = m.GetRun(context.Background(), runID)
		return err == nil && run.Status == want
	}, 5*time.Second, 10*time.Millisecond, "run %s never reached %s", runID, want)
	return run
}

func TestPoolExecutesSubmittedRun(t *testing.T) {
	f := newFixture(t, mock.New("echo", mock.WithFailOn(func(p string) bool { return p == "bad" })), 2)

	run, err := f.manager.SubmitRun(context.Background(), runs.SubmitRequest{
		Prompts: []string{"one", "bad", "three"},
	})
	require.NoError(t, err)

	done := waitForStatus(t, f.manager, run.ID, domain.RunStatusCompleted)
	require.Len(t, done.Results, 3)
	assert.Equal(t, "one", done.Results[0].Content)
	assert.Equal(t, domain.ItemStatusFailed, done.Results[1].Status)
	assert.Equal(t, domain.ErrorKindBackend, done.Results[1].Error.Kind)
	assert.Equal(t, "three", done.Results[2].Content)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 3, f.client.Calls())
}

func TestPoolRunsEachSubmissionOnce(t *testing.T) {
	f := newFixture(t, mock.New("echo"), 3)

	var ids []string
	for i := 0; i < 5; i++ {
		run, err := f.manager.SubmitRun(context.Background(), runs.SubmitRequest{Prompts: []string{"a", "b"}})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	for _, id := range ids {
		waitForStatus(t, f.manager, id, domain.RunStatusCompleted)
	}
	assert.Equal(t, 10, f.client.Calls())
}

func TestCancelRunningRun(t *testing.T) {
	f := newFixture(t, mock.New("slow", mock.WithDelay(time.Minute)), 1)

	run, err := f.manager.SubmitRun(context.Background(), runs.SubmitRequest{Prompts: []string{"a", "b"}})
	require.NoError(t, err)
	waitForStatus(t, f.manager, run.ID, domain.RunStatusRunning)

	_, err = f.manager.CancelRun(context.Background(), run.ID)
	require.NoError(t, err)

	var done *domain.Run
	require.Eventually(t, func() bool {
		done, err = f.manager.GetRun(context.Background(), run.ID)
		if err != nil || done.Status != domain.RunStatusCancelled {
			return false
		}
		return done.Summary().Failed == len(done.Results)
	}, 5*time.Second, 10*time.Millisecond)

	for _, r := range done.Results {
		assert.Equal(t, domain.ErrorKindCancelled, r.Error.Kind)
	}
}

func TestHealthReflectsWorkerState(t *testing.T) {
	f := newFixture(t, mock.New("echo"), 2)

	require.Eventually(t, func() bool { return f.pool.Health().IsHealthy() }, time.Second, 5*time.Millisecond)
	status := f.pool.Health().GetStatus()
	assert.Equal(t, 2, status.TotalWorkers)
	assert.Zero(t, status.StoppedWorkers)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.pool.Shutdown(ctx))

	assert.False(t, f.pool.Health().IsHealthy())
	for id, s := range f.pool.GetStatus() {
		assert.True(t, strings.HasPrefix(id, "worker-"))
		assert.Equal(t, WorkerStatusStopped, s)
	}
}

func TestHealthReportsSaturatedPool(t *testing.T) {
	f := newFixture(t, mock.New("slow", mock.WithDelay(time.Minute)), 1)

	run, err := f.manager.SubmitRun(context.Background(), runs.SubmitRequest{Prompts: []string{"a"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := f.pool.Health().GetStatus()
		return s.Saturated && s.ActiveRuns == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, f.pool.Health().IsHealthy())

	// Sampling reads the limiter and must not disturb the running run
	f.pool.Health().sample()

	_, err = f.manager.CancelRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !f.pool.Health().GetStatus().Saturated }, 5*time.Second, 10*time.Millisecond)
}
