package memory

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetRunReturnsCopies(t *testing.T) {
	s := NewInMemoryRunStorage()
	ctx := context.Background()
	run := domain.NewRun("r1", []string{"a", "b"}, "", domain.CallOptions{}, time.Now())

	require.NoError(t, s.SaveRun(ctx, run))
	run.Results[0] = domain.Completed(0, "mutated")

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, got.Results[0].Status)

	got.Results[1] = domain.Completed(1, "also mutated")
	again, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, again.Results[1].Status)
}

func TestGetRunNotFound(t *testing.T) {
	_, err := NewInMemoryRunStorage().GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrRunNotFound)
}

func TestListRunsOldestFirstAndDelete(t *testing.T) {
	s := NewInMemoryRunStorage()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.SaveRun(ctx, domain.NewRun("late", []string{"x"}, "", domain.CallOptions{}, base.Add(time.Minute))))
	require.NoError(t, s.SaveRun(ctx, domain.NewRun("early", []string{"x"}, "", domain.CallOptions{}, base)))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "early", runs[0].ID)
	assert.Equal(t, "late", runs[1].ID)

	require.NoError(t, s.DeleteRun(ctx, "early"))
	runs, err = s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
