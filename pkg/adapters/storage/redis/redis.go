package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const runKeyPrefix = "factllm:run:"

// RunStorage implements RunStorage using Redis
type RunStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStorage creates a new Redis run storage. Every save refreshes the
// run's TTL.
func NewRunStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStorage {
	return &RunStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun persists run as JSON
func (s *RunStorage) SaveRun(ctx context.Context, run *domain.Run) error {
	key := getRunKey(run.ID)

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)))

	return nil
}

// GetRun loads a run
func (s *RunStorage) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	data, err := s.client.Get(ctx, getRunKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ports.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return decodeRun(data)
}

// DeleteRun removes a run
func (s *RunStorage) DeleteRun(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, getRunKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	s.logger.Debug("run deleted", zap.String("run_id", runID))
	return nil
}

// ListRuns returns every stored run, oldest first
func (s *RunStorage) ListRuns(ctx context.Context) ([]*domain.Run, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, runKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	runs := make([]*domain.Run, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Expired between SCAN and GET.
			continue
		}

		run, err := decodeRun(data)
		if err != nil {
			s.logger.Warn("skipping undecodable run",
				zap.String("run_id", strings.TrimPrefix(key, runKeyPrefix)),
				zap.Error(err))
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].SubmittedAt.Before(runs[j].SubmittedAt)
	})
	return runs, nil
}

// decodeRun keeps numbers as json.Number so an integer seed survives the
// round trip as an integer.
func decodeRun(data []byte) (*domain.Run, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var run domain.Run
	if err := dec.Decode(&run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// getRunKey returns the Redis key for a run
func getRunKey(runID string) string {
	return fmt.Sprintf("%s%s", runKeyPrefix, runID)
}

var _ ports.RunStorage = (*RunStorage)(nil)
