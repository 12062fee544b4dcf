// Package jobs runs background maintenance for the procurement core:
// idempotency-key cleanup and unit-cost cache warmup.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/costing"
	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskCostWarmup precomputes unit costs so the first morning queries hit cache.
	TaskCostWarmup = "costing:warmup"
)

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewCostWarmupTask constructs the warmup task.
func NewCostWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskCostWarmup, nil)
}

// IdempotencyCleanupHandler returns the handler for cleanup tasks.
func IdempotencyCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			payload.Retention = 7 * 24 * time.Hour
		}
		removed, err := store.Cleanup(ctx, payload.Retention)
		if err != nil {
			return err
		}
		logger.Info("idempotency cleanup done", slog.Int64("removed", removed))
		return nil
	}
}

// CostWarmupHandler returns the handler for cache warmup tasks.
func CostWarmupHandler(svc *costing.Service, repo costing.RepositoryPort, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		ids, err := repo.VariantIDs(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, id := range ids {
			if _, err := svc.WeightedAverageCost(ctx, id, now); err != nil {
				logger.Warn("cost warmup failed for variant", slog.Int64("variant_id", id), slog.Any("error", err))
			}
		}
		logger.Info("cost warmup done", slog.Int("variants", len(ids)))
		return nil
	}
}
