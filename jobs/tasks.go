// Package jobs contains background task definitions and the Asynq worker.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeMovementRecorded fans out committed stock movements.
	TaskTypeMovementRecorded = "inventory:movement_recorded"
	// TaskTypeLowStockScan walks all records looking for depleted stock.
	TaskTypeLowStockScan = "inventory:low_stock_scan"
	// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
	TaskTypeIdempotencyCleanup = "inventory:idempotency_cleanup"
)

// MovementRecordedPayload carries one committed movement.
type MovementRecordedPayload struct {
	MovementID        string    `json:"movement_id"`
	SKU               string    `json:"sku"`
	StoreID           string    `json:"store_id"`
	Type              string    `json:"type"`
	Quantity          int64     `json:"quantity"`
	ResultingQuantity int64     `json:"resulting_quantity"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// NewMovementRecordedTask constructs an Asynq task.
func NewMovementRecordedTask(payload MovementRecordedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMovementRecorded, data), nil
}

// NewLowStockScanTask constructs the periodic scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLowStockScan, nil)
}

// NewIdempotencyCleanupTask constructs the periodic key-pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}

// KeyCleaner abstracts the idempotency store's retention sweep.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob drops idempotency keys past their retention window.
type IdempotencyCleanupJob struct {
	cleaner   KeyCleaner
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleanupJob constructs the cleanup job.
func NewIdempotencyCleanupJob(cleaner KeyCleaner, retention time.Duration, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{cleaner: cleaner, retention: retention, logger: logger}
}

// Handle processes TaskTypeIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if err := j.cleaner.Cleanup(ctx, j.retention); err != nil {
		return err
	}
	j.logger.Info("idempotency cleanup finished", slog.Duration("retention", j.retention))
	return nil
}

// MovementWatchJob reacts to committed movements; it flags stores whose
// stock dropped below the configured threshold.
type MovementWatchJob struct {
	threshold int64
	logger    *slog.Logger
}

// NewMovementWatchJob constructs the watcher.
func NewMovementWatchJob(threshold int64, logger *slog.Logger) *MovementWatchJob {
	return &MovementWatchJob{threshold: threshold, logger: logger}
}

// Handle processes TaskTypeMovementRecorded tasks.
func (j *MovementWatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload MovementRecordedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ResultingQuantity < j.threshold {
		j.logger.Warn("stock below threshold after movement",
			slog.String("sku", payload.SKU),
			slog.String("store_id", payload.StoreID),
			slog.Int64("quantity", payload.ResultingQuantity),
			slog.Int64("threshold", j.threshold))
		return nil
	}
	j.logger.Info("movement processed",
		slog.String("movement_id", payload.MovementID),
		slog.String("type", payload.Type))
	return nil
}
