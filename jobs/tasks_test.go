package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/retailcore/stockledger/internal/inventory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMovementWatchJobHandle(t *testing.T) {
	job := NewMovementWatchJob(5, discardLogger())

	task, err := NewMovementRecordedTask(MovementRecordedPayload{
		MovementID:        "m-1",
		SKU:               "SKU1",
		StoreID:           "StoreA",
		Type:              "SALE",
		Quantity:          4,
		ResultingQuantity: 2,
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestMovementWatchJobBadPayload(t *testing.T) {
	job := NewMovementWatchJob(5, discardLogger())

	task := asynq.NewTask(TaskTypeMovementRecorded, []byte("{broken"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type staticLister struct {
	records []inventory.Record
	err     error
}

func (l *staticLister) ListAll(ctx context.Context) ([]inventory.Record, error) {
	return l.records, l.err
}

func TestLowStockScanJobHandle(t *testing.T) {
	lister := &staticLister{records: []inventory.Record{
		{ID: 1, SKU: "SKU1", StoreID: "StoreA", Quantity: 2},
		{ID: 2, SKU: "SKU2", StoreID: "StoreA", Quantity: 50},
	}}
	job := NewLowStockScanJob(lister, 5, discardLogger())
	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
}

func TestLowStockScanJobListerFailure(t *testing.T) {
	lister := &staticLister{err: errors.New("database unavailable")}
	job := NewLowStockScanJob(lister, 5, discardLogger())
	require.Error(t, job.Handle(context.Background(), NewLowStockScanTask()))
}

type staticCleaner struct {
	olderThan time.Duration
	err       error
}

func (c *staticCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	c.olderThan = olderThan
	return c.err
}

func TestIdempotencyCleanupJobHandle(t *testing.T) {
	cleaner := &staticCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, 24*time.Hour, discardLogger())
	require.NoError(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, 24*time.Hour, cleaner.olderThan)
}

func TestIdempotencyCleanupJobFailure(t *testing.T) {
	cleaner := &staticCleaner{err: errors.New("database unavailable")}
	job := NewIdempotencyCleanupJob(cleaner, time.Hour, discardLogger())
	require.Error(t, job.Handle(context.Background(), NewIdempotencyCleanupTask()))
}
