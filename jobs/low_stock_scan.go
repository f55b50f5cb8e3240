package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/retailcore/stockledger/internal/inventory"
)

// InventoryLister abstracts the read side used by the scan.
type InventoryLister interface {
	ListAll(ctx context.Context) ([]inventory.Record, error)
}

// LowStockScanJob walks every inventory record and reports the ones below
// the threshold. Scheduled via cron from the worker.
type LowStockScanJob struct {
	lister    InventoryLister
	threshold int64
	logger    *slog.Logger
}

// NewLowStockScanJob constructs the scan job.
func NewLowStockScanJob(lister InventoryLister, threshold int64, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{lister: lister, threshold: threshold, logger: logger}
}

// Handle processes TaskTypeLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	records, err := j.lister.ListAll(ctx)
	if err != nil {
		return err
	}
	flagged := 0
	for _, rec := range records {
		if rec.Quantity < j.threshold {
			flagged++
			j.logger.Warn("low stock",
				slog.String("sku", rec.SKU),
				slog.String("store_id", rec.StoreID),
				slog.Int64("quantity", rec.Quantity))
		}
	}
	j.logger.Info("low stock scan finished",
		slog.Int("scanned", len(records)),
		slog.Int("flagged", flagged))
	return nil
}
