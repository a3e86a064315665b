package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/pawmart/pawmart/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert notifies staff that a variant dropped to or below
	// its threshold.
	TaskLowStockAlert = "inventory:low_stock_alert"
)

// NewLowStockAlertTask constructs the alert task.
func NewLowStockAlertTask(alert inventory.LowStockAlert) (*asynq.Task, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data), nil
}

// LowStockDetected enqueues a low-stock alert. The ledger service calls this
// after a committed decrease, so a full queue must not fail the adjustment;
// the error is logged and swallowed by the caller.
func (c *Client) LowStockDetected(ctx context.Context, alert inventory.LowStockAlert) error {
	task, err := NewLowStockAlertTask(alert)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// LowStockAlertJob handles queued low-stock alerts.
type LowStockAlertJob struct {
	Logger *slog.Logger
}

// Handle logs the alert. Delivery to mail or chat hangs off this single
// point once a channel is picked.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) error {
	var alert inventory.LowStockAlert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return asynq.SkipRetry
	}
	j.Logger.Warn("low stock",
		slog.Int64("variant_id", alert.VariantID),
		slog.String("sku", alert.SKU),
		slog.Int64("stock_quantity", alert.StockQuantity),
		slog.Int64("threshold", alert.Threshold))
	return nil
}
