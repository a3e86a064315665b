package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pawmart/pawmart/internal/inventory"
)

// TaskStockReconcile recomputes cached variant quantities from the movement
// ledger. Scheduled nightly; safe to run ad hoc.
const TaskStockReconcile = "inventory:reconcile"

// NewStockReconcileTask constructs the reconcile task.
func NewStockReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskStockReconcile, nil)
}

// StockReconcileJob runs the ledger reconciliation sweep.
type StockReconcileJob struct {
	Service *inventory.Service
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewStockReconcileJob initialises the reconcile handler.
func NewStockReconcileJob(service *inventory.Service, logger *slog.Logger) *StockReconcileJob {
	return &StockReconcileJob{
		Service: service,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep over all live variants.
func (j *StockReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("stock reconcile: handler not configured")
	}
	start := j.clock()
	report, err := j.Service.ReconcileAll(ctx)
	if err != nil {
		j.Logger.Error("stock reconcile", slog.Any("error", err))
		return err
	}
	j.Logger.Info("stock reconcile finished",
		slog.Int("checked", report.Checked),
		slog.Int("fixed", report.Fixed),
		slog.Duration("took", j.clock().Sub(start)))
	return nil
}
