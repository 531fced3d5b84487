package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fabrica-erp/fabrica-erp/internal/orders"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCompensationRestore retries stock restoration for a cancelled order
	// whose immediate restoration failed.
	TaskCompensationRestore = "compensation:restore"
	// TaskReconcileSweep re-drives reconciliations that stayed pending, the
	// safety net behind per-failure retry tasks.
	TaskReconcileSweep = "compensation:sweep"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// CompensationRestorePayload identifies one pending reconciliation.
type CompensationRestorePayload struct {
	ReconciliationID int64 `json:"reconciliation_id"`
	OrderID          int64 `json:"order_id"`
}

// NewCompensationRestoreTask constructs the retry task for one failed
// restoration. Asynq's own retry with backoff handles repeated failures.
func NewCompensationRestoreTask(payload CompensationRestorePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCompensationRestore, body,
		asynq.Queue(QueueDefault), asynq.MaxRetry(10), asynq.Timeout(time.Minute)), nil
}

// NewReconcileSweepTask constructs the scheduled sweep task.
func NewReconcileSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReconcileSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

// NewCompensationRestoreHandler returns the handler that replays one failed
// restoration through the order service.
func NewCompensationRestoreHandler(svc *orders.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CompensationRestorePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("retrying stock restoration",
			"reconciliation_id", payload.ReconciliationID, "order_id", payload.OrderID)
		return svc.Reconcile(ctx, payload.ReconciliationID, shared.ReconcilerActor())
	}
}

// NewReconcileSweepHandler returns the handler for the scheduled sweep.
func NewReconcileSweepHandler(svc *orders.Service, olderThan time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return svc.ReconcilePending(ctx, olderThan)
	}
}

// NewIdempotencyCleanupTask constructs the scheduled key-pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

// NewIdempotencyCleanupHandler prunes idempotency keys past retention.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return store.Cleanup(ctx, retention)
	}
}

// Client submits jobs to the queue. It satisfies orders.CompensationQueue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueRestore queues a restoration retry for the reconciliation.
func (c *Client) EnqueueRestore(ctx context.Context, reconciliationID, orderID int64) error {
	task, err := NewCompensationRestoreTask(CompensationRestorePayload{
		ReconciliationID: reconciliationID,
		OrderID:          orderID,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
