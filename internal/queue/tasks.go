package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"event-checkout/internal/config"
	"event-checkout/internal/models"
)

// Task type names registered on the worker mux.
const (
	TypeOrderConfirmation = "email:order-confirmation"
	TypeReconcilePayments = "payments:reconcile"
)

const orderConfirmationMaxRetry = 5

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier puts order confirmations on the email queue.
type Notifier struct {
	client enqueuer
	queue  string
}

// NewNotifier wraps an asynq client. *asynq.Client satisfies enqueuer.
func NewNotifier(client enqueuer, cfg config.QueueConfig) *Notifier {
	return &Notifier{client: client, queue: cfg.EmailQueue}
}

// EnqueueOrderConfirmation schedules the confirmation email. Each order gets
// at most one job; a repeat enqueue for the same order is a no-op.
func (n *Notifier) EnqueueOrderConfirmation(ctx context.Context, c *models.OrderConfirmation) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal order confirmation: %w", err)
	}

	task := asynq.NewTask(TypeOrderConfirmation, payload)
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.Queue(n.queue),
		asynq.MaxRetry(orderConfirmationMaxRetry),
		asynq.TaskID("order-confirmation:"+c.OrderID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue order confirmation: %w", err)
	}
	return nil
}

type schedulerRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterReconcile schedules the stale payment sweep on the maintenance queue.
// Unique keeps a backlog from stacking overlapping sweeps.
func RegisterReconcile(s schedulerRegistrar, queueCfg config.QueueConfig, cfg config.ReconcileConfig) (string, error) {
	task := asynq.NewTask(TypeReconcilePayments, nil)
	id, err := s.Register("@every "+cfg.Interval.String(), task,
		asynq.Queue(queueCfg.MaintenanceQueue),
		asynq.MaxRetry(0),
		asynq.Unique(cfg.Interval),
	)
	if err != nil {
		return "", fmt.Errorf("failed to register reconcile task: %w", err)
	}
	return id, nil
}
