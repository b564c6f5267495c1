package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"event-checkout/internal/models"
	"event-checkout/internal/services"
)

// Mailer delivers rendered emails.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, n *models.OrderConfirmation) error
}

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*services.SweepReport, error)
}

// NewMux routes worker tasks to their handlers.
func NewMux(mailer Mailer, sweeper Sweeper, log *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOrderConfirmation, newOrderConfirmationHandler(mailer, log))
	mux.HandleFunc(TypeReconcilePayments, newReconcileHandler(sweeper, log))
	return mux
}

func newOrderConfirmationHandler(mailer Mailer, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var c models.OrderConfirmation
		if err := json.Unmarshal(t.Payload(), &c); err != nil {
			log.Error("dropping malformed order confirmation", zap.Error(err))
			return fmt.Errorf("decode order confirmation: %v: %w", err, asynq.SkipRetry)
		}
		if c.Email == "" || c.OrderID == "" {
			log.Error("dropping incomplete order confirmation", zap.String("order_id", c.OrderID))
			return fmt.Errorf("incomplete order confirmation: %w", asynq.SkipRetry)
		}

		if err := mailer.SendOrderConfirmation(ctx, &c); err != nil {
			log.Warn("failed to send order confirmation",
				zap.String("order_id", c.OrderID),
				zap.Error(err),
			)
			return err
		}
		return nil
	}
}

func newReconcileHandler(sweeper Sweeper, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		report, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		log.Info("reconcile pass finished",
			zap.Int("claimed", report.Claimed),
			zap.Int("cancelled", report.Cancelled),
			zap.Int("paid_at_gateway", report.PaidAtGateway),
			zap.Int("skipped", report.Skipped),
			zap.Int("errors", report.Errors),
		)
		return nil
	}
}
