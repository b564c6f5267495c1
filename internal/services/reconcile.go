package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"event-checkout/internal/config"
	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// SweepLockKey guards the reconciliation pass across processes.
const SweepLockKey = "locks:reconcile:payments"

// Locker provides a cross-process mutex with a lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// SweepReport counts what one pass did.
type SweepReport struct {
	Claimed       int `json:"claimed"`
	Cancelled     int `json:"cancelled"`
	PaidAtGateway int `json:"paid_at_gateway"`
	Skipped       int `json:"skipped"`
	Errors        int `json:"errors"`
}

// ReconcileService closes payments that never received a webhook.
type ReconcileService struct {
	db       Store
	orders   OrderRepository
	payments PaymentRepository
	tickets  TicketRepository
	gateway  PaymentGateway
	events   EventPublisher
	locker   Locker
	cfg      config.ReconcileConfig
	now      func() time.Time
	log      *zap.Logger
	bg       background
}

// NewReconcileService creates the sweeper. locker may be nil when a single
// worker runs the sweep.
func NewReconcileService(
	db Store,
	orders OrderRepository,
	payments PaymentRepository,
	tickets TicketRepository,
	gateway PaymentGateway,
	events EventPublisher,
	locker Locker,
	cfg config.ReconcileConfig,
	log *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		db:       db,
		orders:   orders,
		payments: payments,
		tickets:  tickets,
		gateway:  gateway,
		events:   events,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
		log:      log.Named("reconcile"),
	}
}

type sweepResult int

const (
	resultCancelled sweepResult = iota
	resultPaidAtGateway
	resultSkipped
)

// Sweep claims PENDING payments older than the staleness threshold and asks
// the gateway about each. Payments the gateway does not report as paid are
// failed and their orders cancelled. Payments the gateway reports as paid
// are left for the webhook. One bad payment does not stop the pass.
func (s *ReconcileService) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, SweepLockKey, s.cfg.LockTTL)
		if err != nil {
			return report, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			s.log.Info("sweep already running elsewhere, skipping")
			return report, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	cutoff := s.now().Add(-s.cfg.StaleAfter)
	claimed, err := s.payments.ClaimStale(ctx, s.db, cutoff, s.cfg.BatchSize, s.cfg.ClaimLease)
	if err != nil {
		return report, fmt.Errorf("claim stale payments: %w", err)
	}
	report.Claimed = len(claimed)

	for _, payment := range claimed {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result, err := s.reconcileOne(ctx, payment)
		if err != nil {
			report.Errors++
			s.log.Error("failed to reconcile payment",
				zap.String("payment_id", payment.ID),
				zap.String("reference", payment.TxnReference),
				zap.Error(err))
			continue
		}

		switch result {
		case resultCancelled:
			report.Cancelled++
		case resultPaidAtGateway:
			report.PaidAtGateway++
		case resultSkipped:
			report.Skipped++
		}
	}

	s.log.Info("sweep finished",
		zap.Int("claimed", report.Claimed),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("paid_at_gateway", report.PaidAtGateway),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors))

	return report, nil
}

func (s *ReconcileService) reconcileOne(ctx context.Context, payment *models.Payment) (sweepResult, error) {
	log := s.log.With(zap.String("payment_id", payment.ID), zap.String("reference", payment.TxnReference))

	v, err := s.gateway.VerifyTransaction(ctx, payment.TxnReference)
	switch {
	case errors.Is(err, models.ErrGatewayNotFound):
		log.Info("gateway has no record of transaction, closing payment")
	case err != nil:
		return 0, err
	case v.Successful():
		// Settlement stays with the webhook path.
		log.Warn("gateway reports stale payment as paid; leaving it pending for the webhook",
			zap.Int64("amount", payment.Amount),
			zap.Int64("gateway_amount", v.Amount))
		return resultPaidAtGateway, nil
	default:
		log.Info("gateway reports transaction not paid", zap.String("gateway_status", v.Status))
	}

	err = s.db.WithinTx(ctx, func(ctx context.Context, tx database.Querier) error {
		if err := s.payments.MarkFailed(ctx, tx, payment.ID); err != nil {
			return err
		}
		if err := s.orders.Transition(ctx, tx, payment.OrderID, models.OrderCancelled); err != nil {
			return err
		}
		if !s.cfg.RestoreInventory {
			return nil
		}
		return s.restoreStock(ctx, tx, payment.OrderID)
	})
	switch {
	case errors.Is(err, models.ErrPaymentNotPending):
		log.Info("payment left PENDING before it could be closed")
		return resultSkipped, nil
	case errors.Is(err, models.ErrOrderNotOngoing):
		log.Error("pending payment belongs to a closed order; needs manual review",
			zap.String("order_id", payment.OrderID))
		return resultSkipped, nil
	case err != nil:
		return 0, fmt.Errorf("close payment: %w", err)
	}

	log.Info("stale payment closed", zap.String("order_id", payment.OrderID))

	evt := &models.OrderEvent{
		ID:         uuid.NewString(),
		Type:       models.EventOrderCancelled,
		OrderID:    payment.OrderID,
		Reference:  payment.TxnReference,
		Amount:     payment.Amount,
		Status:     models.OrderCancelled,
		OccurredAt: s.now().UTC(),
	}
	s.bg.Go(ctx, func(ctx context.Context) {
		if err := s.events.Publish(ctx, evt); err != nil {
			log.Error("failed to publish order event", zap.String("event_type", evt.Type), zap.Error(err))
		}
	})

	return resultCancelled, nil
}

// Wait blocks until in-flight order events have been handed to the publisher.
func (s *ReconcileService) Wait() {
	s.bg.Wait()
}

func (s *ReconcileService) restoreStock(ctx context.Context, tx database.Querier, orderID string) error {
	items, err := s.orders.ListItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.tickets.Restore(ctx, tx, item.TicketID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
