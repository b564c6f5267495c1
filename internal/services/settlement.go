package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// WebhookOutcome says what a verified webhook did. Every outcome is
// acknowledged to the gateway.
type WebhookOutcome string

const (
	OutcomeSettled          WebhookOutcome = "settled"
	OutcomeAlreadySettled   WebhookOutcome = "already_settled"
	OutcomeIgnored          WebhookOutcome = "ignored"
	OutcomeUnknownReference WebhookOutcome = "unknown_reference"
	OutcomeAmountMismatch   WebhookOutcome = "amount_mismatch"
	OutcomePaymentClosed    WebhookOutcome = "payment_closed"
)

// SettlementService applies gateway webhooks to payments and orders.
type SettlementService struct {
	db       Store
	carts    CartRepository
	orders   OrderRepository
	payments PaymentRepository
	notifier Notifier
	events   EventPublisher
	secret   string
	now      func() time.Time
	log      *zap.Logger
	bg       background
}

// NewSettlementService creates a settlement service that authenticates
// webhooks with secret.
func NewSettlementService(
	db Store,
	carts CartRepository,
	orders OrderRepository,
	payments PaymentRepository,
	notifier Notifier,
	events EventPublisher,
	secret string,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		db:       db,
		carts:    carts,
		orders:   orders,
		payments: payments,
		notifier: notifier,
		events:   events,
		secret:   secret,
		now:      time.Now,
		log:      log.Named("settlement"),
	}
}

// HandleWebhook authenticates body against signature and settles the
// payment it reports. Signature and payload errors are returned so the
// caller can reject the request; everything after that is an outcome.
func (s *SettlementService) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookOutcome, error) {
	if !VerifyWebhookSignature(s.secret, body, signature) {
		s.log.Warn("webhook rejected: signature mismatch", zap.ByteString("payload", body))
		return "", models.ErrInvalidSignature
	}

	evt, err := models.ParseWebhookEvent(body)
	if err != nil {
		s.log.Warn("webhook rejected", zap.Error(err), zap.ByteString("payload", body))
		return "", err
	}

	switch e := evt.(type) {
	case models.ChargeSuccessEvent:
		return s.settleCharge(ctx, e.Data, body)
	default:
		s.log.Warn("webhook rejected: no handler", zap.String("event", evt.EventName()))
		return "", fmt.Errorf("%w: %s", models.ErrUnknownEvent, evt.EventName())
	}
}

func (s *SettlementService) settleCharge(ctx context.Context, data models.ChargeData, body []byte) (WebhookOutcome, error) {
	log := s.log.With(zap.String("reference", data.Reference))

	if data.Status != models.ChargeStatusSuccess {
		log.Info("charge not successful, nothing to settle", zap.String("status", data.Status))
		return OutcomeIgnored, nil
	}

	pc, err := s.payments.GetContextByReference(ctx, s.db, data.Reference)
	if errors.Is(err, models.ErrPaymentNotFound) {
		log.Warn("webhook for unknown payment reference", zap.ByteString("payload", body))
		return OutcomeUnknownReference, nil
	}
	if err != nil {
		return "", fmt.Errorf("settle charge: %w", err)
	}
	payment := pc.Payment

	switch payment.Status {
	case models.PaymentSuccessful:
		log.Info("payment already settled")
		return OutcomeAlreadySettled, nil
	case models.PaymentFailed:
		log.Error("charge captured for a payment already closed as failed; needs manual review",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", payment.OrderID),
			zap.Int64("amount", data.Amount))
		return OutcomePaymentClosed, nil
	}

	paidAt, hasPaidAt := data.PaidTime()
	if data.Amount != payment.Amount || !hasPaidAt {
		log.Warn("charge does not match payment",
			zap.String("payment_id", payment.ID),
			zap.Int64("expected_amount", payment.Amount),
			zap.Int64("charged_amount", data.Amount),
			zap.Bool("paid_at_present", hasPaidAt),
			zap.ByteString("payload", body))
		return OutcomeAmountMismatch, nil
	}

	settlement := models.Settlement{
		Channel:  data.Channel,
		Currency: data.Currency,
		Provider: models.ProviderPaystack,
		PaidAt:   paidAt,
	}

	err = s.db.WithinTx(ctx, func(ctx context.Context, tx database.Querier) error {
		if err := s.payments.MarkSuccessful(ctx, tx, payment.ID, settlement); err != nil {
			return err
		}
		if err := s.orders.Transition(ctx, tx, payment.OrderID, models.OrderCompleted); err != nil {
			return err
		}
		_, err := s.carts.ClearItems(ctx, tx, pc.UserID)
		return err
	})
	switch {
	case errors.Is(err, models.ErrPaymentNotPending):
		log.Info("payment settled concurrently")
		return OutcomeAlreadySettled, nil
	case errors.Is(err, models.ErrOrderNotOngoing):
		log.Error("pending payment belongs to a closed order; needs manual review",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", payment.OrderID))
		return OutcomePaymentClosed, nil
	case err != nil:
		return "", fmt.Errorf("settle charge: %w", err)
	}

	log.Info("payment settled",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.Int64("amount", payment.Amount))

	s.afterSettle(ctx, pc, settlement)
	return OutcomeSettled, nil
}

// afterSettle runs the best-effort side effects of a committed settlement.
// A redelivered webhook finds the payment settled and never gets here again,
// so the confirmation is enqueued even if the request has been cancelled.
// The order event is published in the background.
func (s *SettlementService) afterSettle(ctx context.Context, pc *models.PaymentContext, settlement models.Settlement) {
	payment := pc.Payment

	enqueueCtx, cancel := afterCommit(ctx)
	defer cancel()

	confirmation := models.NewOrderConfirmation(payment.OrderID, pc.Email, payment.Amount, settlement)
	if err := s.notifier.EnqueueOrderConfirmation(enqueueCtx, confirmation); err != nil {
		s.log.Error("failed to enqueue order confirmation",
			zap.String("order_id", payment.OrderID),
			zap.Error(err))
	}

	evt := &models.OrderEvent{
		ID:         uuid.NewString(),
		Type:       models.EventOrderCompleted,
		OrderID:    payment.OrderID,
		UserID:     pc.UserID,
		Reference:  payment.TxnReference,
		Amount:     payment.Amount,
		Status:     models.OrderCompleted,
		OccurredAt: s.now().UTC(),
	}
	s.bg.Go(ctx, func(ctx context.Context) {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.log.Error("failed to publish order event",
				zap.String("order_id", payment.OrderID),
				zap.String("event_type", evt.Type),
				zap.Error(err))
		}
	})
}

// Wait blocks until in-flight order events have been handed to the publisher.
func (s *SettlementService) Wait() {
	s.bg.Wait()
}
