package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// CheckoutResult is returned to the buyer after checkout.
type CheckoutResult struct {
	OrderID     string `json:"order_id"`
	Reference   string `json:"reference"`
	Total       int64  `json:"total"`
	RedirectURL string `json:"redirect_url"`
}

// CheckoutService turns a cart into an order with reserved stock and a
// pending payment.
type CheckoutService struct {
	db          Store
	users       UserRepository
	carts       CartRepository
	tickets     TicketRepository
	orders      OrderRepository
	payments    PaymentRepository
	gateway     PaymentGateway
	callbackURL string
	log         *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	db Store,
	users UserRepository,
	carts CartRepository,
	tickets TicketRepository,
	orders OrderRepository,
	payments PaymentRepository,
	gateway PaymentGateway,
	callbackURL string,
	log *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		db:          db,
		users:       users,
		carts:       carts,
		tickets:     tickets,
		orders:      orders,
		payments:    payments,
		gateway:     gateway,
		callbackURL: callbackURL,
		log:         log.Named("checkout"),
	}
}

// Checkout prices the cart from live ticket rows, opens a gateway session
// and then, in one transaction, writes the order, its items, the stock
// reservations and the pending payment. If the transaction fails the
// gateway session is left unused; settlement ignores unknown references.
func (s *CheckoutService) Checkout(ctx context.Context, userID string) (*CheckoutResult, error) {
	user, err := s.users.GetByID(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	lines, err := s.carts.ListLines(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("checkout: %w", models.ErrCartEmpty)
	}

	total := models.NewCartView(lines).Total
	if total <= 0 {
		return nil, fmt.Errorf("checkout: %w: cart total must be positive", models.ErrInvalidInput)
	}

	session, err := s.gateway.InitializeTransaction(ctx, &InitializeRequest{
		Email:       user.Email,
		Amount:      total,
		CallbackURL: s.callbackURL,
		Metadata:    map[string]string{"user_id": userID},
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	order := &models.Order{
		UserID:      userID,
		TotalAmount: total,
		Status:      models.OrderOngoing,
	}

	err = s.db.WithinTx(ctx, func(ctx context.Context, tx database.Querier) error {
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return err
		}

		written, err := s.orders.CreateItems(ctx, tx, order.ID, lines)
		if err != nil {
			return err
		}
		if written != int64(len(lines)) {
			return fmt.Errorf("%w: wrote %d of %d", models.ErrItemCountMismatch, written, len(lines))
		}

		for _, line := range lines {
			if err := s.tickets.Reserve(ctx, tx, line.TicketID, line.Quantity); err != nil {
				return err
			}
		}

		return s.payments.Create(ctx, tx, &models.Payment{
			OrderID:      order.ID,
			Amount:       total,
			TxnReference: session.Reference,
			Status:       models.PaymentPending,
			Provider:     models.ProviderPaystack,
		})
	})
	if err != nil {
		s.log.Warn("checkout rolled back after gateway session was opened",
			zap.String("user_id", userID),
			zap.String("reference", session.Reference),
			zap.Error(err))
		return nil, fmt.Errorf("checkout: %w", err)
	}

	s.log.Info("checkout created",
		zap.String("user_id", userID),
		zap.String("order_id", order.ID),
		zap.String("reference", session.Reference),
		zap.Int64("total", total))

	return &CheckoutResult{
		OrderID:     order.ID,
		Reference:   session.Reference,
		Total:       total,
		RedirectURL: session.AuthorizationURL,
	}, nil
}
