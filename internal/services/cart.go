package services

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// CartService manages a user's cart before checkout.
type CartService struct {
	db      Store
	carts   CartRepository
	tickets TicketRepository
	log     *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(db Store, carts CartRepository, tickets TicketRepository, log *zap.Logger) *CartService {
	return &CartService{
		db:      db,
		carts:   carts,
		tickets: tickets,
		log:     log.Named("cart"),
	}
}

// AddItem adds tickets to the user's cart, creating the cart if needed.
// Stock is only checked here; nothing is held until checkout.
func (s *CartService) AddItem(ctx context.Context, userID string, req *models.AddToCartRequest) (*models.CartItem, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", models.ErrInvalidInput)
	}

	var item *models.CartItem
	err := s.db.WithinTx(ctx, func(ctx context.Context, tx database.Querier) error {
		cartID, err := s.carts.UpsertCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		ticket, err := s.tickets.GetByID(ctx, tx, req.TicketID)
		if err != nil {
			return err
		}
		if !ticket.HasStock(req.Quantity) {
			return fmt.Errorf("%w: %d requested, %d left", models.ErrNotEnoughTickets, req.Quantity, ticket.AvailableQuantity)
		}

		item, err = s.carts.AddItem(ctx, tx, cartID, ticket.ID, req.Quantity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}

	s.log.Debug("cart item added",
		zap.String("user_id", userID),
		zap.String("ticket_id", req.TicketID),
		zap.Int("quantity", item.Quantity))

	return item, nil
}

// GetCart lists the cart newest first with live prices and a total.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.CartView, error) {
	lines, err := s.carts.ListLines(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	slices.Reverse(lines)
	return models.NewCartView(lines), nil
}

// RemoveItem drops one item from the user's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	if err := s.carts.RemoveItem(ctx, s.db, userID, itemID); err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}
