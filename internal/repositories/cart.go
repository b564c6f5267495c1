package repositories

import (
	"context"
	"fmt"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// CartRepository handles carts and their items.
type CartRepository struct{}

// NewCartRepository creates a new cart repository
func NewCartRepository() *CartRepository {
	return &CartRepository{}
}

// UpsertCart returns the user's cart id, creating the cart on first use.
func (r *CartRepository) UpsertCart(ctx context.Context, q database.Querier, userID string) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO carts (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING id`

	var cartID string
	if err := q.QueryRowContext(ctx, query, id, userID).Scan(&cartID); err != nil {
		return "", fmt.Errorf("failed to upsert cart: %w", err)
	}
	return cartID, nil
}

// AddItem puts a ticket in the cart. Adding a ticket already in the cart
// increases its quantity.
func (r *CartRepository) AddItem(ctx context.Context, q database.Querier, cartID, ticketID string, quantity int) (*models.CartItem, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO cart_items (id, cart_id, ticket_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, ticket_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING id, cart_id, ticket_id, quantity, created_at`

	item := &models.CartItem{}
	err = q.QueryRowContext(ctx, query, id, cartID, ticketID, quantity).Scan(
		&item.ID,
		&item.CartID,
		&item.TicketID,
		&item.Quantity,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return item, nil
}

// ListLines returns the user's cart items priced from the tickets table,
// oldest first.
func (r *CartRepository) ListLines(ctx context.Context, q database.Querier, userID string) ([]*models.CartLine, error) {
	query := `
		SELECT ci.id, t.id, t.event_id, t.name, ci.quantity, t.price, ci.created_at
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN tickets t ON t.id = ci.ticket_id
		WHERE c.user_id = $1
		ORDER BY ci.created_at ASC, ci.id ASC`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	var lines []*models.CartLine
	for rows.Next() {
		line := &models.CartLine{}
		if err := rows.Scan(
			&line.ItemID,
			&line.TicketID,
			&line.EventID,
			&line.Name,
			&line.Quantity,
			&line.Price,
			&line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// RemoveItem deletes one item from the user's cart.
func (r *CartRepository) RemoveItem(ctx context.Context, q database.Querier, userID, itemID string) error {
	query := `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.cart_id = c.id AND c.user_id = $1 AND ci.id = $2`

	result, err := q.ExecContext(ctx, query, userID, itemID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return expectOneRow(result, models.ErrCartItemNotFound)
}

// ClearItems empties the user's cart and reports how many items went.
func (r *CartRepository) ClearItems(ctx context.Context, q database.Querier, userID string) (int64, error) {
	query := `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.cart_id = c.id AND c.user_id = $1`

	result, err := q.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return result.RowsAffected()
}
