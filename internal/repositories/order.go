package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// OrderRepository handles order data operations
type OrderRepository struct{}

// NewOrderRepository creates a new order repository
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

// Create inserts order and fills in its id and timestamps.
func (r *OrderRepository) Create(ctx context.Context, q database.Querier, order *models.Order) error {
	id, err := newID()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (id, user_id, total_amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err = q.QueryRowContext(ctx, query, id, order.UserID, order.TotalAmount, order.Status).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// CreateItems snapshots cart lines as order items in one statement and
// returns how many rows were written.
func (r *OrderRepository) CreateItems(ctx context.Context, q database.Querier, orderID string, lines []*models.CartLine) (int64, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO order_items (id, order_id, ticket_id, quantity) VALUES ")
	args := make([]any, 0, len(lines)*4)
	for i, line := range lines {
		id, err := newID()
		if err != nil {
			return 0, err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, id, orderID, line.TicketID, line.Quantity)
	}

	result, err := q.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to create order items: %w", err)
	}
	return result.RowsAffected()
}

// GetByID loads an order.
func (r *OrderRepository) GetByID(ctx context.Context, q database.Querier, id string) (*models.Order, error) {
	query := `
		SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1`

	order := &models.Order{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListItems returns the items of an order.
func (r *OrderRepository) ListItems(ctx context.Context, q database.Querier, orderID string) ([]*models.OrderItem, error) {
	query := `
		SELECT id, order_id, ticket_id, quantity, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.TicketID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Transition moves an ONGOING order to status. An order that has already
// left ONGOING is not touched and ErrOrderNotOngoing is returned.
func (r *OrderRepository) Transition(ctx context.Context, q database.Querier, id string, status models.OrderStatus) error {
	if !models.OrderOngoing.CanTransitionTo(status) {
		return fmt.Errorf("%w: cannot move order to %s", models.ErrInvalidInput, status)
	}

	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	result, err := q.ExecContext(ctx, query, id, status, models.OrderOngoing)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectOneRow(result, models.ErrOrderNotOngoing)
}
