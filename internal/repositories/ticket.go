package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// TicketRepository owns ticket stock.
type TicketRepository struct{}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{}
}

// GetByID loads a ticket with its current stock.
func (r *TicketRepository) GetByID(ctx context.Context, q database.Querier, id string) (*models.Ticket, error) {
	query := `
		SELECT id, event_id, name, price, available_quantity, created_at, updated_at
		FROM tickets
		WHERE id = $1`

	ticket := &models.Ticket{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.EventID,
		&ticket.Name,
		&ticket.Price,
		&ticket.AvailableQuantity,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

// Reserve takes quantity from stock in one conditional statement. When the
// row does not hold enough stock nothing changes and ErrInsufficientStock
// is returned; callers must abort their transaction. Two checkouts locking
// the same tickets in opposite order can deadlock, and Postgres aborts one
// of them; that loser gets ErrStockContended.
func (r *TicketRepository) Reserve(ctx context.Context, q database.Querier, id string, quantity int) error {
	query := `
		UPDATE tickets
		SET available_quantity = available_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND available_quantity >= $2`

	result, err := q.ExecContext(ctx, query, id, quantity)
	if isLockConflict(err) {
		return fmt.Errorf("reserve ticket %s: %w: %v", id, models.ErrStockContended, err)
	}
	if err != nil {
		return fmt.Errorf("failed to reserve ticket %s: %w", id, err)
	}
	if err := expectOneRow(result, models.ErrInsufficientStock); err != nil {
		return fmt.Errorf("reserve ticket %s: %w", id, err)
	}
	return nil
}

// Restore gives quantity back to stock.
func (r *TicketRepository) Restore(ctx context.Context, q database.Querier, id string, quantity int) error {
	query := `
		UPDATE tickets
		SET available_quantity = available_quantity + $2, updated_at = NOW()
		WHERE id = $1`

	result, err := q.ExecContext(ctx, query, id, quantity)
	if err != nil {
		return fmt.Errorf("failed to restore ticket %s: %w", id, err)
	}
	return expectOneRow(result, models.ErrTicketNotFound)
}
