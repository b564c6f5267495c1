package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// PaymentRepository handles payment rows. Every status change is a
// compare-and-set on PENDING so webhook and sweep cannot both win.
type PaymentRepository struct{}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// Create inserts a PENDING payment. A reused reference is ErrDuplicateEntry.
func (r *PaymentRepository) Create(ctx context.Context, q database.Querier, payment *models.Payment) error {
	id, err := newID()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (id, order_id, amount, txn_reference, status, provider)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err = q.QueryRowContext(ctx, query,
		id,
		payment.OrderID,
		payment.Amount,
		payment.TxnReference,
		payment.Status,
		payment.Provider,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("payment reference %s: %w", payment.TxnReference, models.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetContextByReference loads a payment together with its order status and
// the buyer's email.
func (r *PaymentRepository) GetContextByReference(ctx context.Context, q database.Querier, reference string) (*models.PaymentContext, error) {
	query := `
		SELECT p.id, p.order_id, p.amount, p.txn_reference, p.status, p.provider,
		       p.payment_channel, p.currency, p.paid_at, p.created_at, p.updated_at,
		       o.status, o.user_id, u.email
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		JOIN users u ON u.id = o.user_id
		WHERE p.txn_reference = $1`

	pc := &models.PaymentContext{}
	p := &pc.Payment
	err := q.QueryRowContext(ctx, query, reference).Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.TxnReference,
		&p.Status,
		&p.Provider,
		&p.PaymentChannel,
		&p.Currency,
		&p.PaidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
		&pc.OrderStatus,
		&pc.UserID,
		&pc.Email,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return pc, nil
}

// MarkSuccessful settles a PENDING payment with gateway details.
func (r *PaymentRepository) MarkSuccessful(ctx context.Context, q database.Querier, id string, s models.Settlement) error {
	query := `
		UPDATE payments
		SET status = $2, payment_channel = $3, currency = $4, provider = $5, paid_at = $6,
		    reconcile_claimed_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $7`

	result, err := q.ExecContext(ctx, query,
		id, models.PaymentSuccessful, s.Channel, s.Currency, s.Provider, s.PaidAt, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to settle payment: %w", err)
	}
	return expectOneRow(result, models.ErrPaymentNotPending)
}

// MarkFailed closes a PENDING payment.
func (r *PaymentRepository) MarkFailed(ctx context.Context, q database.Querier, id string) error {
	query := `
		UPDATE payments
		SET status = $2, reconcile_claimed_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3`

	result, err := q.ExecContext(ctx, query, id, models.PaymentFailed, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to fail payment: %w", err)
	}
	return expectOneRow(result, models.ErrPaymentNotPending)
}

// ClaimStale leases up to limit PENDING payments created before cutoff.
// Rows already leased by another sweep are skipped until their lease ends.
func (r *PaymentRepository) ClaimStale(ctx context.Context, q database.Querier, cutoff time.Time, limit int, lease time.Duration) ([]*models.Payment, error) {
	query := `
		UPDATE payments
		SET reconcile_claimed_until = NOW() + ($4 * INTERVAL '1 second')
		WHERE id IN (
			SELECT id FROM payments
			WHERE status = $1
			  AND created_at < $2
			  AND (reconcile_claimed_until IS NULL OR reconcile_claimed_until < NOW())
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, order_id, amount, txn_reference, status, provider, created_at, updated_at`

	rows, err := q.QueryContext(ctx, query, models.PaymentPending, cutoff, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		if err := rows.Scan(
			&p.ID,
			&p.OrderID,
			&p.Amount,
			&p.TxnReference,
			&p.Status,
			&p.Provider,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
