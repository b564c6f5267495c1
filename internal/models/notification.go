package models

import "time"

// NotificationOrderConfirmation is the job type for the post-settlement email.
const NotificationOrderConfirmation = "order-confirmation"

// OrderConfirmation is the payload handed to the email job queue.
type OrderConfirmation struct {
	Type          string `json:"type"`
	OrderID       string `json:"order_id"`
	Date          string `json:"date"`
	Total         int64  `json:"total"`
	Email         string `json:"email"`
	PaymentMethod string `json:"payment_method"`
	Currency      string `json:"currency"`
}

// NewOrderConfirmation formats the confirmation for a settled order.
func NewOrderConfirmation(orderID, email string, total int64, s Settlement) *OrderConfirmation {
	return &OrderConfirmation{
		Type:          NotificationOrderConfirmation,
		OrderID:       orderID,
		Date:          s.PaidAt.Format("Jan 2, 2006"),
		Total:         total,
		Email:         email,
		PaymentMethod: s.Channel,
		Currency:      s.Currency,
	}
}

// Order lifecycle event types published after commit.
const (
	EventOrderCompleted = "order.completed"
	EventOrderCancelled = "order.cancelled"
)

// OrderEvent is a lifecycle notification for downstream consumers.
type OrderEvent struct {
	ID         string      `json:"event_id"`
	Type       string      `json:"event_type"`
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id,omitempty"`
	Reference  string      `json:"txn_reference"`
	Amount     int64       `json:"amount"`
	Status     OrderStatus `json:"status"`
	OccurredAt time.Time   `json:"occurred_at"`
}
