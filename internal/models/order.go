package models

import "time"

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderOngoing   OrderStatus = "ONGOING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order is created at checkout with a total fixed from the cart snapshot.
type Order struct {
	ID          string      `json:"id" db:"id"`
	UserID      string      `json:"user_id" db:"user_id"`
	TotalAmount int64       `json:"total_amount" db:"total_amount"` // minor units
	Status      OrderStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// OrderItem is an immutable copy of a cart line taken at checkout.
type OrderItem struct {
	ID        string    `json:"id" db:"id"`
	OrderID   string    `json:"order_id" db:"order_id"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsValid checks if the order status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderOngoing, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next. Orders only move
// forward out of ONGOING.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderOngoing && (next == OrderCompleted || next == OrderCancelled)
}
