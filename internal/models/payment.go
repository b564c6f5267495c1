package models

import "time"

// PaymentStatus represents the settlement state of a payment
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentFailed     PaymentStatus = "FAILED"
)

// ProviderPaystack is the only gateway payments are opened with.
const ProviderPaystack = "paystack"

// Payment tracks one gateway transaction for an order. TxnReference is
// unique and is the idempotency key for settlement.
type Payment struct {
	ID             string        `json:"id" db:"id"`
	OrderID        string        `json:"order_id" db:"order_id"`
	Amount         int64         `json:"amount" db:"amount"`
	TxnReference   string        `json:"txn_reference" db:"txn_reference"`
	Status         PaymentStatus `json:"status" db:"status"`
	Provider       string        `json:"provider" db:"provider"`
	PaymentChannel *string       `json:"payment_channel,omitempty" db:"payment_channel"`
	Currency       *string       `json:"currency,omitempty" db:"currency"`
	PaidAt         *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the payment can no longer change.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSuccessful || s == PaymentFailed
}

// PaymentContext is a payment joined with what settlement needs to touch:
// the owning order and the buyer.
type PaymentContext struct {
	Payment     Payment
	OrderStatus OrderStatus
	UserID      string
	Email       string
}

// Settlement carries gateway-confirmed details written on success.
type Settlement struct {
	Channel  string
	Currency string
	Provider string
	PaidAt   time.Time
}
