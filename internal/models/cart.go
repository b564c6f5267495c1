package models

import "time"

// Cart belongs to exactly one user.
type Cart struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CartItem is a pending line in a cart.
type CartItem struct {
	ID        string    `json:"id" db:"id"`
	CartID    string    `json:"cart_id" db:"cart_id"`
	TicketID  string    `json:"ticket_id" db:"ticket_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CartLine is a cart item joined with the live ticket price.
type CartLine struct {
	ItemID    string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Price     int64     `json:"price"`
	Subtotal  int64     `json:"subtotal"`
	CreatedAt time.Time `json:"created_at"`
}

// CartView is what a user sees when listing their cart.
type CartView struct {
	Items []*CartLine `json:"items"`
	Total int64       `json:"total"`
}

// AddToCartRequest is the body of an add-to-cart call.
type AddToCartRequest struct {
	TicketID string `json:"ticket_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=100"`
}

// NewCartView prices lines and sums them.
func NewCartView(lines []*CartLine) *CartView {
	view := &CartView{Items: lines}
	if view.Items == nil {
		view.Items = []*CartLine{}
	}
	for _, line := range view.Items {
		line.Subtotal = line.Price * int64(line.Quantity)
		view.Total += line.Subtotal
	}
	return view
}
