package models

import "time"

// Ticket is a purchasable ticket tier with finite stock.
// Price is in the currency's minor unit (kobo, cents).
type Ticket struct {
	ID                string    `json:"id" db:"id"`
	EventID           string    `json:"event_id" db:"event_id"`
	Name              string    `json:"name" db:"name"`
	Price             int64     `json:"price" db:"price"`
	AvailableQuantity int       `json:"available_quantity" db:"available_quantity"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// HasStock reports whether quantity could currently be reserved.
func (t *Ticket) HasStock(quantity int) bool {
	return quantity > 0 && t.AvailableQuantity >= quantity
}
