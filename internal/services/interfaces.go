package services

import (
	"context"
	"time"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// Store is the database handle services run queries and transactions on.
// *database.DB satisfies it.
type Store interface {
	database.Querier
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.Querier) error) error
}

// CartRepository defines cart persistence.
type CartRepository interface {
	UpsertCart(ctx context.Context, q database.Querier, userID string) (string, error)
	AddItem(ctx context.Context, q database.Querier, cartID, ticketID string, quantity int) (*models.CartItem, error)
	ListLines(ctx context.Context, q database.Querier, userID string) ([]*models.CartLine, error)
	RemoveItem(ctx context.Context, q database.Querier, userID, itemID string) error
	ClearItems(ctx context.Context, q database.Querier, userID string) (int64, error)
}

// TicketRepository defines the inventory store.
type TicketRepository interface {
	GetByID(ctx context.Context, q database.Querier, id string) (*models.Ticket, error)
	Reserve(ctx context.Context, q database.Querier, id string, quantity int) error
	Restore(ctx context.Context, q database.Querier, id string, quantity int) error
}

// OrderRepository defines order persistence.
type OrderRepository interface {
	Create(ctx context.Context, q database.Querier, order *models.Order) error
	CreateItems(ctx context.Context, q database.Querier, orderID string, lines []*models.CartLine) (int64, error)
	ListItems(ctx context.Context, q database.Querier, orderID string) ([]*models.OrderItem, error)
	Transition(ctx context.Context, q database.Querier, id string, status models.OrderStatus) error
}

// PaymentRepository defines payment persistence.
type PaymentRepository interface {
	Create(ctx context.Context, q database.Querier, payment *models.Payment) error
	GetContextByReference(ctx context.Context, q database.Querier, reference string) (*models.PaymentContext, error)
	MarkSuccessful(ctx context.Context, q database.Querier, id string, s models.Settlement) error
	MarkFailed(ctx context.Context, q database.Querier, id string) error
	ClaimStale(ctx context.Context, q database.Querier, cutoff time.Time, limit int, lease time.Duration) ([]*models.Payment, error)
}

// UserRepository defines user lookups.
type UserRepository interface {
	GetByID(ctx context.Context, q database.Querier, id string) (*models.User, error)
}

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req *InitializeRequest) (*InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*Verification, error)
}

// Notifier hands jobs to the asynchronous email pipeline.
type Notifier interface {
	EnqueueOrderConfirmation(ctx context.Context, n *models.OrderConfirmation) error
}

// EventPublisher emits order lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, evt *models.OrderEvent) error
}

// CartServiceInterface is what the HTTP layer needs from carts.
type CartServiceInterface interface {
	AddItem(ctx context.Context, userID string, req *models.AddToCartRequest) (*models.CartItem, error)
	GetCart(ctx context.Context, userID string) (*models.CartView, error)
	RemoveItem(ctx context.Context, userID, itemID string) error
}

// CheckoutServiceInterface starts payment for a cart.
type CheckoutServiceInterface interface {
	Checkout(ctx context.Context, userID string) (*CheckoutResult, error)
}

// SettlementServiceInterface processes gateway webhooks.
type SettlementServiceInterface interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookOutcome, error)
}
