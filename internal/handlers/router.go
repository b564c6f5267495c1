package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"event-checkout/internal/middleware"
)

// RouterDeps is everything the HTTP surface is assembled from.
type RouterDeps struct {
	Auth            *middleware.Authenticator
	CheckoutLimiter *middleware.RateLimiter
	Cart            *CartHandler
	Webhook         *WebhookHandler
	Health          *HealthHandler
	AllowedOrigins  []string
	Log             *zap.Logger
}

// NewRouter wires routes and middleware.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recoverer(d.Log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(d.AllowedOrigins)))
	r.Use(d.Auth.LoadUser)
	r.Use(middleware.RequestLogger(d.Log))

	r.NotFound(middleware.NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler().ServeHTTP)

	r.Get("/healthz", d.Health.Healthz)

	r.Route("/carts", func(r chi.Router) {
		// Authenticated by signature, not by user.
		r.Post("/verify-payment-webhook", d.Webhook.VerifyPayment)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.RequireAuth)

			r.Post("/", d.Cart.AddToCart)
			r.Get("/", d.Cart.GetCart)
			r.Delete("/items/{itemID}", d.Cart.RemoveFromCart)

			r.With(middleware.UserRateLimit(d.CheckoutLimiter)).Post("/checkout", d.Cart.Checkout)
		})
	})

	return r
}
