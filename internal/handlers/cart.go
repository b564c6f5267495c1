package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"event-checkout/internal/middleware"
	"event-checkout/internal/models"
	"event-checkout/internal/services"
)

const maxCartBodyBytes = 1 << 16

// CartHandler handles shopping cart and checkout requests
type CartHandler struct {
	carts    services.CartServiceInterface
	checkout services.CheckoutServiceInterface
	validate *validator.Validate
	log      *zap.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts services.CartServiceInterface, checkout services.CheckoutServiceInterface, validate *validator.Validate, log *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		checkout: checkout,
		validate: validate,
		log:      log.Named("cart"),
	}
}

// AddToCart adds tickets to the caller's cart.
func (h *CartHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var req models.AddToCartRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCartBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, h.log, models.WrapError(models.KindValidation, "invalid request body", err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, h.log, validationError(err))
		return
	}

	item, err := h.carts.AddItem(r.Context(), user.ID, &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeSuccess(w, http.StatusCreated, item, "ticket added to cart")
}

// GetCart returns the caller's cart, newest items first.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	cart, err := h.carts.GetCart(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeSuccess(w, http.StatusOK, cart, "")
}

// RemoveFromCart deletes one item from the caller's cart.
func (h *CartHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	itemID := chi.URLParam(r, "itemID")

	if err := h.validate.Var(itemID, "required,uuid"); err != nil {
		writeError(w, h.log, models.WrapError(models.KindValidation, "invalid cart item id", err))
		return
	}

	if err := h.carts.RemoveItem(r.Context(), user.ID, itemID); err != nil {
		writeError(w, h.log, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil, "item removed from cart")
}

type checkoutResponse struct {
	OrderID     string `json:"order_id"`
	Reference   string `json:"reference"`
	Total       int64  `json:"total"`
	RedirectURL string `json:"redirect_url"`
}

// Checkout turns the caller's cart into an order and returns the gateway
// page to pay on.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	result, err := h.checkout.Checkout(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.log.Info("checkout started",
		zap.String("user_id", user.ID),
		zap.String("order_id", result.OrderID),
		zap.String("reference", result.Reference),
	)
	writeSuccess(w, http.StatusOK, checkoutResponse{
		OrderID:     result.OrderID,
		Reference:   result.Reference,
		Total:       result.Total,
		RedirectURL: result.RedirectURL,
	}, "redirect to complete payment")
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.WrapError(models.KindValidation, "invalid request", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return models.WrapError(models.KindValidation, strings.Join(problems, "; "), err)
}
