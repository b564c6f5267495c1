package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"event-checkout/internal/middleware"
	"event-checkout/internal/models"
	"event-checkout/internal/services"
)

const jwtSecret = "handler-test-secret"

type mockCartService struct{ mock.Mock }

func (m *mockCartService) AddItem(ctx context.Context, userID string, req *models.AddToCartRequest) (*models.CartItem, error) {
	args := m.Called(ctx, userID, req)
	item, _ := args.Get(0).(*models.CartItem)
	return item, args.Error(1)
}

func (m *mockCartService) GetCart(ctx context.Context, userID string) (*models.CartView, error) {
	args := m.Called(ctx, userID)
	view, _ := args.Get(0).(*models.CartView)
	return view, args.Error(1)
}

func (m *mockCartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	return m.Called(ctx, userID, itemID).Error(0)
}

type mockCheckoutService struct{ mock.Mock }

func (m *mockCheckoutService) Checkout(ctx context.Context, userID string) (*services.CheckoutResult, error) {
	args := m.Called(ctx, userID)
	result, _ := args.Get(0).(*services.CheckoutResult)
	return result, args.Error(1)
}

type mockSettlementService struct{ mock.Mock }

func (m *mockSettlementService) HandleWebhook(ctx context.Context, body []byte, signature string) (services.WebhookOutcome, error) {
	args := m.Called(ctx, body, signature)
	return args.Get(0).(services.WebhookOutcome), args.Error(1)
}

type mockUserService struct{ mock.Mock }

func (m *mockUserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

type testServer struct {
	router     http.Handler
	carts      *mockCartService
	checkout   *mockCheckoutService
	settlement *mockSettlementService
	token      string
}

func newTestServer(t *testing.T, checkoutLimit int, pingErr error) *testServer {
	t.Helper()
	log := zap.NewNop()

	users := new(mockUserService)
	users.On("GetUser", mock.Anything, "user-1").Return(&models.User{ID: "user-1", Email: "ada@example.com"}, nil)

	limiter := middleware.NewRateLimiter(checkoutLimit, time.Minute)
	t.Cleanup(limiter.Stop)

	ts := &testServer{
		carts:      new(mockCartService),
		checkout:   new(mockCheckoutService),
		settlement: new(mockSettlementService),
	}
	ts.router = NewRouter(RouterDeps{
		Auth:            middleware.NewAuthenticator(jwtSecret, nil, users, log),
		CheckoutLimiter: limiter,
		Cart:            NewCartHandler(ts.carts, ts.checkout, validator.New(), log),
		Webhook:         NewWebhookHandler(ts.settlement, log),
		Health:          NewHealthHandler(stubPinger{err: pingErr}, log),
		Log:             log,
	})

	token, err := middleware.IssueToken(jwtSecret, "user-1", time.Hour)
	require.NoError(t, err)
	ts.token = token
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) authed(method, path, body string) *httptest.ResponseRecorder {
	return ts.do(method, path, body, map[string]string{"Authorization": "Bearer " + ts.token})
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestCartRoutes_RequireAuth(t *testing.T) {
	ts := newTestServer(t, 5, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/carts"},
		{http.MethodGet, "/carts"},
		{http.MethodDelete, "/carts/items/" + uuid.NewString()},
		{http.MethodPost, "/carts/checkout"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rr := ts.do(route.method, route.path, `{}`, nil)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
	ts.carts.AssertNotCalled(t, "GetCart", mock.Anything, mock.Anything)
}

func TestAddToCart(t *testing.T) {
	ticketID := uuid.NewString()

	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantError  string
	}{
		{name: "created", body: fmt.Sprintf(`{"ticket_id":%q,"quantity":2}`, ticketID), wantStatus: http.StatusCreated},
		{name: "zero quantity", body: fmt.Sprintf(`{"ticket_id":%q,"quantity":0}`, ticketID), wantStatus: http.StatusBadRequest, wantError: "validation"},
		{name: "bad ticket id", body: `{"ticket_id":"abc","quantity":1}`, wantStatus: http.StatusBadRequest, wantError: "validation"},
		{name: "unknown field", body: fmt.Sprintf(`{"ticket_id":%q,"quantity":1,"price":1}`, ticketID), wantStatus: http.StatusBadRequest, wantError: "validation"},
		{name: "malformed json", body: `{"ticket_id":`, wantStatus: http.StatusBadRequest, wantError: "validation"},
		{name: "unknown ticket", body: fmt.Sprintf(`{"ticket_id":%q,"quantity":1}`, ticketID), serviceErr: models.ErrTicketNotFound, wantStatus: http.StatusNotFound, wantError: "not_found"},
		{name: "not enough stock", body: fmt.Sprintf(`{"ticket_id":%q,"quantity":1}`, ticketID), serviceErr: fmt.Errorf("add: %w", models.ErrNotEnoughTickets), wantStatus: http.StatusBadRequest, wantError: "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, 5, nil)
			if tt.wantStatus == http.StatusCreated || tt.serviceErr != nil {
				var item *models.CartItem
				if tt.serviceErr == nil {
					item = &models.CartItem{ID: "item-1", TicketID: ticketID, Quantity: 2}
				}
				ts.carts.On("AddItem", mock.Anything, "user-1", mock.AnythingOfType("*models.AddToCartRequest")).Return(item, tt.serviceErr).Once()
			}

			rr := ts.authed(http.MethodPost, "/carts", tt.body)

			assert.Equal(t, tt.wantStatus, rr.Code)
			resp := decode(t, rr)
			assert.Equal(t, tt.wantStatus == http.StatusCreated, resp.Success)
			assert.Equal(t, tt.wantError, resp.Error)
			ts.carts.AssertExpectations(t)
		})
	}
}

func TestGetCart(t *testing.T) {
	ts := newTestServer(t, 5, nil)
	ts.carts.On("GetCart", mock.Anything, "user-1").Return(&models.CartView{
		Items: []*models.CartLine{{ItemID: "item-1", Quantity: 2, Price: 1500, Subtotal: 3000}},
		Total: 3000,
	}, nil)

	rr := ts.authed(http.MethodGet, "/carts", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Success bool            `json:"success"`
		Data    models.CartView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, int64(3000), body.Data.Total)
	require.Len(t, body.Data.Items, 1)
}

func TestRemoveFromCart(t *testing.T) {
	itemID := uuid.NewString()

	t.Run("removed", func(t *testing.T) {
		ts := newTestServer(t, 5, nil)
		ts.carts.On("RemoveItem", mock.Anything, "user-1", itemID).Return(nil)

		rr := ts.authed(http.MethodDelete, "/carts/items/"+itemID, "")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("not in caller's cart", func(t *testing.T) {
		ts := newTestServer(t, 5, nil)
		ts.carts.On("RemoveItem", mock.Anything, "user-1", itemID).Return(models.ErrCartItemNotFound)

		rr := ts.authed(http.MethodDelete, "/carts/items/"+itemID, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		ts := newTestServer(t, 5, nil)

		rr := ts.authed(http.MethodDelete, "/carts/items/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		ts.carts.AssertNotCalled(t, "RemoveItem", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCheckout(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{name: "redirect", wantStatus: http.StatusOK},
		{name: "empty cart", err: models.ErrCartEmpty, wantStatus: http.StatusBadRequest, wantMessage: "cart is empty"},
		{name: "sold out", err: fmt.Errorf("reserve: %w", models.ErrInsufficientStock), wantStatus: http.StatusConflict, wantMessage: "insufficient ticket stock"},
		{name: "gateway down", err: models.WrapError(models.KindExternalService, "gateway request failed", errors.New("timeout")), wantStatus: http.StatusBadGateway, wantMessage: "gateway request failed"},
		{name: "database failure hides detail", err: errors.New("pq: connection reset"), wantStatus: http.StatusInternalServerError, wantMessage: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, 5, nil)
			var result *services.CheckoutResult
			if tt.err == nil {
				result = &services.CheckoutResult{OrderID: "ord-1", Reference: "ref-1", Total: 3000, RedirectURL: "https://checkout.paystack.com/ref-1"}
			}
			ts.checkout.On("Checkout", mock.Anything, "user-1").Return(result, tt.err)

			rr := ts.authed(http.MethodPost, "/carts/checkout", "")

			assert.Equal(t, tt.wantStatus, rr.Code)
			resp := decode(t, rr)
			if tt.err == nil {
				data := resp.Data.(map[string]any)
				assert.Equal(t, "https://checkout.paystack.com/ref-1", data["redirect_url"])
				return
			}
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}
}

func TestCheckout_RateLimited(t *testing.T) {
	ts := newTestServer(t, 1, nil)
	ts.checkout.On("Checkout", mock.Anything, "user-1").Return(nil, models.ErrCartEmpty)

	first := ts.authed(http.MethodPost, "/carts/checkout", "")
	second := ts.authed(http.MethodPost, "/carts/checkout", "")

	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	ts.checkout.AssertNumberOfCalls(t, "Checkout", 1)
}

func TestVerifyPaymentWebhook(t *testing.T) {
	const body = `{"event":"charge.success","data":{"reference":"ref-1"}}`

	tests := []struct {
		name       string
		header     string
		outcome    services.WebhookOutcome
		err        error
		wantStatus int
	}{
		{name: "settled", header: "X-Signature", outcome: services.OutcomeSettled, wantStatus: http.StatusOK},
		{name: "paystack header alias", header: "X-Paystack-Signature", outcome: services.OutcomeAlreadySettled, wantStatus: http.StatusOK},
		{name: "unknown reference is acknowledged", header: "X-Signature", outcome: services.OutcomeUnknownReference, wantStatus: http.StatusOK},
		{name: "bad signature", header: "X-Signature", err: models.ErrInvalidSignature, wantStatus: http.StatusBadRequest},
		{name: "unknown event", header: "X-Signature", err: models.ErrUnknownEvent, wantStatus: http.StatusBadRequest},
		{name: "settlement failed", header: "X-Signature", err: errors.New("tx aborted"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, 5, nil)
			ts.settlement.On("HandleWebhook", mock.Anything, []byte(body), "sig-abc").Return(tt.outcome, tt.err)

			rr := ts.do(http.MethodPost, "/carts/verify-payment-webhook", body, map[string]string{tt.header: "sig-abc"})

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.err == nil {
				data := decode(t, rr).Data.(map[string]any)
				assert.Equal(t, string(tt.outcome), data["outcome"])
			}
			ts.settlement.AssertExpectations(t)
		})
	}
}

func TestHealthz(t *testing.T) {
	assert.Equal(t, http.StatusOK, newTestServer(t, 5, nil).do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, newTestServer(t, 5, errors.New("down")).do(http.MethodGet, "/healthz", "", nil).Code)
}

func TestUnknownRoute(t *testing.T) {
	rr := newTestServer(t, 5, nil).do(http.MethodGet, "/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, decode(t, rr).Success)
}
