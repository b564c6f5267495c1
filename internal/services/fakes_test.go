package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"event-checkout/internal/config"
	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// memState is the whole fake database. clone gives rollback snapshots.
type memState struct {
	users      map[string]models.User
	tickets    map[string]models.Ticket
	carts      map[string]string // user id -> cart id
	cartItems  []models.CartItem
	orders     map[string]models.Order
	orderItems []models.OrderItem
	payments   map[string]models.Payment
	claims     map[string]time.Time
}

func newMemState() *memState {
	return &memState{
		users:    map[string]models.User{},
		tickets:  map[string]models.Ticket{},
		carts:    map[string]string{},
		orders:   map[string]models.Order{},
		payments: map[string]models.Payment{},
		claims:   map[string]time.Time{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	c.cartItems = append([]models.CartItem(nil), s.cartItems...)
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.orderItems = append([]models.OrderItem(nil), s.orderItems...)
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.claims {
		c.claims[k] = v
	}
	return c
}

// memDB serializes transactions and restores the pre-transaction snapshot
// when fn fails, which is how the fake models rollback. Because of txMu no
// two fake transactions ever contend for the same row; row-level contention
// is only covered by the Postgres repository tests.
type memDB struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState
	fail  map[string]error
	// shortItems makes CreateItems under-report the rows it wrote.
	shortItems bool
	// onCommit runs after a transaction commits.
	onCommit func()
}

func newMemDB() *memDB {
	return &memDB{state: newMemState(), fail: map[string]error{}}
}

var errNoSQL = errors.New("memDB does not run SQL")

func (db *memDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (db *memDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (db *memDB) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.Querier) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snapshot := db.state.clone()
	db.mu.Unlock()

	if err := fn(ctx, db); err != nil {
		db.mu.Lock()
		db.state = snapshot
		db.mu.Unlock()
		return err
	}
	if db.onCommit != nil {
		db.onCommit()
	}
	return nil
}

// failOn makes the named repository operation return err.
func (db *memDB) failOn(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail[op] = err
}

// snapshot returns a copy of the current state for assertions.
func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

func (db *memDB) with(op string, fn func(s *memState) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fail[op]; err != nil {
		return err
	}
	return fn(db.state)
}

func (db *memDB) addUser(email string) string {
	id := uuid.NewString()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.users[id] = models.User{ID: id, Email: email}
	return id
}

func (db *memDB) addTicket(price int64, stock int) string {
	id := uuid.NewString()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.tickets[id] = models.Ticket{ID: id, EventID: uuid.NewString(), Price: price, AvailableQuantity: stock}
	return id
}

func (db *memDB) setStock(ticketID string, stock int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := db.state.tickets[ticketID]
	t.AvailableQuantity = stock
	db.state.tickets[ticketID] = t
}

func (db *memDB) stock(ticketID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.tickets[ticketID].AvailableQuantity
}

func (db *memDB) paymentByRef(ref string) (models.Payment, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, p := range db.state.payments {
		if p.TxnReference == ref {
			return p, true
		}
	}
	return models.Payment{}, false
}

func (db *memDB) order(id string) models.Order {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.orders[id]
}

func (db *memDB) ageAllPayments(age time.Duration) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for id, p := range db.state.payments {
		p.CreatedAt = time.Now().Add(-age)
		db.state.payments[id] = p
	}
}

type fakeCarts struct{ db *memDB }

func (r fakeCarts) UpsertCart(_ context.Context, _ database.Querier, userID string) (string, error) {
	var cartID string
	err := r.db.with("carts.UpsertCart", func(s *memState) error {
		if id, ok := s.carts[userID]; ok {
			cartID = id
			return nil
		}
		cartID = uuid.NewString()
		s.carts[userID] = cartID
		return nil
	})
	return cartID, err
}

func (r fakeCarts) AddItem(_ context.Context, _ database.Querier, cartID, ticketID string, quantity int) (*models.CartItem, error) {
	var out models.CartItem
	err := r.db.with("carts.AddItem", func(s *memState) error {
		for i, item := range s.cartItems {
			if item.CartID == cartID && item.TicketID == ticketID {
				s.cartItems[i].Quantity += quantity
				out = s.cartItems[i]
				return nil
			}
		}
		out = models.CartItem{ID: uuid.NewString(), CartID: cartID, TicketID: ticketID, Quantity: quantity, CreatedAt: time.Now()}
		s.cartItems = append(s.cartItems, out)
		return nil
	})
	return &out, err
}

func (r fakeCarts) ListLines(_ context.Context, _ database.Querier, userID string) ([]*models.CartLine, error) {
	var lines []*models.CartLine
	err := r.db.with("carts.ListLines", func(s *memState) error {
		cartID, ok := s.carts[userID]
		if !ok {
			return nil
		}
		for _, item := range s.cartItems {
			if item.CartID != cartID {
				continue
			}
			t := s.tickets[item.TicketID]
			lines = append(lines, &models.CartLine{
				ItemID:    item.ID,
				TicketID:  t.ID,
				EventID:   t.EventID,
				Quantity:  item.Quantity,
				Price:     t.Price,
				CreatedAt: item.CreatedAt,
			})
		}
		return nil
	})
	return lines, err
}

func (r fakeCarts) RemoveItem(_ context.Context, _ database.Querier, userID, itemID string) error {
	return r.db.with("carts.RemoveItem", func(s *memState) error {
		cartID := s.carts[userID]
		for i, item := range s.cartItems {
			if item.ID == itemID && item.CartID == cartID {
				s.cartItems = append(s.cartItems[:i], s.cartItems[i+1:]...)
				return nil
			}
		}
		return models.ErrCartItemNotFound
	})
}

func (r fakeCarts) ClearItems(_ context.Context, _ database.Querier, userID string) (int64, error) {
	var n int64
	err := r.db.with("carts.ClearItems", func(s *memState) error {
		cartID := s.carts[userID]
		kept := s.cartItems[:0:0]
		for _, item := range s.cartItems {
			if item.CartID == cartID {
				n++
				continue
			}
			kept = append(kept, item)
		}
		s.cartItems = kept
		return nil
	})
	return n, err
}

type fakeTickets struct{ db *memDB }

func (r fakeTickets) GetByID(_ context.Context, _ database.Querier, id string) (*models.Ticket, error) {
	var out models.Ticket
	err := r.db.with("tickets.GetByID", func(s *memState) error {
		t, ok := s.tickets[id]
		if !ok {
			return models.ErrTicketNotFound
		}
		out = t
		return nil
	})
	return &out, err
}

func (r fakeTickets) Reserve(_ context.Context, _ database.Querier, id string, quantity int) error {
	return r.db.with("tickets.Reserve", func(s *memState) error {
		t, ok := s.tickets[id]
		if !ok || t.AvailableQuantity < quantity {
			return fmt.Errorf("reserve ticket %s: %w", id, models.ErrInsufficientStock)
		}
		t.AvailableQuantity -= quantity
		s.tickets[id] = t
		return nil
	})
}

func (r fakeTickets) Restore(_ context.Context, _ database.Querier, id string, quantity int) error {
	return r.db.with("tickets.Restore", func(s *memState) error {
		t, ok := s.tickets[id]
		if !ok {
			return models.ErrTicketNotFound
		}
		t.AvailableQuantity += quantity
		s.tickets[id] = t
		return nil
	})
}

type fakeOrders struct{ db *memDB }

func (r fakeOrders) Create(_ context.Context, _ database.Querier, order *models.Order) error {
	return r.db.with("orders.Create", func(s *memState) error {
		order.ID = uuid.NewString()
		order.CreatedAt = time.Now()
		order.UpdatedAt = order.CreatedAt
		s.orders[order.ID] = *order
		return nil
	})
}

func (r fakeOrders) CreateItems(_ context.Context, _ database.Querier, orderID string, lines []*models.CartLine) (int64, error) {
	var n int64
	err := r.db.with("orders.CreateItems", func(s *memState) error {
		for _, line := range lines {
			s.orderItems = append(s.orderItems, models.OrderItem{
				ID:       uuid.NewString(),
				OrderID:  orderID,
				TicketID: line.TicketID,
				Quantity: line.Quantity,
			})
			n++
		}
		if r.db.shortItems {
			n--
		}
		return nil
	})
	return n, err
}

func (r fakeOrders) ListItems(_ context.Context, _ database.Querier, orderID string) ([]*models.OrderItem, error) {
	var items []*models.OrderItem
	err := r.db.with("orders.ListItems", func(s *memState) error {
		for _, item := range s.orderItems {
			if item.OrderID == orderID {
				item := item
				items = append(items, &item)
			}
		}
		return nil
	})
	return items, err
}

func (r fakeOrders) Transition(_ context.Context, _ database.Querier, id string, status models.OrderStatus) error {
	return r.db.with("orders.Transition", func(s *memState) error {
		o, ok := s.orders[id]
		if !ok || o.Status != models.OrderOngoing {
			return models.ErrOrderNotOngoing
		}
		o.Status = status
		s.orders[id] = o
		return nil
	})
}

type fakePayments struct{ db *memDB }

func (r fakePayments) Create(_ context.Context, _ database.Querier, payment *models.Payment) error {
	return r.db.with("payments.Create", func(s *memState) error {
		for _, p := range s.payments {
			if p.TxnReference == payment.TxnReference {
				return fmt.Errorf("payment reference %s: %w", payment.TxnReference, models.ErrDuplicateEntry)
			}
		}
		payment.ID = uuid.NewString()
		payment.CreatedAt = time.Now()
		payment.UpdatedAt = payment.CreatedAt
		s.payments[payment.ID] = *payment
		return nil
	})
}

func (r fakePayments) GetContextByReference(_ context.Context, _ database.Querier, reference string) (*models.PaymentContext, error) {
	var out *models.PaymentContext
	err := r.db.with("payments.GetContextByReference", func(s *memState) error {
		for _, p := range s.payments {
			if p.TxnReference != reference {
				continue
			}
			o := s.orders[p.OrderID]
			out = &models.PaymentContext{
				Payment:     p,
				OrderStatus: o.Status,
				UserID:      o.UserID,
				Email:       s.users[o.UserID].Email,
			}
			return nil
		}
		return models.ErrPaymentNotFound
	})
	return out, err
}

func (r fakePayments) MarkSuccessful(_ context.Context, _ database.Querier, id string, st models.Settlement) error {
	return r.db.with("payments.MarkSuccessful", func(s *memState) error {
		p, ok := s.payments[id]
		if !ok || p.Status != models.PaymentPending {
			return models.ErrPaymentNotPending
		}
		p.Status = models.PaymentSuccessful
		p.PaymentChannel = &st.Channel
		p.Currency = &st.Currency
		p.Provider = st.Provider
		paidAt := st.PaidAt
		p.PaidAt = &paidAt
		s.payments[id] = p
		delete(s.claims, id)
		return nil
	})
}

func (r fakePayments) MarkFailed(_ context.Context, _ database.Querier, id string) error {
	return r.db.with("payments.MarkFailed", func(s *memState) error {
		p, ok := s.payments[id]
		if !ok || p.Status != models.PaymentPending {
			return models.ErrPaymentNotPending
		}
		p.Status = models.PaymentFailed
		s.payments[id] = p
		delete(s.claims, id)
		return nil
	})
}

func (r fakePayments) ClaimStale(_ context.Context, _ database.Querier, cutoff time.Time, limit int, lease time.Duration) ([]*models.Payment, error) {
	var out []*models.Payment
	err := r.db.with("payments.ClaimStale", func(s *memState) error {
		now := time.Now()
		for id, p := range s.payments {
			if len(out) >= limit {
				break
			}
			if p.Status != models.PaymentPending || !p.CreatedAt.Before(cutoff) {
				continue
			}
			if until, ok := s.claims[id]; ok && until.After(now) {
				continue
			}
			s.claims[id] = now.Add(lease)
			p := p
			out = append(out, &p)
		}
		return nil
	})
	return out, err
}

type fakeUsers struct{ db *memDB }

func (r fakeUsers) GetByID(_ context.Context, _ database.Querier, id string) (*models.User, error) {
	var out models.User
	err := r.db.with("users.GetByID", func(s *memState) error {
		u, ok := s.users[id]
		if !ok {
			return models.ErrUserNotFound
		}
		out = u
		return nil
	})
	return &out, err
}

// fakeGateway hands out sequential references and serves scripted
// verification results.
type fakeGateway struct {
	mu          sync.Mutex
	initErr     error
	initCalls   int
	fixedRef    string
	verify      map[string]*Verification
	verifyErr   map[string]error
	verifyCalls []string
	onVerify    func(reference string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verify: map[string]*Verification{}, verifyErr: map[string]error{}}
}

func (g *fakeGateway) InitializeTransaction(_ context.Context, req *InitializeRequest) (*InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	ref := g.fixedRef
	if ref == "" {
		ref = fmt.Sprintf("ref-%d", g.initCalls)
	}
	return &InitializeResult{
		Reference:        ref,
		AuthorizationURL: "https://checkout.paystack.test/" + ref,
	}, nil
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*Verification, error) {
	g.mu.Lock()
	g.verifyCalls = append(g.verifyCalls, reference)
	hook := g.onVerify
	v, err := g.verify[reference], g.verifyErr[reference]
	g.mu.Unlock()

	if hook != nil {
		hook(reference)
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		return &Verification{Status: "abandoned", Reference: reference}, nil
	}
	return v, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []*models.OrderConfirmation
}

// EnqueueOrderConfirmation fails like a network client would when ctx is done.
func (n *fakeNotifier) EnqueueOrderConfirmation(ctx context.Context, c *models.OrderConfirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, c)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.OrderEvent
	// hold, when set, blocks Publish until it is closed, like a slow broker.
	hold chan struct{}
}

func (p *fakePublisher) Publish(ctx context.Context, evt *models.OrderEvent) error {
	if p.hold != nil {
		select {
		case <-p.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeLocker struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, true, nil
}

const testSecret = "sk_test_webhook_secret"

type harness struct {
	db       *memDB
	gateway  *fakeGateway
	notifier *fakeNotifier
	events   *fakePublisher
	locker   *fakeLocker
	logs     *observer.ObservedLogs

	carts      *CartService
	checkout   *CheckoutService
	settlement *SettlementService
	reconcile  *ReconcileService
}

func newHarness(t *testing.T, reconcileCfg ...config.ReconcileConfig) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	cfg := config.ReconcileConfig{
		Interval:   30 * time.Minute,
		StaleAfter: time.Hour,
		BatchSize:  100,
		ClaimLease: 10 * time.Minute,
		LockTTL:    25 * time.Minute,
	}
	if len(reconcileCfg) > 0 {
		cfg = reconcileCfg[0]
	}

	h := &harness{
		db:       newMemDB(),
		gateway:  newFakeGateway(),
		notifier: &fakeNotifier{},
		events:   &fakePublisher{},
		locker:   &fakeLocker{},
		logs:     logs,
	}

	carts := fakeCarts{h.db}
	tickets := fakeTickets{h.db}
	orders := fakeOrders{h.db}
	payments := fakePayments{h.db}
	users := fakeUsers{h.db}

	h.carts = NewCartService(h.db, carts, tickets, log)
	h.checkout = NewCheckoutService(h.db, users, carts, tickets, orders, payments, h.gateway, "https://shop.test/callback", log)
	h.settlement = NewSettlementService(h.db, carts, orders, payments, h.notifier, h.events, testSecret, log)
	h.reconcile = NewReconcileService(h.db, orders, payments, tickets, h.gateway, h.events, h.locker, cfg, log)
	return h
}

// publishedTypes waits for background publishes and returns the event types.
func (h *harness) publishedTypes() []string {
	h.settlement.Wait()
	h.reconcile.Wait()
	return h.events.types()
}

// fillCart adds quantity of ticketID to userID's cart.
func (h *harness) fillCart(t *testing.T, userID, ticketID string, quantity int) {
	t.Helper()
	_, err := h.carts.AddItem(context.Background(), userID, &models.AddToCartRequest{TicketID: ticketID, Quantity: quantity})
	if err != nil {
		t.Fatalf("fill cart: %v", err)
	}
}

// chargeSuccess builds a signed charge.success webhook body.
func chargeSuccess(reference string, amount int64, paidAt string) ([]byte, string) {
	paid := "null"
	if paidAt != "" {
		paid = `"` + paidAt + `"`
	}
	body := []byte(fmt.Sprintf(
		`{"event":"charge.success","data":{"reference":%q,"status":"success","amount":%d,"currency":"NGN","channel":"card","paid_at":%s}}`,
		reference, amount, paid))
	return body, SignWebhookPayload(testSecret, body)
}
