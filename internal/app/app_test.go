package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/client/clienttest"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/reconcile"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	m       sync.RWMutex
	notices []reconcile.Notice
}

func (c *collector) Notify(_ context.Context, notices ...reconcile.Notice) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.notices = append(c.notices, notices...)
	return nil
}

func (c *collector) Notices() []reconcile.Notice {
	c.m.RLock()
	defer c.m.RUnlock()
	return append([]reconcile.Notice(nil), c.notices...)
}

func testConfig(t *testing.T, apiURL, dbPath string) *config.Config {
	t.Helper()
	return &config.Config{
		APIURL:           apiURL,
		RequestTimeout:   2 * time.Second,
		BreakerFailures:  5,
		BreakerCooldown:  time.Second,
		PollInterval:     time.Hour,
		ValidateInterval: time.Hour,
		Storage:          config.Storage{Driver: config.DriverSQLite, SQLitePath: dbPath},
		ShippingAddress:  domain.Address{Address: "123 Main Street", City: "City", PostalCode: "0000", Country: "Tunisia"},
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

func setupApp(t *testing.T, backend *clienttest.Backend, dbPath string) (*App, *collector) {
	t.Helper()
	notices := &collector{}
	a, err := New(context.Background(), testConfig(t, backend.URL(), dbPath), logrus.New(), notices)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	t.Cleanup(func() {
		closeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = a.Close(closeCtx)
		cancel()
	})
	return a, notices
}

func newBackend(t *testing.T) *clienttest.Backend {
	t.Helper()
	backend := clienttest.NewBackend()
	t.Cleanup(backend.Close)
	backend.SetProducts(
		domain.Product{ID: "P1", Name: "Mug", Price: decimal.RequireFromString("5.00"), Stock: 10},
		domain.Product{ID: "P2", Name: "Cap", Price: decimal.RequireFromString("12.00"), Stock: 2},
	)
	return backend
}

func flush(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Syncer.Flush(ctx))
}

func TestGuestAddClampsToStock(t *testing.T) {
	backend := newBackend(t)
	a, _ := setupApp(t, backend, filepath.Join(t.TempDir(), "cart.db"))
	ctx := context.Background()

	m, err := a.AddToCart(ctx, "P1", 3)
	require.NoError(t, err)
	assert.True(t, m.Satisfied)
	assert.Equal(t, 3, m.Item.Quantity)

	m, err = a.AddToCart(ctx, "P1", 9)
	require.NoError(t, err)
	assert.False(t, m.Satisfied)
	assert.Equal(t, 10, m.Item.Quantity)
	assert.False(t, a.Store.LastOperationSuccess())

	flush(t, a)
	assert.Equal(t, 0, backend.Count("POST /carts/items"), "guests never talk to the cart API")
}

func TestAddUnknownProduct(t *testing.T) {
	backend := newBackend(t)
	a, _ := setupApp(t, backend, filepath.Join(t.TempDir(), "cart.db"))

	_, err := a.AddToCart(context.Background(), "nope", 1)

	assert.ErrorIs(t, err, ErrUnknownProduct)
}

func TestLoginMergesGuestCartAndPersists(t *testing.T) {
	backend := newBackend(t)
	dbPath := filepath.Join(t.TempDir(), "cart.db")
	a, _ := setupApp(t, backend, dbPath)
	ctx := context.Background()

	_, err := a.AddToCart(ctx, "P1", 10)
	require.NoError(t, err)
	require.NoError(t, a.Login(ctx, session.User{ID: "u1", Name: "Amel", Token: "tok"}))
	flush(t, a)

	remote := backend.Cart("tok")
	require.Len(t, remote, 1)
	assert.Equal(t, 10, remote[0].Quantity)
	assert.True(t, a.Store.IsServerCart())
	require.Len(t, a.Store.Items(), 1)
	assert.Equal(t, 10, a.Store.Items()[0].Quantity)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(closeCtx))

	restored, _ := setupApp(t, backend, dbPath)
	assert.True(t, restored.Session.Authenticated())
	assert.True(t, restored.Store.IsServerCart())
	assert.Equal(t, 1, restored.Store.Len())
}

func TestAuthenticatedMutationsArePushed(t *testing.T) {
	backend := newBackend(t)
	a, _ := setupApp(t, backend, filepath.Join(t.TempDir(), "cart.db"))
	ctx := context.Background()
	require.NoError(t, a.Login(ctx, session.User{ID: "u1", Token: "tok"}))
	flush(t, a)

	_, err := a.AddToCart(ctx, "P1", 2)
	require.NoError(t, err)
	_, err = a.AddToCart(ctx, "P1", 1)
	require.NoError(t, err)
	_, err = a.AddToCart(ctx, "P2", 1)
	require.NoError(t, err)
	// Server responses replace the local cart; settle before removing.
	flush(t, a)
	assert.True(t, a.RemoveFromCart("P2"))
	flush(t, a)

	remote := backend.Cart("tok")
	require.Len(t, remote, 1)
	assert.Equal(t, 3, remote[0].Quantity)
	assert.Equal(t, 1, backend.Count("PUT /carts/items/P1"))

	a.ClearCart()
	flush(t, a)
	assert.Empty(t, backend.Cart("tok"))
	assert.Equal(t, 0, a.Store.Len())
}

func TestCheckoutClearsBothCarts(t *testing.T) {
	backend := newBackend(t)
	a, _ := setupApp(t, backend, filepath.Join(t.TempDir(), "cart.db"))
	ctx := context.Background()
	require.NoError(t, a.Login(ctx, session.User{ID: "u1", Token: "tok"}))
	flush(t, a)
	_, err := a.AddToCart(ctx, "P1", 2)
	require.NoError(t, err)
	flush(t, a)

	receipt, err := a.Checkout.PlaceOrder(ctx)
	require.NoError(t, err)
	flush(t, a)

	assert.Equal(t, "10.00", receipt.Order.TotalPrice.StringFixed(2))
	assert.Equal(t, 0, a.Store.Len())
	assert.Empty(t, backend.Cart("tok"))
	require.Len(t, backend.Orders(), 1)
}

func TestReconcileSurfacesStockDrop(t *testing.T) {
	backend := newBackend(t)
	a, notices := setupApp(t, backend, filepath.Join(t.TempDir(), "cart.db"))
	ctx := context.Background()
	_, err := a.AddToCart(ctx, "P1", 4)
	require.NoError(t, err)

	backend.SetStock("P1", 0)
	res, err := a.Reconcile(ctx)

	require.NoError(t, err)
	assert.Equal(t, reconcile.Notifying, res.State)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, domain.StockChange{ProductID: "P1", Name: "Mug", OldStock: 10, NewStock: 0}, res.Changes[0])
	assert.Equal(t, 0, a.Store.Items()[0].Quantity)

	kinds := []reconcile.Source{}
	for _, n := range notices.Notices() {
		assert.Equal(t, reconcile.OutOfStock, n.Kind)
		kinds = append(kinds, n.Source)
	}
	assert.ElementsMatch(t, []reconcile.Source{reconcile.SourceCatalog, reconcile.SourceCart}, kinds)
}

func TestLogoutResetsCartAndSession(t *testing.T) {
	backend := newBackend(t)
	dbPath := filepath.Join(t.TempDir(), "cart.db")
	a, _ := setupApp(t, backend, dbPath)
	ctx := context.Background()
	require.NoError(t, a.Login(ctx, session.User{ID: "u1", Token: "tok"}))
	flush(t, a)
	_, err := a.AddToCart(ctx, "P1", 1)
	require.NoError(t, err)
	flush(t, a)

	a.Logout(ctx)

	assert.False(t, a.Session.Authenticated())
	assert.Equal(t, 0, a.Store.Len())
	assert.Len(t, backend.Cart("tok"), 1, "server cart survives logout")
}

func TestStartMergesRestoredGuestCart(t *testing.T) {
	backend := newBackend(t)
	dbPath := filepath.Join(t.TempDir(), "cart.db")
	ctx := context.Background()

	cfg := testConfig(t, backend.URL(), dbPath)
	seed, err := New(ctx, cfg, logrus.New())
	require.NoError(t, err)
	_, err = seed.AddToCart(ctx, "P1", 2)
	require.NoError(t, err)
	require.NoError(t, seed.bridge.SaveUser(ctx, session.User{ID: "u1", Token: "tok"}))
	require.NoError(t, seed.Close(ctx))

	a, _ := setupApp(t, backend, dbPath)
	flush(t, a)

	assert.Equal(t, 1, backend.Count("POST /carts/merge"))
	assert.True(t, a.Store.IsServerCart())
	remote := backend.Cart("tok")
	require.Len(t, remote, 1)
	assert.Equal(t, 2, remote[0].Quantity)
}

func TestStartRefreshesRestoredServerCart(t *testing.T) {
	backend := newBackend(t)
	dbPath := filepath.Join(t.TempDir(), "cart.db")
	a, _ := setupApp(t, backend, dbPath)
	ctx := context.Background()
	require.NoError(t, a.Login(ctx, session.User{ID: "u1", Token: "tok"}))
	_, err := a.AddToCart(ctx, "P1", 1)
	require.NoError(t, err)
	flush(t, a)
	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(closeCtx))

	backend.SetCart("tok", domain.CartItem{ID: "P2", Name: "Cap", Price: decimal.RequireFromString("12.00"), Quantity: 2, Stock: 2})
	restored, _ := setupApp(t, backend, dbPath)
	flush(t, restored)

	assert.Equal(t, 0, backend.Count("POST /carts/merge"))
	items := restored.Store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P2", items[0].ID)
}

func TestAcknowledgedAddKeepsLocalCart(t *testing.T) {
	backend := newBackend(t)
	a, _ := setupApp(t, backend, filepath.Join(t.TempDir(), "cart.db"))
	ctx := context.Background()
	require.NoError(t, a.Login(ctx, session.User{ID: "u1", Token: "tok"}))
	flush(t, a)

	backend.AckNext("POST /carts/items", 1)
	_, err := a.AddToCart(ctx, "P1", 3)
	require.NoError(t, err)
	flush(t, a)

	items := a.Store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P1", items[0].ID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Len(t, backend.Cart("tok"), 1)
}

func TestAddOutOfStockIsNotPushed(t *testing.T) {
	backend := newBackend(t)
	backend.SetStock("P2", 0)
	a, _ := setupApp(t, backend, filepath.Join(t.TempDir(), "cart.db"))
	ctx := context.Background()
	require.NoError(t, a.Login(ctx, session.User{ID: "u1", Token: "tok"}))
	flush(t, a)

	m, err := a.AddToCart(ctx, "P2", 1)
	require.NoError(t, err)
	flush(t, a)

	assert.False(t, m.Satisfied)
	assert.Equal(t, 0, m.Item.Quantity)
	assert.Equal(t, 0, backend.Count("POST /carts/items"))
}
