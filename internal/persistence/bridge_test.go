package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSlot struct {
	m     sync.RWMutex
	blobs map[string][]byte
	err   error
}

func newMockSlot() *mockSlot {
	return &mockSlot{blobs: map[string][]byte{}}
}

func (m *mockSlot) Read(_ context.Context, key string) ([]byte, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	blob, ok := m.blobs[key]
	if !ok {
		return nil, repository.ErrSlotEmpty
	}
	return blob, nil
}

func (m *mockSlot) Write(_ context.Context, key string, blob []byte) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.blobs[key] = blob
	return nil
}

func (m *mockSlot) Delete(_ context.Context, key string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.blobs, key)
	return m.err
}

func (m *mockSlot) Close() error { return nil }

func assertSameCart(t *testing.T, want, got domain.Cart) {
	t.Helper()
	assert.Equal(t, want.IsServerCart, got.IsServerCart)
	if want.LastValidated == nil {
		assert.Nil(t, got.LastValidated)
	} else {
		require.NotNil(t, got.LastValidated)
		assert.True(t, want.LastValidated.Equal(*got.LastValidated))
	}
	require.Len(t, got.Items, len(want.Items))
	for i := range want.Items {
		w, g := want.Items[i], got.Items[i]
		assert.True(t, w.Price.Equal(g.Price), "price of %s: want %s got %s", w.ID, w.Price, g.Price)
		w.Price, g.Price = decimal.Zero, decimal.Zero
		assert.Equal(t, w, g)
	}
}

func sampleCart() domain.Cart {
	validated := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cart := domain.NewCart()
	cart.IsServerCart = true
	cart.LastValidated = &validated
	cart.Items = []domain.CartItem{
		{ID: "P1", Name: "Mug", Price: decimal.RequireFromString("5.00"), Image: "/uploads/mug.png", Quantity: 2, Stock: 10},
		{ID: "P2", Name: "Cap", Price: decimal.RequireFromString("12.49"), Quantity: 0, Stock: 3},
		{ID: "P3", Name: "Old", Price: decimal.NewFromInt(1), Quantity: 1, Stock: 1, Unavailable: true},
	}
	return cart
}

func TestBridge_RoundTrip(t *testing.T) {
	slot := newMockSlot()
	bridge := NewBridge(slot, logrus.New())
	cart := sampleCart()
	ctx := context.Background()

	bridge.Save(ctx, cart)
	loaded := bridge.Load(ctx)

	assertSameCart(t, cart, loaded)
	assert.True(t, loaded.LastOperationSuccess)
	assert.Nil(t, loaded.StockChanges)
}

func TestBridge_RoundTripSQLite(t *testing.T) {
	slot, err := repository.NewSQLiteSlot(filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	defer slot.Close()
	bridge := NewBridge(slot, logrus.New())
	ctx := context.Background()

	bridge.Save(ctx, sampleCart())

	assertSameCart(t, sampleCart(), bridge.Load(ctx))
}

func TestBridge_TransientFieldsNotPersisted(t *testing.T) {
	slot := newMockSlot()
	bridge := NewBridge(slot, logrus.New())
	cart := sampleCart()
	cart.LastOperationSuccess = false
	cart.StockChanges = []domain.StockChange{{ProductID: "P1", OldStock: 1, NewStock: 2}}

	bridge.Save(context.Background(), cart)

	assert.NotContains(t, string(slot.blobs[CartKey]), "stockChanges")
	assert.NotContains(t, string(slot.blobs[CartKey]), "LastOperationSuccess")
	assert.Contains(t, string(slot.blobs[CartKey]), `"price":12.49`)
}

func TestBridge_LoadEmptySlot(t *testing.T) {
	bridge := NewBridge(newMockSlot(), logrus.New())

	cart := bridge.Load(context.Background())

	assert.Empty(t, cart.Items)
	assert.False(t, cart.IsServerCart)
	assert.True(t, cart.LastOperationSuccess)
}

func TestBridge_LoadMalformedBlob(t *testing.T) {
	slot := newMockSlot()
	slot.blobs[CartKey] = []byte(`{"items":[{"_id":`)
	logger, hook := test.NewNullLogger()
	bridge := NewBridge(slot, logger)

	cart := bridge.Load(context.Background())

	assert.Empty(t, cart.Items)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestBridge_LoadOlderSchemaAppliesDefaults(t *testing.T) {
	slot := newMockSlot()
	slot.blobs[CartKey] = []byte(`{"items":[
		{"_id":"P1","name":"Mug","price":5,"stock":4},
		{"_id":"P2","name":"Cap","price":3,"quantity":9,"stock":2},
		{"_id":"P3","name":"NoStock","price":3,"quantity":2},
		{"name":"missing id","price":1,"quantity":1,"stock":1},
		{"_id":"P1","name":"Mug again","price":5,"quantity":1,"stock":4}
	]}`)
	bridge := NewBridge(slot, logrus.New())

	cart := bridge.Load(context.Background())

	require.Len(t, cart.Items, 3)
	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.Equal(t, "Mug", cart.Items[0].Name)
	assert.Equal(t, 2, cart.Items[1].Quantity)
	assert.Equal(t, 0, cart.Items[2].Stock)
	assert.Equal(t, 0, cart.Items[2].Quantity)
	assert.False(t, cart.IsServerCart)
	assert.Nil(t, cart.LastValidated)
}

func TestBridge_SaveFailureIsSwallowed(t *testing.T) {
	slot := newMockSlot()
	slot.err = errors.New("quota exceeded")
	logger, hook := test.NewNullLogger()
	bridge := NewBridge(slot, logger)

	assert.NotPanics(t, func() { bridge.Save(context.Background(), sampleCart()) })
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestBridge_LoadReadFailure(t *testing.T) {
	slot := newMockSlot()
	slot.err = errors.New("disk gone")
	bridge := NewBridge(slot, logrus.New())

	cart := bridge.Load(context.Background())

	assert.Empty(t, cart.Items)
}

func TestBridge_Clear(t *testing.T) {
	slot := newMockSlot()
	bridge := NewBridge(slot, logrus.New())
	ctx := context.Background()
	bridge.Save(ctx, sampleCart())

	bridge.Clear(ctx)

	assert.Empty(t, bridge.Load(ctx).Items)
}

func TestBridge_UserRoundTrip(t *testing.T) {
	slot := newMockSlot()
	bridge := NewBridge(slot, logrus.New())
	ctx := context.Background()

	_, ok := bridge.LoadUser(ctx)
	assert.False(t, ok)

	require.NoError(t, bridge.SaveUser(ctx, session.User{ID: "u1", Name: "Amel", Token: "tok"}))
	user, ok := bridge.LoadUser(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tok", user.Token)

	require.NoError(t, bridge.ClearUser(ctx))
	_, ok = bridge.LoadUser(ctx)
	assert.False(t, ok)
}

func TestBridge_UserWithoutTokenIgnored(t *testing.T) {
	slot := newMockSlot()
	slot.blobs[SessionKey] = []byte(`{"_id":"u1"}`)
	bridge := NewBridge(slot, logrus.New())

	_, ok := bridge.LoadUser(context.Background())

	assert.False(t, ok)
}
