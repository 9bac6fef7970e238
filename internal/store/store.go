package store

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sirupsen/logrus"
)

const saveTimeout = 2 * time.Second

// Persister mirrors the cart to durable local storage. Save is best-effort and
// must not block the caller for long.
type Persister interface {
	Save(ctx context.Context, cart domain.Cart)
}

// Mutation describes the outcome of a quantity-changing operation.
type Mutation struct {
	Item domain.CartItem
	// Applied is false when the operation was a no-op (unknown item or
	// rejected input).
	Applied bool
	// Satisfied is false when the requested quantity was clamped to stock.
	Satisfied bool
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// Store owns the canonical in-memory cart. Every mutation is applied and
// persisted before the method returns.
type Store struct {
	mu      sync.RWMutex
	cart    domain.Cart
	persist Persister
	now     func() time.Time
	log     logrus.FieldLogger

	filled chan struct{}
}

func New(initial domain.Cart, persist Persister, opts ...Option) *Store {
	s := &Store{
		cart:    initial.Clone(),
		persist: persist,
		now:     time.Now,
		log:     logrus.StandardLogger(),
		filled:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cart.Items = domain.NormalizeItems(s.cart.Items)
	s.cart.LastOperationSuccess = true
	s.cart.StockChanges = nil
	return s
}

// AddItem adds qty units of product, merging with an existing line. The
// resulting quantity never exceeds the product's current stock.
func (s *Store) AddItem(product domain.Product, qty int) Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 || product.ID == "" {
		s.cart.LastOperationSuccess = false
		s.log.WithFields(logrus.Fields{
			"product_id": product.ID,
			"quantity":   qty,
		}).Warn("rejected add to cart")
		return Mutation{}
	}

	wasEmpty := len(s.cart.Items) == 0
	stock := product.AvailableStock()
	requested := qty

	idx := s.cart.Find(product.ID)
	if idx >= 0 {
		requested += s.cart.Items[idx].Quantity
	} else {
		s.cart.Items = append(s.cart.Items, domain.CartItem{
			ID:    product.ID,
			Name:  product.Name,
			Price: product.Price,
			Image: product.Image,
		})
		idx = len(s.cart.Items) - 1
	}

	item := &s.cart.Items[idx]
	item.Stock = stock
	item.Quantity = min(requested, stock)
	item.Unavailable = false
	s.cart.LastOperationSuccess = item.Quantity == requested

	out := Mutation{Item: *item, Applied: true, Satisfied: s.cart.LastOperationSuccess}
	s.saveLocked()
	if wasEmpty {
		s.signalFilled()
	}
	return out
}

// RemoveItem deletes the line for id. It reports whether a line was removed.
func (s *Store) RemoveItem(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.cart.Find(id)
	if idx < 0 {
		return false
	}
	s.cart.Items = append(s.cart.Items[:idx], s.cart.Items[idx+1:]...)
	s.saveLocked()
	return true
}

// SetQuantity sets the quantity of an existing line, clamped to [0, stock].
func (s *Store) SetQuantity(id string, qty int) Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.LastOperationSuccess = true
	idx := s.cart.Find(id)
	if idx < 0 {
		return Mutation{}
	}

	requested := max(qty, 0)
	item := &s.cart.Items[idx]
	item.Quantity = min(requested, item.Stock)
	s.cart.LastOperationSuccess = item.Quantity == requested

	out := Mutation{Item: *item, Applied: true, Satisfied: s.cart.LastOperationSuccess}
	s.saveLocked()
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart.Items = []domain.CartItem{}
	s.saveLocked()
}

// Validate reconciles cached stock against catalog. Items whose product is no
// longer listed are kept and flagged unavailable. The returned deltas replace
// any previously recorded ones.
func (s *Store) Validate(catalog []domain.Product) []domain.StockChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[string]domain.Product, len(catalog))
	for _, p := range catalog {
		index[p.ID] = p
	}

	changes := make([]domain.StockChange, 0)
	for i := range s.cart.Items {
		item := &s.cart.Items[i]
		product, ok := index[item.ID]
		if !ok {
			item.Unavailable = true
			continue
		}

		stock := product.AvailableStock()
		if item.Stock != stock {
			changes = append(changes, domain.StockChange{
				ProductID: item.ID,
				Name:      product.Name,
				OldStock:  item.Stock,
				NewStock:  stock,
			})
			item.Stock = stock
		}
		item.Unavailable = false
		item.Quantity = min(item.Quantity, stock)
	}

	now := s.now().UTC()
	s.cart.LastValidated = &now
	s.cart.StockChanges = changes
	s.saveLocked()

	out := make([]domain.StockChange, len(changes))
	copy(out, changes)
	return out
}

// ReplaceItems adopts a cart received from the server wholesale.
func (s *Store) ReplaceItems(items []domain.CartItem, fromServer bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasEmpty := len(s.cart.Items) == 0
	if fromServer {
		for _, item := range items {
			if item.Quantity > max(item.Stock, 0) {
				s.log.WithFields(logrus.Fields{
					"product_id": item.ID,
					"quantity":   item.Quantity,
					"stock":      item.Stock,
				}).Warn("server cart item exceeds stock, clamping quantity")
			}
		}
	}
	s.cart.Items = domain.NormalizeItems(items)
	if fromServer {
		s.cart.IsServerCart = true
	}
	s.saveLocked()
	if wasEmpty && len(s.cart.Items) > 0 {
		s.signalFilled()
	}
}

// Reset reverts to an empty guest cart, as on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = domain.NewCart()
	s.saveLocked()
}

// TakeStockChanges returns the deltas of the last validation and forgets
// them, so each delta is consumed once.
func (s *Store) TakeStockChanges() []domain.StockChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes := s.cart.StockChanges
	s.cart.StockChanges = nil
	return changes
}

func (s *Store) Snapshot() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

func (s *Store) Items() []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CartItem, len(s.cart.Items))
	copy(out, s.cart.Items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cart.Items)
}

func (s *Store) LastOperationSuccess() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.LastOperationSuccess
}

func (s *Store) IsServerCart() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.IsServerCart
}

func (s *Store) LastValidated() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cart.LastValidated == nil {
		return time.Time{}, false
	}
	return *s.cart.LastValidated, true
}

// Filled fires when the cart goes from empty to non-empty.
func (s *Store) Filled() <-chan struct{} {
	return s.filled
}

func (s *Store) signalFilled() {
	select {
	case s.filled <- struct{}{}:
	default:
	}
}

func (s *Store) saveLocked() {
	if s.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	s.persist.Save(ctx, s.cart.Clone())
}
