package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CartKey is the well-known slot holding the serialized cart.
const CartKey = "cart"

// storedCart is the on-disk layout. Every field is optional so blobs written
// by older versions still load.
type storedCart struct {
	Items         []storedItem `json:"items"`
	IsServerCart  bool         `json:"isServerCart"`
	LastValidated *time.Time   `json:"lastValidated"`
}

// itemFields carries CartItem's fields without its JSON methods, so the
// optional fields of storedItem take effect.
type itemFields domain.CartItem

type storedItem struct {
	itemFields
	Price    json.Number `json:"price"`
	Quantity *int        `json:"quantity"`
	Stock    *int        `json:"stock"`
}

// Bridge mirrors the cart aggregate into a single durable slot.
type Bridge struct {
	slot repository.Slot
	key  string
	log  logrus.FieldLogger
}

func NewBridge(slot repository.Slot, log logrus.FieldLogger) *Bridge {
	return &Bridge{slot: slot, key: CartKey, log: log}
}

// Save writes the cart. Failures are logged and swallowed.
func (b *Bridge) Save(ctx context.Context, cart domain.Cart) {
	blob, err := json.Marshal(storedCart{
		Items:         toStored(cart.Items),
		IsServerCart:  cart.IsServerCart,
		LastValidated: cart.LastValidated,
	})
	if err != nil {
		b.log.WithError(err).Error("failed to serialize cart")
		return
	}
	if err := b.slot.Write(ctx, b.key, blob); err != nil {
		b.log.WithError(err).Error("failed to save cart")
	}
}

// Load reads the stored cart, falling back to an empty cart when nothing
// usable is stored.
func (b *Bridge) Load(ctx context.Context) domain.Cart {
	blob, err := b.slot.Read(ctx, b.key)
	if errors.Is(err, repository.ErrSlotEmpty) {
		return domain.NewCart()
	}
	if err != nil {
		b.log.WithError(err).Error("failed to load cart, starting empty")
		return domain.NewCart()
	}

	var stored storedCart
	if err := json.Unmarshal(blob, &stored); err != nil {
		b.log.WithError(err).Warn("discarding malformed stored cart")
		return domain.NewCart()
	}

	cart := domain.NewCart()
	cart.IsServerCart = stored.IsServerCart
	cart.LastValidated = stored.LastValidated
	cart.Items = domain.NormalizeItems(b.fromStored(stored.Items))
	return cart
}

// Clear removes the stored cart.
func (b *Bridge) Clear(ctx context.Context) {
	if err := b.slot.Delete(ctx, b.key); err != nil {
		b.log.WithError(err).Error("failed to clear stored cart")
	}
}

func (b *Bridge) fromStored(stored []storedItem) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(stored))
	for _, s := range stored {
		if s.ID == "" || s.Name == "" {
			continue
		}
		item := domain.CartItem(s.itemFields)
		item.Price = decimal.Zero
		if s.Price != "" {
			price, err := decimal.NewFromString(s.Price.String())
			if err != nil {
				continue
			}
			item.Price = price
		}
		item.Quantity = 1
		if s.Quantity != nil {
			item.Quantity = *s.Quantity
		}
		item.Stock = 0
		if s.Stock != nil {
			item.Stock = *s.Stock
		}
		items = append(items, item)
	}
	if dropped := len(stored) - len(items); dropped > 0 {
		b.log.WithField("dropped", dropped).Warn("filtered out invalid items from stored cart")
	}
	return items
}

func toStored(items []domain.CartItem) []storedItem {
	out := make([]storedItem, len(items))
	for i, item := range items {
		q, s := item.Quantity, item.Stock
		out[i] = storedItem{itemFields: itemFields(item), Price: domain.JSONNumber(item.Price), Quantity: &q, Stock: &s}
	}
	return out
}
