package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// JSONNumber renders an amount as a bare JSON number, the way the backend
// reads and writes prices.
func JSONNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type Cart struct {
	Items         []CartItem `json:"items"`
	IsServerCart  bool       `json:"isServerCart"`
	LastValidated *time.Time `json:"lastValidated"`

	// Transient, never persisted.
	LastOperationSuccess bool          `json:"-"`
	StockChanges         []StockChange `json:"-"`
}

type CartItem struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity"`
	Stock       int             `json:"stock"`
	Unavailable bool            `json:"unavailable,omitempty"`
}

func (i CartItem) MarshalJSON() ([]byte, error) {
	type fields CartItem
	return json.Marshal(struct {
		fields
		Price json.Number `json:"price"`
	}{fields(i), JSONNumber(i.Price)})
}

// NewCart returns an empty guest cart.
func NewCart() Cart {
	return Cart{
		Items:                []CartItem{},
		LastOperationSuccess: true,
	}
}

func (c *Cart) Len() int {
	return len(c.Items)
}

// Find returns the index of the item with the given product id or -1.
func (c *Cart) Find(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand out of the store.
func (c *Cart) Clone() Cart {
	out := *c
	out.Items = make([]CartItem, len(c.Items))
	copy(out.Items, c.Items)
	if c.LastValidated != nil {
		t := *c.LastValidated
		out.LastValidated = &t
	}
	if c.StockChanges != nil {
		out.StockChanges = make([]StockChange, len(c.StockChanges))
		copy(out.StockChanges, c.StockChanges)
	}
	return out
}

// Subtotal sums price*quantity over items that can still be ordered.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		if item.Unavailable {
			continue
		}
		total = total.Add(item.LineTotal())
	}
	return total
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NormalizeItems enforces the cart invariants on an item list coming from an
// untrusted source: ids are unique (first occurrence wins), quantities are
// never negative and never exceed the known stock.
func NormalizeItems(items []CartItem) []CartItem {
	out := make([]CartItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		if item.Stock < 0 {
			item.Stock = 0
		}
		if item.Quantity < 0 {
			item.Quantity = 0
		}
		if item.Quantity > item.Stock {
			item.Quantity = item.Stock
		}
		out = append(out, item)
	}
	return out
}
