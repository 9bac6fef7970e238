package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as served by the backend. Stock is authoritative
// at the time the catalog was fetched.
type Product struct {
	ID    string          `json:"_id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
	Stock int             `json:"stock"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	type fields Product
	return json.Marshal(struct {
		fields
		Price json.Number `json:"price"`
	}{fields(p), JSONNumber(p.Price)})
}

// AvailableStock never reports negative stock.
func (p Product) AvailableStock() int {
	if p.Stock < 0 {
		return 0
	}
	return p.Stock
}
