package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrMissingProductID  = errors.New("order item is missing product ID")
	ErrIncompleteAddress = errors.New("shipping address is incomplete")
	ErrNonPositiveTotal  = errors.New("total price must be greater than 0")
)

type Order struct {
	OrderItems      []OrderItem     `json:"orderItems"`
	ShippingAddress Address         `json:"shippingAddress"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
}

func (o Order) MarshalJSON() ([]byte, error) {
	type fields Order
	return json.Marshal(struct {
		fields
		TotalPrice json.Number `json:"totalPrice"`
	}{fields(o), JSONNumber(o.TotalPrice)})
}

type OrderItem struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type Address struct {
	Address    string `json:"address" envconfig:"STREET" default:"123 Main Street"`
	City       string `json:"city" envconfig:"CITY" default:"City"`
	PostalCode string `json:"postalCode" envconfig:"POSTAL_CODE" default:"0000"`
	Country    string `json:"country" envconfig:"COUNTRY" default:"Tunisia"`
}

func (a Address) Complete() bool {
	return a.Address != "" && a.City != "" && a.PostalCode != "" && a.Country != ""
}

type OrderConfirmation struct {
	ID         string          `json:"_id"`
	Status     string          `json:"status,omitempty"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Validate checks the order before it is sent. Item quantities below one are
// corrected in place rather than rejected.
func (o *Order) Validate() error {
	if len(o.OrderItems) == 0 {
		return ErrEmptyOrder
	}
	for i := range o.OrderItems {
		if o.OrderItems[i].Product == "" {
			return fmt.Errorf("item at index %d: %w", i, ErrMissingProductID)
		}
		if o.OrderItems[i].Quantity < 1 {
			o.OrderItems[i].Quantity = 1
		}
	}
	if !o.ShippingAddress.Complete() {
		return ErrIncompleteAddress
	}
	if !o.TotalPrice.IsPositive() {
		return ErrNonPositiveTotal
	}
	return nil
}
