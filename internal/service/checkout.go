package service

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var minimumTotal = decimal.RequireFromString("0.01")

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order domain.Order) (domain.OrderConfirmation, error)
}

type Cart interface {
	Items() []domain.CartItem
	Clear()
}

// RemoteCart clears the server-side cart. Calls are fire-and-forget.
type RemoteCart interface {
	PushClear()
}

type Session interface {
	Authenticated() bool
}

// Receipt is what a successful checkout hands back to the shopper.
type Receipt struct {
	Confirmation domain.OrderConfirmation
	Order        domain.Order
	// Items left out of the order.
	Invalid     int
	Unavailable int
}

type CheckoutService struct {
	orders  OrderPlacer
	cart    Cart
	remote  RemoteCart
	session Session
	address domain.Address
	log     logrus.FieldLogger
}

func NewCheckoutService(orders OrderPlacer, cart Cart, remote RemoteCart, session Session, address domain.Address, log logrus.FieldLogger) *CheckoutService {
	return &CheckoutService{
		orders:  orders,
		cart:    cart,
		remote:  remote,
		session: session,
		address: address,
		log:     log,
	}
}

// PlaceOrder turns the cart into an order and submits it. Errors from the
// backend are returned as is so callers can show validation details. The cart
// is cleared only after the order is accepted.
func (s *CheckoutService) PlaceOrder(ctx context.Context) (*Receipt, error) {
	if !s.session.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	items := s.cart.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	receipt := &Receipt{}
	var orderable []domain.CartItem
	for _, item := range items {
		switch {
		case !orderableItem(item):
			receipt.Invalid++
		case item.Unavailable:
			receipt.Unavailable++
		default:
			orderable = append(orderable, item)
		}
	}
	if len(orderable) == 0 {
		return nil, ErrNoValidItems
	}
	if skipped := receipt.Invalid + receipt.Unavailable; skipped > 0 {
		s.log.WithFields(logrus.Fields{
			"invalid":     receipt.Invalid,
			"unavailable": receipt.Unavailable,
		}).Warnf("%d items were removed from your order", skipped)
	}

	receipt.Order = buildOrder(orderable, s.address)
	conf, err := s.orders.PlaceOrder(ctx, receipt.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}
	receipt.Confirmation = conf

	s.remote.PushClear()
	s.cart.Clear()

	s.log.WithFields(logrus.Fields{
		"order_id": conf.ID,
		"total":    receipt.Order.TotalPrice.StringFixed(2),
		"items":    len(receipt.Order.OrderItems),
	}).Info("order placed")
	return receipt, nil
}

func orderableItem(item domain.CartItem) bool {
	return item.ID != "" && item.Name != "" && item.Price.IsPositive() && item.Quantity > 0
}

func buildOrder(items []domain.CartItem, address domain.Address) domain.Order {
	order := domain.Order{
		OrderItems:      make([]domain.OrderItem, len(items)),
		ShippingAddress: address,
	}
	total := decimal.Zero
	for i, item := range items {
		order.OrderItems[i] = domain.OrderItem{Product: item.ID, Quantity: item.Quantity}
		total = total.Add(item.LineTotal())
	}
	order.TotalPrice = decimal.Max(minimumTotal, total.Round(2))
	return order
}
