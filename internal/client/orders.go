package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// PlaceOrder submits the order. The order is validated first and nothing is
// sent when validation fails.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) (domain.OrderConfirmation, error) {
	if err := order.Validate(); err != nil {
		return domain.OrderConfirmation{}, fmt.Errorf("invalid order: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/orders", order)
	if err != nil {
		return domain.OrderConfirmation{}, err
	}

	var env struct {
		Data *domain.OrderConfirmation `json:"data"`
		domain.OrderConfirmation
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.OrderConfirmation{}, fmt.Errorf("failed to decode order: %w", err)
	}
	if env.Data != nil {
		return *env.Data, nil
	}
	return env.OrderConfirmation, nil
}
