package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var errUnknownCatalogShape = errors.New("unrecognized product list shape")

// Products returns the full catalog. The backend has served the list bare,
// under "products" and under "data"; all three are accepted.
func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	body, err := c.do(ctx, http.MethodGet, "/products", nil)
	if err != nil {
		return nil, err
	}
	products, err := decodeProducts(body)
	if err != nil {
		return nil, fmt.Errorf("GET /products: %w", err)
	}
	return products, nil
}

func decodeProducts(body []byte) ([]domain.Product, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errUnknownCatalogShape
	}

	var products []domain.Product
	if body[0] == '[' {
		if err := json.Unmarshal(body, &products); err != nil {
			return nil, fmt.Errorf("failed to decode products: %w", err)
		}
		return products, nil
	}

	var wrapped struct {
		Products []domain.Product `json:"products"`
		Data     json.RawMessage  `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	switch {
	case wrapped.Products != nil:
		return wrapped.Products, nil
	case len(wrapped.Data) > 0 && wrapped.Data[0] == '[':
		if err := json.Unmarshal(wrapped.Data, &products); err != nil {
			return nil, fmt.Errorf("failed to decode products: %w", err)
		}
		return products, nil
	case len(wrapped.Data) > 0 && wrapped.Data[0] == '{':
		return decodeProducts(wrapped.Data)
	}
	return nil, errUnknownCatalogShape
}
