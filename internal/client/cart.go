package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var errRejected = errors.New("backend reported success=false")

// ItemUpdate is the body of a cart line update.
type ItemUpdate struct {
	Quantity int `json:"quantity"`
}

type itemsRequest struct {
	Items []domain.CartItem `json:"items"`
}

type cartPayload struct {
	Items *[]domain.CartItem `json:"items"`
}

// cartEnvelope accepts both {"success":..,"data":{"items":[..]}} and a bare
// {"items":[..]}.
type cartEnvelope struct {
	Success *bool              `json:"success"`
	Data    *cartPayload       `json:"data"`
	Items   *[]domain.CartItem `json:"items"`
}

func (c *Client) FetchCart(ctx context.Context) ([]domain.CartItem, error) {
	return c.cartCall(ctx, http.MethodGet, "/carts", nil)
}

// SaveCart replaces the server cart with items.
func (c *Client) SaveCart(ctx context.Context, items []domain.CartItem) ([]domain.CartItem, error) {
	return c.cartCall(ctx, http.MethodPost, "/carts", itemsRequest{Items: nonNil(items)})
}

func (c *Client) AddItem(ctx context.Context, item domain.CartItem) ([]domain.CartItem, error) {
	return c.cartCall(ctx, http.MethodPost, "/carts/items", item)
}

func (c *Client) UpdateItem(ctx context.Context, id string, update ItemUpdate) ([]domain.CartItem, error) {
	return c.cartCall(ctx, http.MethodPut, "/carts/items/"+url.PathEscape(id), update)
}

func (c *Client) RemoveItem(ctx context.Context, id string) ([]domain.CartItem, error) {
	return c.cartCall(ctx, http.MethodDelete, "/carts/items/"+url.PathEscape(id), nil)
}

// ClearCart empties the server cart. Any successful response means the cart
// is empty, whatever the body says.
func (c *Client) ClearCart(ctx context.Context) ([]domain.CartItem, error) {
	if _, err := c.cartCall(ctx, http.MethodDelete, "/carts", nil); err != nil && !errors.Is(err, ErrNoCart) {
		return nil, err
	}
	return []domain.CartItem{}, nil
}

// MergeCart merges guest items into the server cart and returns the result.
func (c *Client) MergeCart(ctx context.Context, items []domain.CartItem) ([]domain.CartItem, error) {
	return c.cartCall(ctx, http.MethodPost, "/carts/merge", itemsRequest{Items: nonNil(items)})
}

func (c *Client) cartCall(ctx context.Context, method, path string, in any) ([]domain.CartItem, error) {
	body, err := c.do(ctx, method, path, in)
	if err != nil {
		return nil, err
	}
	items, err := decodeCart(body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return items, nil
}

// decodeCart returns ErrNoCart for an empty body or one without an items
// array. An explicit empty array is a valid, empty cart.
func decodeCart(body []byte) ([]domain.CartItem, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNoCart
	}
	var env cartEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, errRejected
	}
	items := env.Items
	if env.Data != nil && env.Data.Items != nil {
		items = env.Data.Items
	}
	if items == nil || *items == nil {
		return nil, ErrNoCart
	}
	return *items, nil
}

func nonNil(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return []domain.CartItem{}
	}
	return items
}
