// Package clienttest provides an in-memory storefront backend for tests.
package clienttest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ProductShape selects how GET /products wraps the list.
type ProductShape int

const (
	ShapeProductsKey ProductShape = iota
	ShapeBareArray
	ShapeDataKey
)

type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

// Backend mimics the REST contract closely enough for client, sync and
// checkout tests. Carts are keyed by bearer token.
type Backend struct {
	Server *httptest.Server

	m        sync.RWMutex
	products []domain.Product
	carts    map[string][]domain.CartItem
	orders   []domain.Order
	shape    ProductShape
	failures map[string][]int
	acks     map[string]int
	requests []Request
}

type ackOnlyKey struct{}

func NewBackend() *Backend {
	b := &Backend{
		carts:    map[string][]domain.CartItem{},
		failures: map[string][]int{},
		acks:     map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.record)
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", b.listProducts)
		r.Group(func(r chi.Router) {
			r.Use(requireToken)
			r.Get("/carts", b.getCart)
			r.Post("/carts", b.saveCart)
			r.Delete("/carts", b.clearCart)
			r.Post("/carts/items", b.addItem)
			r.Put("/carts/items/{id}", b.updateItem)
			r.Delete("/carts/items/{id}", b.removeItem)
			r.Post("/carts/merge", b.mergeCart)
			r.Post("/orders", b.placeOrder)
		})
	})
	b.Server = httptest.NewServer(r)
	return b
}

// URL is the base URL a client should be configured with.
func (b *Backend) URL() string {
	return b.Server.URL + "/api"
}

func (b *Backend) Close() {
	b.Server.Close()
}

func (b *Backend) SetProducts(products ...domain.Product) {
	b.m.Lock()
	defer b.m.Unlock()
	b.products = append([]domain.Product(nil), products...)
}

func (b *Backend) SetStock(id string, stock int) {
	b.m.Lock()
	defer b.m.Unlock()
	for i := range b.products {
		if b.products[i].ID == id {
			b.products[i].Stock = stock
		}
	}
}

func (b *Backend) SetProductShape(shape ProductShape) {
	b.m.Lock()
	defer b.m.Unlock()
	b.shape = shape
}

func (b *Backend) SetCart(token string, items ...domain.CartItem) {
	b.m.Lock()
	defer b.m.Unlock()
	b.carts[token] = append([]domain.CartItem{}, items...)
}

func (b *Backend) Cart(token string) []domain.CartItem {
	b.m.RLock()
	defer b.m.RUnlock()
	return append([]domain.CartItem{}, b.carts[token]...)
}

func (b *Backend) Orders() []domain.Order {
	b.m.RLock()
	defer b.m.RUnlock()
	return append([]domain.Order(nil), b.orders...)
}

// FailNext makes the next calls to "METHOD /path" answer with the given
// statuses, one per call.
func (b *Backend) FailNext(route string, statuses ...int) {
	b.m.Lock()
	defer b.m.Unlock()
	b.failures[route] = append(b.failures[route], statuses...)
}

// AckNext makes the next n calls to "METHOD /path" apply their change but
// answer with a message instead of the cart.
func (b *Backend) AckNext(route string, n int) {
	b.m.Lock()
	defer b.m.Unlock()
	b.acks[route] += n
}

func (b *Backend) Requests() []Request {
	b.m.RLock()
	defer b.m.RUnlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests matched "METHOD /path".
func (b *Backend) Count(route string) int {
	b.m.RLock()
	defer b.m.RUnlock()
	n := 0
	for _, r := range b.requests {
		if r.Method+" "+r.Path == route {
			n++
		}
	}
	return n
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")
		route := r.Method + " " + path

		b.m.Lock()
		b.requests = append(b.requests, Request{
			Method:        r.Method,
			Path:          path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		var status int
		if queued := b.failures[route]; len(queued) > 0 {
			status, b.failures[route] = queued[0], queued[1:]
		}
		ackOnly := status == 0 && b.acks[route] > 0
		if ackOnly {
			b.acks[route]--
		}
		b.m.Unlock()

		if status != 0 {
			respondJSON(w, status, map[string]any{"message": fmt.Sprintf("injected %d", status)})
			return
		}
		if ackOnly {
			r = r.WithContext(context.WithValue(r.Context(), ackOnlyKey{}, true))
		}
		next.ServeHTTP(w, r)
	})
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token(r) == "" {
			respondJSON(w, http.StatusUnauthorized, map[string]any{"message": "Not authorized, no token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func token(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (b *Backend) listProducts(w http.ResponseWriter, r *http.Request) {
	b.m.RLock()
	products := append([]domain.Product{}, b.products...)
	shape := b.shape
	b.m.RUnlock()

	switch shape {
	case ShapeBareArray:
		respondJSON(w, http.StatusOK, products)
	case ShapeDataKey:
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "data": products})
	default:
		respondJSON(w, http.StatusOK, map[string]any{"products": products})
	}
}

func (b *Backend) getCart(w http.ResponseWriter, r *http.Request) {
	b.respondCart(w, r)
}

func (b *Backend) saveCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []domain.CartItem `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}
	b.m.Lock()
	b.carts[token(r)] = append([]domain.CartItem{}, req.Items...)
	b.m.Unlock()
	b.respondCart(w, r)
}

func (b *Backend) clearCart(w http.ResponseWriter, r *http.Request) {
	b.m.Lock()
	b.carts[token(r)] = []domain.CartItem{}
	b.m.Unlock()
	b.respondCart(w, r)
}

func (b *Backend) addItem(w http.ResponseWriter, r *http.Request) {
	var item domain.CartItem
	if !decode(w, r, &item) {
		return
	}
	if item.ID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Validation failed",
			"errors":  []map[string]string{{"param": "_id", "msg": "Product ID is required"}},
		})
		return
	}
	b.m.Lock()
	b.carts[token(r)] = mergeItems(b.carts[token(r)], []domain.CartItem{item})
	b.m.Unlock()
	b.respondCart(w, r)
}

func (b *Backend) updateItem(w http.ResponseWriter, r *http.Request) {
	var update struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &update) {
		return
	}
	id := chi.URLParam(r, "id")

	b.m.Lock()
	items := b.carts[token(r)]
	found := false
	for i := range items {
		if items[i].ID == id {
			items[i].Quantity = update.Quantity
			found = true
		}
	}
	b.m.Unlock()

	if !found {
		respondJSON(w, http.StatusNotFound, map[string]any{"message": "Item not found in cart"})
		return
	}
	b.respondCart(w, r)
}

func (b *Backend) removeItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.m.Lock()
	items := b.carts[token(r)]
	kept := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	b.carts[token(r)] = kept
	b.m.Unlock()
	b.respondCart(w, r)
}

func (b *Backend) mergeCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []domain.CartItem `json:"items"`
	}
	if !decode(w, r, &req) {
		return
	}
	b.m.Lock()
	b.carts[token(r)] = mergeItems(b.carts[token(r)], req.Items)
	b.m.Unlock()
	b.respondCart(w, r)
}

func (b *Backend) placeOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if !decode(w, r, &order) {
		return
	}
	if len(order.OrderItems) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{"message": "No order items"})
		return
	}

	b.m.Lock()
	b.orders = append(b.orders, order)
	id := fmt.Sprintf("order-%d", len(b.orders))
	b.m.Unlock()

	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data": map[string]any{
			"_id":        id,
			"status":     "pending",
			"totalPrice": order.TotalPrice,
		},
	})
}

// mergeItems sums quantities by product id, capped at the item's stock.
func mergeItems(cart, incoming []domain.CartItem) []domain.CartItem {
	out := append([]domain.CartItem{}, cart...)
	for _, in := range incoming {
		merged := false
		for i := range out {
			if out[i].ID == in.ID {
				out[i].Quantity = min(out[i].Quantity+in.Quantity, in.Stock)
				out[i].Stock = in.Stock
				merged = true
			}
		}
		if !merged {
			out = append(out, in)
		}
	}
	return out
}

func (b *Backend) respondCart(w http.ResponseWriter, r *http.Request) {
	if ack, _ := r.Context().Value(ackOnlyKey{}).(bool); ack {
		respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok"})
		return
	}
	b.m.RLock()
	items := append([]domain.CartItem{}, b.carts[token(r)]...)
	b.m.RUnlock()
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"items": items},
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid JSON body"})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
