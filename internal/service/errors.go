package service

import "errors"

var (
	ErrNotAuthenticated = errors.New("sign in to place an order")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNoValidItems     = errors.New("no valid items in cart")
)
