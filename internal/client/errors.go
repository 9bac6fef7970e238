package client

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized = errors.New("not authorized")
	ErrCircuitOpen  = errors.New("backend unavailable, circuit open")
	// ErrNoCart is returned when a successful response carries no items.
	ErrNoCart = errors.New("response carried no cart")
)

// FieldError is a single validation failure reported by the backend.
type FieldError struct {
	Param string `json:"param"`
	Msg   string `json:"msg"`
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
	Fields  []FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Param + ": " + f.Msg
	}
	return fmt.Sprintf("backend returned %d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

func (e *APIError) Unwrap() error {
	if e.Status == 401 {
		return ErrUnauthorized
	}
	return nil
}

// clientError reports whether err is a 4xx response. These are caller
// mistakes and must not count against the backend's health.
func clientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

type errorBody struct {
	Message string       `json:"message"`
	Error   string       `json:"error"`
	Errors  []FieldError `json:"errors"`
}
