package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "http://localhost:5000/api"
	DefaultTimeout = 10 * time.Second

	maxBodySize = 4 << 20 // 4MB
)

// TokenSource supplies the bearer token for the current session. An empty
// token means the request is sent anonymously.
type TokenSource interface {
	Token() string
}

type Config struct {
	BaseURL string
	Timeout time.Duration

	// Breaker trips after this many consecutive failures and stays open for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client talks to the storefront REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     logrus.FieldLogger
}

func New(cfg Config, tokens TokenSource, log logrus.FieldLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens: tokens,
		log:    log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	})
	return c
}

// do sends a request and returns the raw response body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, in)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrCircuitOpen)
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, body)
		c.log.WithFields(logrus.Fields{
			"method":     method,
			"path":       path,
			"status":     resp.StatusCode,
			"request_id": requestID,
		}).Debug("backend rejected request")
		return nil, apiErr
	}
	return body, nil
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}
	switch {
	case eb.Message != "":
		apiErr.Message = eb.Message
	case eb.Error != "":
		apiErr.Message = eb.Error
	}
	apiErr.Fields = eb.Errors
	return apiErr
}
