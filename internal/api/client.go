// Package api provides typed clients for the REST collaborators of the
// realtime monitor: the main video and prediction API, the model service,
// and the RTSP stream service that also stores violence events.
//
// Calls never return errors. Transport, HTTP and decode failures are folded
// into a Response with Success=false and Error set.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Pagination accompanies list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Response is the uniform envelope every collaborator returns.
type Response[T any] struct {
	Success    bool        `json:"success"`
	Data       T           `json:"data"`
	Error      string      `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

func failure[T any](err error) Response[T] {
	return Response[T]{Error: err.Error()}
}

// StatusError is a non-2xx reply whose body was not a usable envelope.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout of the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRetry retries idempotent requests up to attempts times on transport
// errors and 5xx replies, with exponential backoff.
func WithRetry(attempts uint) Option {
	return func(c *Client) { c.retries = attempts }
}

// WithRetryDelay sets the base backoff delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithCircuitBreaker trips after consecutive transport or 5xx failures and
// fails calls fast until the service recovers.
func WithCircuitBreaker(name string) Option {
	return func(c *Client) {
		c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the logger. Requests are logged at debug.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client makes REST calls against one collaborator base URL.
type Client struct {
	baseURL    string
	token      string
	client     *http.Client
	retries    uint
	retryDelay time.Duration
	cb         *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client targeting baseURL (e.g. "http://localhost:5000").
// A non-empty token is sent as a bearer credential.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		client:     &http.Client{Timeout: defaultTimeout},
		retries:    1,
		retryDelay: 100 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("base_url", c.baseURL))
	return c
}

// BaseURL returns the collaborator base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// requestFunc builds a fresh request for each attempt.
type requestFunc func(ctx context.Context) (*http.Request, error)

type reply struct {
	status int
	body   []byte
}

func (c *Client) get(path string, q url.Values) requestFunc {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.jsonRequest(http.MethodGet, path, nil)
}

func (c *Client) jsonRequest(method, path string, body []byte) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		c.setAuth(req)
		return req, nil
	}
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// getJSON issues an idempotent GET.
func getJSON[T any](ctx context.Context, c *Client, path string, q url.Values) Response[T] {
	return exchange[T](ctx, c, true, c.get(path, q))
}

// sendJSON issues a non-idempotent request with an optional JSON body.
func sendJSON[T any](ctx context.Context, c *Client, method, path string, body any) Response[T] {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return failure[T](fmt.Errorf("encode request: %w", err))
		}
	}
	return exchange[T](ctx, c, false, c.jsonRequest(method, path, data))
}

// exchange runs one logical call through the limiter, the breaker and the
// retrier, and folds the outcome into an envelope.
func exchange[T any](ctx context.Context, c *Client, idempotent bool, build requestFunc) Response[T] {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return failure[T](fmt.Errorf("rate limit: %w", err))
		}
	}

	var rep reply
	var err error
	if c.cb != nil {
		var v any
		v, err = c.cb.Execute(func() (any, error) {
			return c.attempt(ctx, idempotent, build)
		})
		if err == nil {
			rep = v.(reply)
		}
	} else {
		rep, err = c.attempt(ctx, idempotent, build)
	}

	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return decodeReply[T](se.Code, []byte(se.Body))
		}
		return failure[T](err)
	}
	return decodeReply[T](rep.status, rep.body)
}

// attempt performs the HTTP exchange, retrying idempotent requests.
// 5xx replies are returned as *StatusError so the breaker counts them.
func (c *Client) attempt(ctx context.Context, idempotent bool, build requestFunc) (reply, error) {
	attempts := uint(1)
	if idempotent && c.retries > 1 {
		attempts = c.retries
	}

	var rep reply
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
	err := r.Do(func() error {
		var err error
		rep, err = c.roundTrip(ctx, build)
		return err
	})
	return rep, err
}

func (c *Client) roundTrip(ctx context.Context, build requestFunc) (reply, error) {
	req, err := build(ctx)
	if err != nil {
		return reply{}, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return reply{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply{}, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 500 {
		return reply{}, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	return reply{status: resp.StatusCode, body: body}, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// decodeReply turns a status and body into an envelope. Non-2xx statuses
// are never reported as successful, whatever the body says.
func decodeReply[T any](status int, body []byte) Response[T] {
	trimmed := bytes.TrimSpace(body)
	var out Response[T]

	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			if status >= 300 {
				return failure[T](&StatusError{Code: status, Body: string(trimmed)})
			}
			return failure[T](fmt.Errorf("decode response: %w", err))
		}
	} else if status < 300 {
		out.Success = true
	}

	if status >= 300 {
		out.Success = false
		if out.Error == "" {
			out.Error = (&StatusError{Code: status}).Error()
		}
	}
	return out
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return q
}
