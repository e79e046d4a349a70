package broker

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

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tradehook/internal/metrics"
	"tradehook/internal/strategy"
)

// Client sends buy/close orders to a strategy owner's broker webhook.
//
// Each call makes up to MaxAttempts POSTs with a constant RetryDelay between
// them. A "ValidationError" answer is final; timeouts, connection errors and
// unexpected bodies are retried. Every attempt is appended to the strategy's
// call history.
type Client struct {
	HTTP        *http.Client
	Resolver    Resolver
	MaxAttempts int
	RetryDelay  time.Duration
	Limiter     *rate.Limiter
	Logger      *zap.Logger
	Metrics     *metrics.Metrics

	Now func() time.Time
	// Timer paces the retries; nil uses a real timer.
	Timer backoff.Timer
}

// Buy orders qty shares of symbol. On success the fill price is taken from
// the broker answer and may be nil if the broker omitted it.
func (c *Client) Buy(ctx context.Context, s *strategy.Strategy, symbol string, qty int64) (Fill, error) {
	q := qty
	return c.send(ctx, s, OrderRequest{Symbol: symbol, Action: ActionBuy, Quantity: &q})
}

// Close flattens the strategy's position in symbol. "accepted" without fill
// fields means there was nothing to close and is reported as success.
func (c *Client) Close(ctx context.Context, s *strategy.Strategy, symbol string) (Fill, error) {
	fill, err := c.send(ctx, s, OrderRequest{Symbol: symbol, Action: ActionClose})
	if err != nil {
		return fill, err
	}
	if fill.Status == StatusAccepted {
		fill.Price, fill.Quantity = nil, nil
	}
	return fill, nil
}

func (c *Client) send(ctx context.Context, s *strategy.Strategy, req OrderRequest) (Fill, error) {
	if s == nil {
		return Fill{}, errors.New("nil strategy")
	}
	endpoint, err := c.resolve(ctx, s.Owner())
	if err != nil {
		c.logger().Error("no broker endpoint",
			zap.String("owner", s.Owner()),
			zap.String("strategy", s.Name()),
			zap.Error(err),
		)
		return Fill{Raw: map[string]any{"status": "error", "message": err.Error()}}, err
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	fields := []zap.Field{
		zap.String("owner", s.Owner()),
		zap.String("strategy", s.Name()),
		zap.String("symbol", req.Symbol),
		zap.String("action", req.Action),
	}
	if req.Quantity != nil {
		fields = append(fields, zap.Int64("quantity", *req.Quantity))
	}

	attempt := 0
	op := func() (Fill, error) {
		attempt++
		attemptFields := append(fields[:len(fields):len(fields)], zap.Int("attempt", attempt), zap.Int("max_attempts", attempts))
		c.logger().Info("broker request", attemptFields...)

		httpStatus, body, err := c.post(ctx, endpoint, req)
		if err != nil {
			s.AddAPICall(req.asMap(), map[string]any{"error": err.Error()}, c.now())
			c.Metrics.BrokerCall(req.Action, "transient")
			c.logger().Warn("broker request failed", append(attemptFields, zap.Error(err))...)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Fill{}, backoff.Permanent(ctxErr)
			}
			return Fill{}, err
		}
		s.AddAPICall(req.asMap(), body, c.now())
		switch classify(httpStatus, body) {
		case outcomeSuccess:
			status, _ := body["status"].(string)
			c.Metrics.BrokerCall(req.Action, status)
			c.logger().Info("broker response", append(attemptFields, zap.String("status", status))...)
			return Fill{
				Status:   status,
				Price:    decimalField(body, "price"),
				Quantity: decimalField(body, "quantity"),
				Raw:      body,
			}, nil
		case outcomeRejected:
			c.Metrics.BrokerCall(req.Action, "rejected")
			msg, _ := body["message"].(string)
			c.logger().Error("broker validation error", append(attemptFields, zap.String("message", msg))...)
			return Fill{Raw: body}, backoff.Permanent(fmt.Errorf("%w: %s", ErrOrderRejected, msg))
		default:
			c.Metrics.BrokerCall(req.Action, "transient")
			c.logger().Warn("unexpected broker response",
				append(attemptFields, zap.Int("http_status", httpStatus), zap.Any("body", body))...)
			return Fill{}, fmt.Errorf("unexpected broker response: http %d", httpStatus)
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.RetryDelay), uint64(attempts-1)),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		c.logger().Info("broker retry scheduled", append(fields[:len(fields):len(fields)], zap.Duration("delay", next), zap.Error(err))...)
	}
	fill, err := backoff.RetryNotifyWithTimerAndData(op, policy, notify, c.Timer)
	switch {
	case err == nil, errors.Is(err, ErrOrderRejected):
		return fill, err
	case ctx.Err() != nil:
		return Fill{Raw: map[string]any{"status": "error", "message": err.Error()}}, err
	}

	c.logger().Error("broker max retries exceeded", fields...)
	return Fill{Raw: map[string]any{"status": "error", "message": "max retries exceeded"}},
		fmt.Errorf("%w: %s %s after %d attempts: %v", ErrRetriesExhausted, req.Action, req.Symbol, attempts, err)
}

// post returns the HTTP status and decoded body, or an error for transport
// failures and bodies that are not a JSON object.
func (c *Client) post(ctx context.Context, endpoint string, req OrderRequest) (int, map[string]any, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(hreq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	body, err := decodeBody(raw)
	if err != nil {
		return resp.StatusCode, nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp.StatusCode, body, nil
}

func (c *Client) resolve(ctx context.Context, owner string) (string, error) {
	if c.Resolver == nil {
		return "", fmt.Errorf("%w for owner %s", ErrNoEndpoint, owner)
	}
	url, err := c.Resolver.ResolveEndpoint(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrNoEndpoint) {
			return "", fmt.Errorf("%w for owner %s", ErrNoEndpoint, owner)
		}
		return "", err
	}
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("%w for owner %s", ErrNoEndpoint, owner)
	}
	return url, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}
