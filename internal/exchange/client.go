package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	userAgent = "Celebrum-INR-Arb/1.0"
	// maxTimeout caps every upstream call regardless of configuration.
	maxTimeout = 30 * time.Second
	// maxBodyBytes bounds how much of a response is read.
	maxBodyBytes = 32 << 20
	// errorBodyPreview bounds how much of an error response is kept.
	errorBodyPreview = 256
)

// ClientConfig configures one upstream HTTP client.
type ClientConfig struct {
	Name            string
	Timeout         time.Duration
	MinCallInterval time.Duration
	Retry           RetryPolicy
}

// Client issues GET requests against one upstream host with per-client rate
// limiting and retry with exponential backoff.
type Client struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	logger     *logrus.Logger
}

// NewClient creates a client. A zero MinCallInterval disables rate limiting.
func NewClient(cfg ClientConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > maxTimeout {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	limit := rate.Inf
	if cfg.MinCallInterval > 0 {
		limit = rate.Every(cfg.MinCallInterval)
	}

	return &Client{
		name: cfg.Name,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		retry:   cfg.Retry.withDefaults(),
		logger:  logger,
	}
}

// Name returns the upstream name the client was built for.
func (c *Client) Name() string {
	return c.name
}

// Get fetches url and returns the response body. Transport errors and non-2xx
// responses are retried under the client's RetryPolicy; the last error is
// returned once attempts are exhausted or ctx is done.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, span := otel.Tracer("exchange").Start(ctx, "exchange.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("venue", c.name),
		attribute.String("http.url", url),
	)

	attempts := 0
	operation := func() ([]byte, error) {
		attempts++
		body, err := c.doGet(ctx, url)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return body, err
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.retry.backOff()),
		backoff.WithMaxTries(uint(c.retry.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.WithFields(logrus.Fields{
				"venue":   c.name,
				"attempt": attempts,
				"wait_ms": wait.Milliseconds(),
				"error":   err.Error(),
			}).Warn("Upstream request failed, retrying")
		}),
	)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: request failed after %d attempt(s): %w", c.name, attempts, err)
	}
	return body, nil
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := string(body)
		if len(preview) > errorBodyPreview {
			preview = preview[:errorBodyPreview]
		}
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: preview}
	}
	return body, nil
}
