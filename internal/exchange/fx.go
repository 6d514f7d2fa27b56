package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/config"
)

type latestRatesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]json.RawMessage `json:"rates"`
}

// FXClient reads conversion rates from an exchangerate-api style endpoint.
type FXClient struct {
	url    string
	quote  string
	client *Client
}

// NewFXClient creates a client for the rate endpoint in cfg. Rate lookups are
// attempted once; the caller keeps its previous value on failure.
func NewFXClient(cfg config.FXConfig, logger *logrus.Logger) *FXClient {
	return &FXClient{
		url:   cfg.URL,
		quote: strings.ToUpper(cfg.Quote),
		client: NewClient(ClientConfig{
			Name:    "fx",
			Timeout: cfg.Timeout(),
			Retry:   RetryPolicy{MaxAttempts: 1},
		}, logger),
	}
}

// FetchRate returns the value of one base unit in the quote currency. A
// missing, non-numeric or non-positive quote entry is an error.
func (c *FXClient) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	body, err := c.client.Get(ctx, c.url)
	if err != nil {
		return decimal.Zero, err
	}

	var resp latestRatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("fx: failed to decode rates: %w", err)
	}

	raw, ok := resp.Rates[c.quote]
	if !ok {
		return decimal.Zero, fmt.Errorf("fx: no %s rate in response", c.quote)
	}
	rate := ParseDecimal(raw)
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx: invalid %s rate %s", c.quote, string(raw))
	}
	return rate, nil
}
