package exchange

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/config"
)

type coinDCXTicker struct {
	Market    json.RawMessage `json:"market"`
	LastPrice json.RawMessage `json:"last_price"`
	Volume    json.RawMessage `json:"volume"`
}

// DecodeCoinDCXTicker reads a record of the CoinDCX /exchange/ticker list.
func DecodeCoinDCXTicker(raw json.RawMessage) (Ticker, error) {
	var rec coinDCXTicker
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Ticker{}, err
	}
	market := strings.ToUpper(ParseString(rec.Market))
	if market == "" {
		return Ticker{}, errors.New("coindcx ticker without market")
	}
	return Ticker{
		Market:    market,
		LastPrice: ParseDecimal(rec.LastPrice),
		Volume:    ParseDecimal(rec.Volume),
	}, nil
}

// NewCoinDCXFetcher creates the rupee venue fetcher.
func NewCoinDCXFetcher(cfg config.VenueConfig, logger *logrus.Logger) *VenueFetcher {
	return NewVenueFetcher(cfg, DecodeCoinDCXTicker, logger)
}
