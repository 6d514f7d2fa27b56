package exchange

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/config"
)

type binanceTicker struct {
	Symbol    json.RawMessage `json:"symbol"`
	LastPrice json.RawMessage `json:"lastPrice"`
	Volume    json.RawMessage `json:"volume"`
}

// DecodeBinanceTicker reads a record of the Binance /api/v3/ticker/24hr list.
func DecodeBinanceTicker(raw json.RawMessage) (Ticker, error) {
	var rec binanceTicker
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Ticker{}, err
	}
	market := strings.ToUpper(ParseString(rec.Symbol))
	if market == "" {
		return Ticker{}, errors.New("binance ticker without symbol")
	}
	return Ticker{
		Market:    market,
		LastPrice: ParseDecimal(rec.LastPrice),
		Volume:    ParseDecimal(rec.Volume),
	}, nil
}

// NewBinanceFetcher creates the dollar venue fetcher.
func NewBinanceFetcher(cfg config.VenueConfig, logger *logrus.Logger) *VenueFetcher {
	return NewVenueFetcher(cfg, DecodeBinanceTicker, logger)
}
