package models

import (
	"sort"
	"strings"
)

// Venue names used as keys in the symbol table.
const (
	VenueCoinDCX = "coindcx"
	VenueBinance = "binance"
)

// SymbolTable maps a canonical symbol to the market identifier each venue
// uses for it, e.g. BTC -> {coindcx: BTCINR, binance: BTCUSDT}.
type SymbolTable map[string]map[string]string

// DefaultSymbolTable returns the pairs tracked when no configuration overrides them.
func DefaultSymbolTable() SymbolTable {
	table := SymbolTable{}
	for _, symbol := range []string{"BTC", "ETH", "XRP", "SOL", "ADA", "DOGE"} {
		table[symbol] = map[string]string{
			VenueCoinDCX: symbol + "INR",
			VenueBinance: symbol + "USDT",
		}
	}
	return table
}

// Normalize upper-cases symbols and market ids and lower-cases venue names.
// Config loaders fold map keys to lower case, so every loaded table goes through here.
func (t SymbolTable) Normalize() SymbolTable {
	out := make(SymbolTable, len(t))
	for symbol, markets := range t {
		normalized := make(map[string]string, len(markets))
		for venue, market := range markets {
			normalized[strings.ToLower(strings.TrimSpace(venue))] = strings.ToUpper(strings.TrimSpace(market))
		}
		out[strings.ToUpper(strings.TrimSpace(symbol))] = normalized
	}
	return out
}

// Symbols returns the canonical symbols in lexical order.
func (t SymbolTable) Symbols() []string {
	symbols := make([]string, 0, len(t))
	for symbol := range t {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// MarketIndex returns the reverse lookup market id -> canonical symbol for one venue.
// Symbols with no market on the venue are left out.
func (t SymbolTable) MarketIndex(venue string) map[string]string {
	index := make(map[string]string, len(t))
	for symbol, markets := range t {
		if market, ok := markets[venue]; ok && market != "" {
			index[market] = symbol
		}
	}
	return index
}
