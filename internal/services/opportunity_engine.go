package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/logging"
	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

var (
	hundred          = decimal.NewFromInt(100)
	volumeSaturation = decimal.NewFromInt(1_000_000)
	spreadSaturation = decimal.NewFromInt(5)
	two              = decimal.NewFromInt(2)
)

// EngineConfig bounds the spreads worth reporting, in percent.
type EngineConfig struct {
	MinSpreadPercent decimal.Decimal
	MaxSpreadPercent decimal.Decimal
}

// OpportunityEngine turns two price snapshots and a conversion rate into a
// ranked list of opportunities.
type OpportunityEngine struct {
	config EngineConfig
	logger *logging.StandardLogger
	now    func() time.Time
}

// NewOpportunityEngine creates an engine. Zero bounds fall back to 0.5% and 10%.
func NewOpportunityEngine(cfg EngineConfig, logger *logrus.Logger) *OpportunityEngine {
	if !cfg.MinSpreadPercent.IsPositive() {
		cfg.MinSpreadPercent = decimal.NewFromFloat(0.5)
	}
	if !cfg.MaxSpreadPercent.GreaterThan(cfg.MinSpreadPercent) {
		cfg.MaxSpreadPercent = decimal.NewFromInt(10)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OpportunityEngine{config: cfg, logger: logging.WrapLogger(logger), now: time.Now}
}

// Evaluate compares every symbol quoted on both venues. venueA is in the
// rupee quote and is divided by rate before comparison with venueB. The
// result is sorted by absolute spread, largest first, then by symbol.
func (e *OpportunityEngine) Evaluate(venueA, venueB models.PriceMap, rate models.ConversionRate) []models.Opportunity {
	opportunities := make([]models.Opportunity, 0)
	if !rate.IsPositive() {
		e.logger.WithComponent("opportunity_engine").WithField("rate", rate.Rate.String()).Warn("Skipping evaluation: conversion rate is not positive")
		return opportunities
	}

	detectedAt := e.now().UTC()
	for _, symbol := range venueA.Symbols() {
		priceA := venueA[symbol]
		priceB, ok := venueB[symbol]
		if !ok {
			continue
		}
		if opp, ok := e.evaluateSymbol(priceA, priceB, rate.Rate, detectedAt); ok {
			opportunities = append(opportunities, opp)
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		ai := opportunities[i].SpreadPercent.Abs()
		aj := opportunities[j].SpreadPercent.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return opportunities[i].Symbol < opportunities[j].Symbol
	})
	return opportunities
}

func (e *OpportunityEngine) evaluateSymbol(priceA, priceB models.Price, rate decimal.Decimal, detectedAt time.Time) (models.Opportunity, bool) {
	if !priceB.Amount.IsPositive() {
		e.logger.WithSymbol(priceB.Symbol).WithField("venue", priceB.Venue).Debug("Skipping symbol with zero reference price")
		return models.Opportunity{}, false
	}

	normalizedA := priceA.Amount.Div(rate)
	spread := normalizedA.Sub(priceB.Amount).Div(priceB.Amount).Mul(hundred)
	absSpread := spread.Abs()

	if absSpread.GreaterThan(e.config.MaxSpreadPercent) {
		return models.Opportunity{}, false
	}

	var signal models.Signal
	switch {
	case spread.GreaterThan(e.config.MinSpreadPercent):
		signal = models.SignalSell
	case spread.LessThan(e.config.MinSpreadPercent.Neg()):
		signal = models.SignalBuy
	default:
		return models.Opportunity{}, false
	}

	return models.Opportunity{
		Symbol:             priceA.Symbol,
		INRPrice:           priceA.Amount,
		USDPrice:           priceB.Amount,
		INRPriceNormalized: normalizedA,
		SpreadPercent:      spread,
		Signal:             signal,
		Timestamp:          detectedAt,
		Confidence:         Confidence(priceA.Volume24h, absSpread),
	}, true
}

// Confidence averages a volume factor and a spread factor, each capped at 1.
// It is a ranking aid, not a probability.
func Confidence(volume, absSpread decimal.Decimal) float64 {
	volumeFactor := decimal.Min(volume.Div(volumeSaturation), decimal.NewFromInt(1))
	spreadFactor := decimal.Min(absSpread.Abs().Div(spreadSaturation), decimal.NewFromInt(1))
	if volumeFactor.IsNegative() {
		volumeFactor = decimal.Zero
	}
	return volumeFactor.Add(spreadFactor).Div(two).InexactFloat64()
}
