// Package builtins provides the signal strategies that ship with the
// trading engine.
package builtins

import (
	"kitetrader/internal/domain"
	"kitetrader/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*TrendConfirm)(nil)

// TrendConfirmName is the registry key of TrendConfirm.
const TrendConfirmName = "trend-confirm"

// TrendConfirm emits a signal only when trend, MACD, RSI momentum and the
// candle direction all agree.
type TrendConfirm struct {
	params strategy.Params
}

// NewTrendConfirm creates a TrendConfirm with the given parameters. Zero
// fields use the generator defaults.
func NewTrendConfirm(p strategy.Params) *TrendConfirm {
	return &TrendConfirm{params: p}
}

// Name returns "trend-confirm".
func (s *TrendConfirm) Name() string {
	return TrendConfirmName
}

// Params returns the configured parameters.
func (s *TrendConfirm) Params() strategy.Params {
	return s.params
}

// Generate implements strategy.Strategy.
func (s *TrendConfirm) Generate(candles []domain.Candle, higherTF []float64) []strategy.Bar {
	return strategy.Generate(candles, s.params, higherTF)
}

// Register adds the built-in strategies, configured with p, to r.
func Register(r *strategy.Registry, p strategy.Params) {
	r.Register(NewTrendConfirm(p))
}
