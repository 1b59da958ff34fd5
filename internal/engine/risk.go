package engine

import (
	"errors"
	"fmt"
	"math"
)

// DefaultMaxContracts caps ComputeQuantity when no limit is configured.
const DefaultMaxContracts = 1000

// ErrSizing is returned when the configured risk does not buy a single
// contract.
var ErrSizing = errors.New("position size below one contract")

// ComputeQuantity returns the number of whole contracts whose stop-loss risk
// fits within capital*riskPct. It returns 0 when the risk per contract is
// not positive or the result is below one, and never more than maxContracts
// (DefaultMaxContracts when non-positive).
func ComputeQuantity(capital, riskPct, slTicks, tickValue float64, maxContracts int) int {
	if maxContracts <= 0 {
		maxContracts = DefaultMaxContracts
	}
	riskPerContract := slTicks * tickValue
	if !(riskPerContract > 0) {
		return 0
	}
	contracts := math.Floor(capital * riskPct / riskPerContract)
	if contracts < 1 {
		return 0
	}
	if contracts > float64(maxContracts) {
		return maxContracts
	}
	return int(contracts)
}

// RiskManager sizes live entries from a fixed capital and risk budget.
type RiskManager struct {
	capital      float64
	riskPct      float64
	slTicks      float64
	tickValue    float64
	maxContracts int
}

// NewRiskManager creates a RiskManager.
//
//   - riskPct: fraction of capital risked per trade (e.g. 0.02 for 2%).
//   - slTicks, tickValue: stop distance in ticks and rupee value per tick
//     per contract.
func NewRiskManager(capital, riskPct, slTicks, tickValue float64, maxContracts int) *RiskManager {
	return &RiskManager{
		capital:      capital,
		riskPct:      riskPct,
		slTicks:      slTicks,
		tickValue:    tickValue,
		maxContracts: maxContracts,
	}
}

// Size returns the contract count for the next entry, or an error wrapping
// ErrSizing when it is zero.
func (rm *RiskManager) Size() (int, error) {
	n := ComputeQuantity(rm.capital, rm.riskPct, rm.slTicks, rm.tickValue, rm.maxContracts)
	if n < 1 {
		return 0, fmt.Errorf("%w: capital %.2f, risk %.4f, %.0f ticks at %.2f",
			ErrSizing, rm.capital, rm.riskPct, rm.slTicks, rm.tickValue)
	}
	return n, nil
}
