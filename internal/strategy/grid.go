package strategy

import "kitetrader/internal/domain"

// GridResult is the outcome of one parameter set in a grid search.
type GridResult struct {
	Params Params `json:"params"`
	Stats  Stats  `json:"stats"`
}

// GridSearch regenerates signals and reruns the backtest for every
// parameter set in grid, in order.
func (bt *Backtester) GridSearch(candles []domain.Candle, higherTF []float64, grid []Params, opts BacktestOptions) []GridResult {
	results := make([]GridResult, 0, len(grid))
	for _, p := range grid {
		res := bt.Run(Generate(candles, p, higherTF), opts)
		bt.logger.Info("grid point",
			"fast_ema", p.FastEMA,
			"slow_ema", p.SlowEMA,
			"trades", res.Stats.Trades,
			"total_pnl", res.Stats.TotalPnL,
		)
		results = append(results, GridResult{Params: p, Stats: res.Stats})
	}
	return results
}
