package strategy

import (
	"log/slog"
	"time"

	"kitetrader/internal/domain"
	"kitetrader/internal/indicator"
	"kitetrader/internal/util"
)

// BacktestOptions configures a same-day backtest run.
type BacktestOptions struct {
	Capital float64

	// SLTicks and TargetTicks select fixed tick stops when both are set.
	// Otherwise stops are derived from ATR.
	SLTicks     *float64
	TargetTicks *float64
	TickValue   float64

	// MaxHoldCandles closes a position after this many bars. Zero disables
	// the time exit.
	MaxHoldCandles int

	SLATRMult float64
	RR        float64

	RiskPerTradePct float64
	Commission      float64
	SlippagePct     float64

	Session          *util.TradingCalendar
	BlockLastMinutes int
}

// Defaults applied by Run to options left at zero. Commission, slippage and
// the close-block window keep an explicit zero.
const (
	DefaultBacktestCapital = 100000
	DefaultRiskPerTradePct = 0.01
)

// DefaultSession returns the 09:00-23:30 Asia/Kolkata session.
func DefaultSession() *util.TradingCalendar {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	return &util.TradingCalendar{
		Location: loc,
		Open:     util.Clock{Hour: 9},
		Close:    util.Clock{Hour: 23, Minute: 30},
	}
}

func (o BacktestOptions) withDefaults() BacktestOptions {
	if o.Capital <= 0 {
		o.Capital = DefaultBacktestCapital
	}
	if o.RiskPerTradePct <= 0 {
		o.RiskPerTradePct = DefaultRiskPerTradePct
	}
	if o.Session == nil {
		o.Session = DefaultSession()
	}
	if o.TickValue <= 0 {
		o.TickValue = 10
	}
	if o.SLATRMult <= 0 {
		o.SLATRMult = 1.5
	}
	if o.RR <= 0 {
		o.RR = 1.5
	}
	return o
}

func (o BacktestOptions) tickStops() bool {
	return o.SLTicks != nil && o.TargetTicks != nil
}

// BacktestResult is the outcome of one run.
type BacktestResult struct {
	Trades []domain.Trade
	Stats  Stats
}

// Backtester replays signal-annotated bars through a single-position,
// intraday state machine. A signal on bar i is executed on bar i+1.
type Backtester struct {
	logger *slog.Logger
}

// NewBacktester creates a Backtester. A nil logger uses slog.Default().
func NewBacktester(logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{logger: logger.With("component", "backtest")}
}

// Run simulates trading over bars. It is deterministic and never leaves a
// position open: whatever is still held after the last bar is closed at the
// final bar of its entry day.
func (bt *Backtester) Run(bars []Bar, opts BacktestOptions) BacktestResult {
	opts = opts.withDefaults()
	cal := opts.Session

	equity := opts.Capital
	var pos *domain.Position
	var trades []domain.Trade

	closeAt := func(exitPrice float64, exitTime time.Time, reason domain.ExitReason) {
		pnl := (exitPrice - pos.EntryPrice) * pos.Size
		if pos.Side == domain.SideShort {
			pnl = (pos.EntryPrice - exitPrice) * pos.Size
		}
		pnl -= opts.Commission
		equity += pnl
		trades = append(trades, domain.Trade{
			EntryTime:  pos.EntryTime,
			ExitTime:   exitTime,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  exitPrice,
			Side:       pos.Side,
			Size:       pos.Size,
			PnL:        pnl,
			ExitReason: reason,
		})
		pos = nil
	}

	for i := 0; i+1 < len(bars); i++ {
		row, next := bars[i], bars[i+1]

		if !cal.IsMarketOpen(row.Timestamp) {
			continue
		}

		// -- Entry --
		if pos == nil {
			side, ok := row.Signal.Side()
			if ok && cal.MinutesToClose(row.Timestamp, next.Timestamp) > opts.BlockLastMinutes {
				p, skip := bt.open(side, row, next, i+1, equity, opts)
				if skip {
					continue
				}
				pos = p
			}
		}

		// -- Exit, evaluated on the execution bar --
		if pos == nil {
			continue
		}
		pos.CandlesHeld++

		slip := 1 - opts.SlippagePct
		if pos.Side == domain.SideShort {
			slip = 1 + opts.SlippagePct
		}
		stopHit := next.Low <= pos.StopPrice
		targetHit := next.High >= pos.TargetPrice
		if pos.Side == domain.SideShort {
			stopHit = next.High >= pos.StopPrice
			targetHit = next.Low <= pos.TargetPrice
		}

		switch {
		case stopHit:
			closeAt(pos.StopPrice*slip, next.Timestamp, domain.ExitStop)
		case targetHit:
			closeAt(pos.TargetPrice*slip, next.Timestamp, domain.ExitTarget)
		case opts.MaxHoldCandles > 0 && pos.CandlesHeld >= opts.MaxHoldCandles:
			closeAt(next.Close*slip, next.Timestamp, domain.ExitTime)
		case !next.Timestamp.Before(cal.CloseOn(row.Timestamp)):
			closeAt(next.Close*slip, next.Timestamp, domain.ExitMarketClose)
		}
	}

	if pos != nil {
		var last Bar
		for _, b := range bars {
			if cal.SameDay(b.Timestamp, pos.EntryTime) {
				last = b
			}
		}
		slip := 1 - opts.SlippagePct
		if pos.Side == domain.SideShort {
			slip = 1 + opts.SlippagePct
		}
		closeAt(last.Close*slip, last.Timestamp, domain.ExitMarketCloseFinal)
	}

	stats := ComputeStats(trades, equity)
	bt.logger.Debug("backtest complete",
		"bars", len(bars),
		"trades", stats.Trades,
		"total_pnl", stats.TotalPnL,
	)
	return BacktestResult{Trades: trades, Stats: stats}
}

// open builds a position for side entered on next. skip is true when the
// stop or target would be non-positive, or the risk per unit is not
// positive.
func (bt *Backtester) open(side domain.Side, row, next Bar, index int, equity float64, opts BacktestOptions) (*domain.Position, bool) {
	entry := next.Open * (1 + opts.SlippagePct)
	if side == domain.SideShort {
		entry = next.Open * (1 - opts.SlippagePct)
	}

	var stop, target, riskPerUnit float64
	if opts.tickStops() {
		slDist := *opts.SLTicks * opts.TickValue
		tgtDist := *opts.TargetTicks * opts.TickValue
		if side == domain.SideLong {
			stop, target = entry-slDist, entry+tgtDist
			if stop <= 0 {
				return nil, true
			}
		} else {
			stop, target = entry+slDist, entry-tgtDist
			if target <= 0 {
				return nil, true
			}
		}
		riskPerUnit = slDist
	} else {
		atr := next.ATR
		if atr == 0 || indicator.IsMissing(atr) {
			atr = row.ATR
		}
		if side == domain.SideLong {
			stop = entry - opts.SLATRMult*atr
			if stop <= 0 {
				return nil, true
			}
			riskPerUnit = entry - stop
			target = entry + opts.RR*riskPerUnit
		} else {
			stop = entry + opts.SLATRMult*atr
			riskPerUnit = stop - entry
			target = entry - opts.RR*riskPerUnit
			if target <= 0 {
				return nil, true
			}
		}
	}

	if !(riskPerUnit > 0) {
		bt.logger.Debug("entry skipped: non-positive risk per unit", "time", next.Timestamp)
		return nil, true
	}

	return &domain.Position{
		Side:        side,
		EntryPrice:  entry,
		StopPrice:   stop,
		TargetPrice: target,
		Size:        equity * opts.RiskPerTradePct / riskPerUnit,
		EntryTime:   next.Timestamp,
		EntryIndex:  index,
	}, false
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// Stats aggregates a run's trades. AvgLoss is the mean of the losing PnLs
// and is therefore negative or zero.
type Stats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	TotalPnL    float64 `json:"total_pnl"`
	FinalEquity float64 `json:"final_equity"`
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
}

// ProfitFactor returns |AvgWin/AvgLoss|, or 0 when either is zero.
func (s Stats) ProfitFactor() float64 {
	if s.AvgWin == 0 || s.AvgLoss == 0 {
		return 0
	}
	pf := s.AvgWin / s.AvgLoss
	if pf < 0 {
		pf = -pf
	}
	return pf
}

// ComputeStats summarizes trades. Every ratio is 0 when its denominator
// would be empty.
func ComputeStats(trades []domain.Trade, finalEquity float64) Stats {
	s := Stats{Trades: len(trades), FinalEquity: finalEquity}
	var winSum, lossSum float64
	for _, t := range trades {
		s.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			s.Wins++
			winSum += t.PnL
		case t.PnL < 0:
			s.Losses++
			lossSum += t.PnL
		}
	}
	if s.Trades == 0 {
		return s
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	s.AvgWin = winSum / float64(max(1, s.Wins))
	s.AvgLoss = lossSum / float64(max(1, s.Losses))
	return s
}
