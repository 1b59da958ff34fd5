package main

import (
	"flag"
	"fmt"

	"kitetrader/internal/config"
)

// cliFlags are the command-line options. Only flags given explicitly
// override the configuration.
type cliFlags struct {
	configPath    string
	instrument    string
	tradingSymbol string
	interval      string
	timeframe     int
	days          int

	paper      bool
	noTimeExit bool
	refresh    bool
	dryRun     bool

	capital     float64
	slTicks     float64
	targetTicks float64
	riskPercent float64

	set map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, error) {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "config/kite-trader.yaml", "path to the YAML config file")
	fs.StringVar(&f.instrument, "instrument", "", "instrument token")
	fs.StringVar(&f.instrument, "i", "", "shorthand for --instrument")
	fs.StringVar(&f.tradingSymbol, "tradingsymbol", "", "trading symbol for orders, e.g. CRUDEOIL25JANFUT")
	fs.StringVar(&f.interval, "interval", "", "candle interval, e.g. 2minute")
	fs.IntVar(&f.timeframe, "timeframe", 0, "candle interval in minutes (ignored when --interval is set)")
	fs.IntVar(&f.days, "days", 0, "days of history to backtest")

	fs.BoolVar(&f.paper, "paper", false, "run the backtest instead of live trading")
	fs.BoolVar(&f.paper, "p", false, "shorthand for --paper")
	fs.BoolVar(&f.noTimeExit, "notimeexit", false, "disable the max-hold time exit in the backtest")
	fs.BoolVar(&f.noTimeExit, "nte", false, "shorthand for --notimeexit")
	fs.BoolVar(&f.refresh, "refresh", false, "ignore the candle cache")
	fs.BoolVar(&f.refresh, "r", false, "shorthand for --refresh")
	fs.BoolVar(&f.dryRun, "dry-run", false, "live loop with paper brackets instead of broker orders")

	fs.Float64Var(&f.capital, "capital", 0, "trading capital")
	fs.Float64Var(&f.slTicks, "sl-ticks", 0, "stop-loss distance in ticks")
	fs.Float64Var(&f.targetTicks, "target-ticks", 0, "target distance in ticks")
	fs.Float64Var(&f.riskPercent, "risk-percent", 0, "risk per trade in percent of capital, e.g. 1.4")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

func (f *cliFlags) given(names ...string) bool {
	for _, n := range names {
		if f.set[n] {
			return true
		}
	}
	return false
}

// apply overlays the explicitly given flags onto cfg. Risk settings apply
// to both the backtest and the live loop.
func (f *cliFlags) apply(cfg *config.Config) {
	if f.given("instrument", "i") {
		cfg.Trading.Instrument = f.instrument
	}
	if f.given("tradingsymbol") {
		cfg.Trading.TradingSymbol = f.tradingSymbol
	}
	switch {
	case f.given("interval"):
		cfg.Trading.Interval = f.interval
	case f.given("timeframe") && f.timeframe > 0:
		cfg.Trading.Interval = fmt.Sprintf("%dminute", f.timeframe)
	}
	if f.given("days") && f.days > 0 {
		cfg.Backtest.Days = f.days
	}

	if f.given("capital") {
		cfg.Backtest.Capital = f.capital
		cfg.Live.Capital = f.capital
	}
	if f.given("sl-ticks") {
		cfg.Backtest.SLTicks = f.slTicks
		cfg.Live.SLTicks = f.slTicks
	}
	if f.given("target-ticks") {
		cfg.Backtest.TargetTicks = f.targetTicks
		cfg.Live.TargetTicks = f.targetTicks
	}
	if f.given("risk-percent") {
		cfg.Backtest.RiskPct = f.riskPercent / 100
		cfg.Live.RiskPct = f.riskPercent / 100
	}

	if f.noTimeExit {
		cfg.Backtest.MaxHoldCandles = 0
	}
	if f.dryRun {
		cfg.Live.PaperOrders = true
	}
}
