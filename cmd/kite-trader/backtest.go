package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kitetrader/internal/broker"
	"kitetrader/internal/config"
	"kitetrader/internal/store"
	"kitetrader/internal/strategy"
	"kitetrader/internal/util"
)

func runBacktest(ctx context.Context, cfg *config.Config, flags *cliFlags, b broker.Broker, cal *util.TradingCalendar, logger *slog.Logger) error {
	to := time.Now().In(cal.Location)
	from := to.AddDate(0, 0, -cfg.Backtest.Days)
	logger.Info("fetching history",
		"instrument", cfg.Trading.Instrument,
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
		"interval", cfg.Trading.Interval,
	)

	cache := store.NewCandleCache(cfg.Storage.CacheDir, logger)
	key := store.CacheKey{
		Instrument: cfg.Trading.Instrument,
		Interval:   cfg.Trading.Interval,
		From:       from,
		To:         to,
	}
	candles, err := cache.FetchCached(ctx, key, flags.refresh, b.Historical)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return errors.New("no bars returned")
	}
	logger.Info("bars available", "count", len(candles))

	archive := store.NewParquetStore(cfg.Storage.DataDir)
	if err := archive.WriteCandles(ctx, cfg.Trading.Instrument, cfg.Trading.Interval, candles); err != nil {
		logger.Warn("archiving candles", "error", err)
	}

	strat, err := buildStrategy(cfg.Trading.Strategy, cfg.Backtest.Signals)
	if err != nil {
		return err
	}
	bars := strat.Generate(candles, nil)

	opts := backtestOptions(cfg, cal)
	bt := strategy.NewBacktester(logger)
	result := bt.Run(bars, opts)
	fmt.Println(strategy.FormatSummary(result.Stats))

	params := strategy.ReportParameters{
		Capital:         cfg.Backtest.Capital,
		SLTicks:         cfg.Backtest.SLTicks,
		TargetTicks:     cfg.Backtest.TargetTicks,
		RiskPerTradePct: cfg.Backtest.RiskPct,
	}
	if cfg.Backtest.MaxHoldCandles > 0 {
		hold := cfg.Backtest.MaxHoldCandles
		params.MaxHoldCandles = &hold
	}
	report := strategy.NewReport(strategy.ReportInput{
		GeneratedAt:   time.Now(),
		Instrument:    cfg.Trading.Instrument,
		TradingSymbol: cfg.Trading.TradingSymbol,
		Interval:      cfg.Trading.Interval,
		Days:          cfg.Backtest.Days,
		Bars:          bars,
		Result:        result,
		Parameters:    params,
	})
	if err := strategy.WriteReport(cfg.Storage.ResultsFile, report); err != nil {
		logger.Error("failed to save backtest results", "error", err)
	} else {
		abs, _ := filepath.Abs(cfg.Storage.ResultsFile)
		logger.Info("backtest results saved", "file", abs, "run_id", report.RunID)
	}

	if err := archive.WriteBacktestTrades(ctx, report.RunID, cfg.Trading.Instrument, result.Trades); err != nil {
		logger.Warn("exporting trades", "error", err)
	}

	if len(cfg.Backtest.Grid) > 0 {
		grid := make([]strategy.Params, 0, len(cfg.Backtest.Grid))
		for _, p := range cfg.Backtest.Grid {
			grid = append(grid, signalParams(p))
		}
		results := bt.GridSearch(candles, nil, grid, opts)
		printGrid(results)
	}
	return nil
}

func backtestOptions(cfg *config.Config, cal *util.TradingCalendar) strategy.BacktestOptions {
	opts := strategy.BacktestOptions{
		Capital:          cfg.Backtest.Capital,
		TickValue:        cfg.Trading.TickValue,
		MaxHoldCandles:   cfg.Backtest.MaxHoldCandles,
		SLATRMult:        cfg.Backtest.SLATRMult,
		RR:               cfg.Backtest.RR,
		RiskPerTradePct:  cfg.Backtest.RiskPct,
		Commission:       cfg.Trading.Commission,
		SlippagePct:      cfg.Backtest.SlippagePct,
		Session:          cal,
		BlockLastMinutes: cfg.Market.BlockLastMinutes,
	}
	// Zero tick distances select ATR-derived stops.
	if cfg.Backtest.SLTicks > 0 && cfg.Backtest.TargetTicks > 0 {
		sl, tgt := cfg.Backtest.SLTicks, cfg.Backtest.TargetTicks
		opts.SLTicks = &sl
		opts.TargetTicks = &tgt
	}
	return opts
}

func printGrid(results []strategy.GridResult) {
	fmt.Fprintln(os.Stdout, "\n=== GRID SEARCH ===")
	for _, r := range results {
		fmt.Fprintf(os.Stdout, "ema %d/%d rsi %d atr %d vol %.2f lookback %d: trades %d, win rate %.2f%%, P&L %.2f\n",
			r.Params.FastEMA, r.Params.SlowEMA, r.Params.RSILen, r.Params.ATRLen,
			r.Params.VolMult, r.Params.BreakoutLookback,
			r.Stats.Trades, r.Stats.WinRate*100, r.Stats.TotalPnL)
	}
}
