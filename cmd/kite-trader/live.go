package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kitetrader/internal/api"
	"kitetrader/internal/broker"
	"kitetrader/internal/config"
	"kitetrader/internal/domain"
	"kitetrader/internal/engine"
	"kitetrader/internal/store"
	"kitetrader/internal/util"
)

func runLive(ctx context.Context, cfg *config.Config, b broker.Broker, cal *util.TradingCalendar, logger *slog.Logger) error {
	sessionEnd, err := util.ParseClock(cfg.Market.SessionEnd)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	journal, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	strat, err := buildStrategy(cfg.Trading.Strategy, cfg.Live.Signals)
	if err != nil {
		return err
	}

	eng := engine.NewEngine(b, journal, strat, cal, util.SystemClock{}, liveOptions(cfg, sessionEnd), logger)

	if cfg.Server.GRPCPort > 0 {
		srv := api.NewServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort), logger)
		if _, err := srv.Start(ctx); err != nil {
			return err
		}
		eng.SetHealth(srv)
	}

	if err := eng.Run(ctx); err != nil {
		return err
	}

	brackets, err := journal.ListBrackets(context.WithoutCancel(ctx), eng.Session().ID)
	if err != nil {
		logger.Warn("reading session journal", "error", err)
		return nil
	}
	logger.Info("session summary", "session", eng.Session().ID, "brackets", len(brackets))
	return nil
}

func liveOptions(cfg *config.Config, sessionEnd util.Clock) engine.Options {
	return engine.Options{
		Instrument:     cfg.Trading.Instrument,
		TradingSymbol:  cfg.Trading.TradingSymbol,
		Exchange:       cfg.Trading.Exchange,
		Product:        domain.Product(cfg.Trading.Product),
		Interval:       cfg.Trading.Interval,
		Capital:        cfg.Live.Capital,
		RiskPct:        cfg.Live.RiskPct,
		SLTicks:        cfg.Live.SLTicks,
		TargetTicks:    cfg.Live.TargetTicks,
		TickValue:      cfg.Trading.TickValue,
		MaxContracts:   cfg.Trading.MaxContracts,
		Commission:     cfg.Trading.Commission,
		TurnoverFeePct: cfg.Trading.TurnoverFeePct,
		GSTPct:         cfg.Trading.GSTPct,
		Paper:          cfg.Live.PaperOrders,
		HistoryDays:    cfg.Live.HistoryDays,
		PollInterval:   time.Duration(cfg.Live.PollIntervalSec) * time.Second,
		SessionEnd:     sessionEnd,
	}
}
