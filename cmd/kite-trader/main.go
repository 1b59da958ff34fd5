// Command kite-trader runs the intraday strategy against the Kite web API:
// with --paper it backtests the recent history and writes a results file,
// otherwise it trades the live session.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kitetrader/internal/broker"
	"kitetrader/internal/config"
	"kitetrader/internal/strategy"
	"kitetrader/internal/strategy/builtins"
	"kitetrader/internal/util"
)

func main() {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}

	cfgPath := flags.configPath
	if p := os.Getenv("KITE_TRADER_CONFIG"); p != "" && !flags.given("config") {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	flags.apply(cfg)

	live := !flags.paper
	if err := cfg.Validate(live); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Dual logger: stdout + dated log file.
	logFileName := cfg.Logging.File
	if logFileName == "" {
		logFileName = filepath.Join(os.TempDir(), fmt.Sprintf("kite-trader-%s.log", time.Now().Format("2006-01-02")))
	}
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	cal, err := util.NewTradingCalendar(cfg.Market.Open, cfg.Market.Close, cfg.Market.Timezone)
	if err != nil {
		log.Fatalf("invalid market hours: %v", err)
	}

	kite := broker.NewKiteBroker(broker.KiteConfig{
		BaseURL:        cfg.Kite.BaseURL,
		EncToken:       cfg.Kite.EncToken,
		Version:        cfg.Kite.Version,
		Timeout:        time.Duration(cfg.Kite.RequestTimeoutSec) * time.Second,
		RequestsPerSec: cfg.Kite.RequestsPerSec,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting kite-trader",
		"mode", modeName(live, cfg.Live.PaperOrders),
		"instrument", cfg.Trading.Instrument,
		"tradingsymbol", cfg.Trading.TradingSymbol,
		"interval", cfg.Trading.Interval,
		"logFile", logFileName,
	)

	if live {
		err = runLive(ctx, cfg, kite, cal, logger)
	} else {
		err = runBacktest(ctx, cfg, flags, kite, cal, logger)
	}
	if err != nil {
		slog.Error("kite-trader failed", "error", err)
		logFile.Close()
		os.Exit(1)
	}
}

func modeName(live, paperOrders bool) string {
	switch {
	case !live:
		return "backtest"
	case paperOrders:
		return "live-dry-run"
	default:
		return "live"
	}
}

// buildStrategy registers the built-in strategies with p and returns the one
// named in the configuration.
func buildStrategy(name string, p config.SignalParams) (strategy.Strategy, error) {
	reg := strategy.NewRegistry()
	builtins.Register(reg, signalParams(p))
	s, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, reg.List())
	}
	return s, nil
}

func signalParams(p config.SignalParams) strategy.Params {
	return strategy.Params{
		FastEMA:          p.FastEMA,
		SlowEMA:          p.SlowEMA,
		RSILen:           p.RSILen,
		VolMult:          p.VolMult,
		BreakoutLookback: p.BreakoutLookback,
		ATRLen:           p.ATRLen,
	}
}
