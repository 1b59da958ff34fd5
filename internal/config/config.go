package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading engine.
type Config struct {
	Kite     Kite           `yaml:"kite"`
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Logging  Logging        `yaml:"logging"`
	Market   Market         `yaml:"market"`
	Trading  TradingConfig  `yaml:"trading"`
	Backtest BacktestConfig `yaml:"backtest"`
	Live     LiveConfig     `yaml:"live"`
}

// Kite holds credentials and endpoints for the Kite web API.
type Kite struct {
	EncToken          string  `yaml:"enctoken"`
	BaseURL           string  `yaml:"base_url"`
	Version           string  `yaml:"version"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	RequestsPerSec    float64 `yaml:"requests_per_sec"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir     string `yaml:"data_dir"`
	CacheDir    string `yaml:"cache_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	ResultsFile string `yaml:"results_file"`
}

// Server holds the health listener configuration. A zero port disables it.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Market describes the exchange session.
type Market struct {
	Open             string `yaml:"open"`
	Close            string `yaml:"close"`
	Timezone         string `yaml:"timezone"`
	BlockLastMinutes int    `yaml:"block_last_minutes"`
	SessionEnd       string `yaml:"session_end"`
}

// TradingConfig holds instrument and cost settings shared by backtest and
// live trading.
type TradingConfig struct {
	Instrument     string  `yaml:"instrument"`
	TradingSymbol  string  `yaml:"tradingsymbol"`
	Exchange       string  `yaml:"exchange"`
	Product        string  `yaml:"product"`
	Interval       string  `yaml:"interval"`
	Strategy       string  `yaml:"strategy"`
	TickValue      float64 `yaml:"tick_value"`
	Commission     float64 `yaml:"commission_per_trade"`
	TurnoverFeePct float64 `yaml:"turnover_fee_pct"`
	GSTPct         float64 `yaml:"gst_pct"`
	MaxContracts   int     `yaml:"max_contracts"`
}

// SignalParams mirrors the signal generator's parameter set. Zero fields
// fall back to the generator defaults.
type SignalParams struct {
	FastEMA          int     `yaml:"fast_ema"`
	SlowEMA          int     `yaml:"slow_ema"`
	RSILen           int     `yaml:"rsi_len"`
	VolMult          float64 `yaml:"vol_mult"`
	BreakoutLookback int     `yaml:"breakout_lookback"`
	ATRLen           int     `yaml:"atr_len"`
}

// BacktestConfig defines the simulation parameters.
type BacktestConfig struct {
	Days           int            `yaml:"days"`
	Capital        float64        `yaml:"capital"`
	RiskPct        float64        `yaml:"risk_per_trade_pct"`
	SLTicks        float64        `yaml:"sl_ticks"`
	TargetTicks    float64        `yaml:"target_ticks"`
	MaxHoldCandles int            `yaml:"max_hold_candles"`
	SlippagePct    float64        `yaml:"slippage_pct"`
	SLATRMult      float64        `yaml:"sl_atr_mult"`
	RR             float64        `yaml:"rr"`
	Signals        SignalParams   `yaml:"signals"`
	Grid           []SignalParams `yaml:"grid"`
}

// LiveConfig defines risk and execution parameters for live trading.
type LiveConfig struct {
	Capital         float64      `yaml:"capital"`
	RiskPct         float64      `yaml:"risk_per_trade_pct"`
	SLTicks         float64      `yaml:"sl_ticks"`
	TargetTicks     float64      `yaml:"target_ticks"`
	PollIntervalSec int          `yaml:"poll_interval_sec"`
	HistoryDays     int          `yaml:"history_days"`
	PaperOrders     bool         `yaml:"paper_orders"`
	Signals         SignalParams `yaml:"signals"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Kite: Kite{
			BaseURL:           "https://kite.zerodha.com",
			Version:           "2.9.8",
			RequestTimeoutSec: 30,
			RequestsPerSec:    3,
		},
		Storage: Storage{
			DataDir:     "data",
			CacheDir:    "cache",
			SQLitePath:  "data/journal.db",
			ResultsFile: "backtest_results.json",
		},
		Server: Server{Host: "127.0.0.1"},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Market: Market{
			Open:             "09:00",
			Close:            "23:30",
			Timezone:         "Asia/Kolkata",
			BlockLastMinutes: 30,
			SessionEnd:       "23:31",
		},
		Trading: TradingConfig{
			Exchange:       "MCX",
			Product:        "MIS",
			Interval:       "2minute",
			Strategy:       "trend-confirm",
			TickValue:      10,
			Commission:     20,
			TurnoverFeePct: 0.0002,
			GSTPct:         0.18,
			MaxContracts:   1000,
		},
		Backtest: BacktestConfig{
			Days:           10,
			Capital:        450000,
			RiskPct:        0.014,
			SLTicks:        30,
			TargetTicks:    70,
			MaxHoldCandles: 60,
			SlippagePct:    0.0001,
			SLATRMult:      1.5,
			RR:             1.5,
			Signals: SignalParams{
				FastEMA:          12,
				SlowEMA:          26,
				RSILen:           14,
				VolMult:          1.15,
				BreakoutLookback: 20,
				ATRLen:           14,
			},
		},
		Live: LiveConfig{
			Capital:         450000,
			RiskPct:         0.02,
			SLTicks:         40,
			TargetTicks:     20,
			PollIntervalSec: 3,
			HistoryDays:     2,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default(), and then applies environment variable overrides. A missing
// file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
			}
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENCTOKEN"); v != "" {
		cfg.Kite.EncToken = v
	}

	if v := os.Getenv("KITE_BASE_URL"); v != "" {
		cfg.Kite.BaseURL = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Storage.CacheDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the fields the engine cannot run without.
func (c *Config) Validate(live bool) error {
	var errs []error
	if c.Trading.Instrument == "" {
		errs = append(errs, errors.New("trading.instrument is required"))
	}
	if live {
		if c.Kite.EncToken == "" {
			errs = append(errs, errors.New("enctoken is required for live trading (set ENCTOKEN)"))
		}
		if c.Trading.TradingSymbol == "" {
			errs = append(errs, errors.New("trading.tradingsymbol is required for live trading"))
		}
	}
	if c.Trading.TickValue <= 0 {
		errs = append(errs, errors.New("trading.tick_value must be positive"))
	}
	if c.Backtest.Capital < 0 || c.Live.Capital < 0 {
		errs = append(errs, errors.New("capital must not be negative"))
	}
	if c.Backtest.RiskPct < 0 || c.Live.RiskPct < 0 {
		errs = append(errs, errors.New("risk_per_trade_pct must not be negative"))
	}
	return errors.Join(errs...)
}
