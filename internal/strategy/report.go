package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"kitetrader/internal/domain"
)

// ReportInput describes the run a Report is built for.
type ReportInput struct {
	GeneratedAt   time.Time
	Instrument    string
	TradingSymbol string
	Interval      string
	Days          int
	Bars          []Bar
	Result        BacktestResult
	Parameters    ReportParameters
}

// ReportParameters echoes the risk settings of the run.
type ReportParameters struct {
	Capital         float64 `json:"capital"`
	SLTicks         float64 `json:"sl_ticks"`
	TargetTicks     float64 `json:"target_ticks"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct"`
	MaxHoldCandles  *int    `json:"max_hold_candles"`
}

// SignalAnalysis is the signal breakdown section of a Report.
type SignalAnalysis struct {
	SignalSummary
	Frequency float64 `json:"frequency"`
}

// Report is the results document written after a backtest and read back
// by kite-cli.
type Report struct {
	Timestamp      string                    `json:"timestamp"`
	RunID          string                    `json:"run_id"`
	Instrument     string                    `json:"instrument"`
	TradingSymbol  string                    `json:"tradingsymbol"`
	Interval       string                    `json:"interval"`
	Days           int                       `json:"days"`
	Trades         int                       `json:"trades"`
	WinningTrades  int                       `json:"winningTrades"`
	LosingTrades   int                       `json:"losingTrades"`
	WinRate        string                    `json:"winRate"`
	TotalPnL       float64                   `json:"totalPnL"`
	FinalEquity    float64                   `json:"finalEquity"`
	AvgWin         float64                   `json:"avgWin"`
	AvgLoss        float64                   `json:"avgLoss"`
	ProfitFactor   float64                   `json:"profitFactor"`
	ExitReasons    map[domain.ExitReason]int `json:"exitReasons"`
	SignalAnalysis SignalAnalysis            `json:"signalAnalysis"`
	Parameters     ReportParameters          `json:"parameters"`
}

// NewReport builds the results document for a finished run and assigns it
// a fresh run id.
func NewReport(in ReportInput) Report {
	stats := in.Result.Stats
	tradingSymbol := in.TradingSymbol
	if tradingSymbol == "" {
		tradingSymbol = "UNKNOWN"
	}

	reasons := make(map[domain.ExitReason]int)
	for _, t := range in.Result.Trades {
		reasons[t.ExitReason]++
	}

	sig := SignalAnalysis{SignalSummary: SignalCounts(in.Bars)}
	if len(in.Bars) > 0 {
		sig.Frequency = float64(sig.Total) / float64(len(in.Bars))
	}

	return Report{
		Timestamp:      in.GeneratedAt.UTC().Format(time.RFC3339Nano),
		RunID:          uuid.NewString(),
		Instrument:     in.Instrument,
		TradingSymbol:  tradingSymbol,
		Interval:       in.Interval,
		Days:           in.Days,
		Trades:         stats.Trades,
		WinningTrades:  stats.Wins,
		LosingTrades:   stats.Losses,
		WinRate:        fmt.Sprintf("%.2f", stats.WinRate*100),
		TotalPnL:       stats.TotalPnL,
		FinalEquity:    stats.FinalEquity,
		AvgWin:         stats.AvgWin,
		AvgLoss:        stats.AvgLoss,
		ProfitFactor:   stats.ProfitFactor(),
		ExitReasons:    reasons,
		SignalAnalysis: sig,
		Parameters:     in.Parameters,
	}
}

// WriteReport writes r as indented JSON to path, creating parent
// directories as needed.
func WriteReport(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// FormatSummary renders stats as the human-readable results block.
func FormatSummary(s Stats) string {
	var b strings.Builder
	b.WriteString("=== BACKTEST RESULTS ===\n")
	fmt.Fprintf(&b, "Trades: %d\n", s.Trades)
	fmt.Fprintf(&b, "Win Rate: %.2f%%\n", s.WinRate*100)
	fmt.Fprintf(&b, "Total P&L: %.2f\n", s.TotalPnL)
	fmt.Fprintf(&b, "Final Equity: %.2f\n", s.FinalEquity)
	fmt.Fprintf(&b, "Avg Win: %.2f\n", s.AvgWin)
	fmt.Fprintf(&b, "Avg Loss: %.2f\n", s.AvgLoss)
	if pf := s.ProfitFactor(); pf != 0 {
		fmt.Fprintf(&b, "Profit Factor: %.2f\n", pf)
	} else {
		b.WriteString("Profit Factor: N/A\n")
	}
	return b.String()
}
