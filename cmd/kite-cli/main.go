// Command kite-cli inspects a kite-trader installation: the health of a
// running engine, the live trade journal and the last backtest results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"kitetrader/internal/config"
	"kitetrader/internal/dashboard"
	"kitetrader/internal/domain"
	"kitetrader/internal/store"
	"kitetrader/internal/strategy"
	"kitetrader/pkg/kitetrader"
)

const version = "0.1.0"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: kite-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  status     Show the health of a running engine\n")
	fmt.Fprintf(os.Stderr, "  journal    Summarize a live session from the trade journal\n")
	fmt.Fprintf(os.Stderr, "  results    Print the last backtest results file\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("kite-cli %s\n", version)
	case "status":
		err = runStatus(os.Args[2:])
	case "journal":
		err = runJournal(os.Stdout, os.Args[2:])
	case "results":
		err = runResults(os.Stdout, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "kite-cli %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig parses the shared -config flag plus any command flags.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", "config/kite-trader.yaml", "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*path)
}

// ---------------------------------------------------------------------------
// status
// ---------------------------------------------------------------------------

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "", "engine health address host:port (default from config)")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	target := *addr
	if target == "" {
		if cfg.Server.GRPCPort == 0 {
			return fmt.Errorf("no -addr given and server.grpc_port is not configured")
		}
		target = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	}

	c, err := kitetrader.NewClient(target)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", target, status)
	return nil
}

// ---------------------------------------------------------------------------
// journal
// ---------------------------------------------------------------------------

func runJournal(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	session := fs.String("session", "", "session id (default: most recent)")
	limit := fs.Int("n", 10, "number of recent sessions to list")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.Storage.SQLitePath); err != nil {
		return fmt.Errorf("journal %s: %w", cfg.Storage.SQLitePath, err)
	}
	journal, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx := context.Background()
	sessions, err := journal.ListSessions(ctx, *limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions journaled")
		return nil
	}
	printSessions(w, sessions)

	id := *session
	if id == "" {
		id = sessions[0].SessionID
	}
	brackets, err := journal.ListBrackets(ctx, id)
	if err != nil {
		return err
	}
	events, err := journal.ListOrderEvents(ctx, id)
	if err != nil {
		return err
	}
	printReport(w, dashboard.BuildReport(id, brackets, events))
	return nil
}

func printSessions(w io.Writer, sessions []store.SessionInfo) {
	fmt.Fprintln(w, headerStyle.Render("SESSIONS"))
	for _, s := range sessions {
		fmt.Fprintf(w, "  %-36s  %s  %s  %3d brackets\n",
			s.SessionID,
			s.FirstAt.Format("2006-01-02 15:04"),
			dimStyle.Render(s.LastAt.Format("15:04")),
			s.Brackets)
	}
	fmt.Fprintln(w)
}

func printReport(w io.Writer, r dashboard.SessionReport) {
	fmt.Fprintln(w, headerStyle.Render("SESSION "+r.SessionID))
	if !r.Start.IsZero() {
		fmt.Fprintf(w, "  %s - %s\n", r.Start.Format("2006-01-02 15:04:05"), r.End.Format("15:04:05"))
	}
	fmt.Fprintf(w, "  fills %d  cancels %d  cancel failures %d  fees %s  est. P&L %s\n",
		r.Fills, r.Cancels, r.CancelFailures, dashboard.FormatAmount(r.Fees), pnl(r.PnL))
	if r.Unprotected > 0 {
		fmt.Fprintln(w, "  "+warnStyle.Render(fmt.Sprintf("%d bracket(s) without stop or target", r.Unprotected)))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %-8s  %-20s %-4s %5s %10s %10s %10s  %-7s %12s",
		"TIME", "SYMBOL", "SIDE", "QTY", "ENTRY", "STOP", "TARGET", "OUTCOME", "P&L")))
	for _, b := range r.Brackets {
		line := fmt.Sprintf("  %-8s  %-20s %-4s %5s %10s %10s %10s  %-7s ",
			b.CreatedAt.Format("15:04:05"), b.TradingSymbol, b.Side, dashboard.FormatInt(b.Contracts),
			dashboard.FormatPrice(b.ExecutedPrice), dashboard.FormatPrice(b.StopPrice),
			dashboard.FormatPrice(b.TargetPrice), b.Outcome)
		if b.Unprotected() {
			line += warnStyle.Render("!")
		}
		fmt.Fprintln(w, line+pnl(b.PnL))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %-20s %8s %6s %6s %6s %6s %12s",
		"SYMBOL", "BRACKETS", "QTY", "STOP", "TARGET", "OPEN", "P&L")))
	for _, s := range r.Symbols {
		fmt.Fprintf(w, "  %-20s %8d %6s %6d %6d %6d %s\n",
			s.Symbol, s.Brackets, dashboard.FormatInt(s.Contracts), s.Stops, s.Targets, s.Open, pnl(s.PnL))
	}
}

func pnl(v float64) string {
	s := fmt.Sprintf("%12s", dashboard.FormatPnL(v))
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	default:
		return s
	}
}

// ---------------------------------------------------------------------------
// results
// ---------------------------------------------------------------------------

func runResults(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	file := fs.String("file", "", "results file (default from config)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	path := *file
	if path == "" {
		path = cfg.Storage.ResultsFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var r strategy.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s %s (%s, %d days)", r.TradingSymbol, r.Instrument, r.Interval, r.Days)))
	fmt.Fprintln(w, dimStyle.Render("  run "+r.RunID+" at "+r.Timestamp))
	fmt.Fprintf(w, "  trades %d  won %d  lost %d  win rate %s%%\n", r.Trades, r.WinningTrades, r.LosingTrades, r.WinRate)
	fmt.Fprintf(w, "  P&L %s  final equity %s  profit factor %.2f\n",
		pnl(r.TotalPnL), dashboard.FormatAmount(r.FinalEquity), r.ProfitFactor)
	reasons := make([]string, 0, len(r.ExitReasons))
	for reason := range r.ExitReasons {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  %-20s %d\n", reason, r.ExitReasons[domain.ExitReason(reason)])
	}
	fmt.Fprintf(w, "  signals %d (buy %d, sell %d)\n",
		r.SignalAnalysis.Total, r.SignalAnalysis.Buy, r.SignalAnalysis.Sell)
	return nil
}
