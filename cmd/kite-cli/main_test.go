package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kitetrader/internal/domain"
	"kitetrader/internal/store"
	"kitetrader/internal/strategy"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "kite-trader.yaml")
	yaml := "storage:\n" +
		"  sqlite_path: " + filepath.Join(dir, "journal.db") + "\n" +
		"  results_file: " + filepath.Join(dir, "results.json") + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJournalCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	journal, err := store.NewSQLiteStore(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	now := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	if err := journal.RecordBracket(ctx, store.BracketRecord{
		SessionID: "sess-1", TradingSymbol: "CRUDEOIL25JANFUT", Side: domain.TransactionBuy,
		Contracts: 2, ExecutedPrice: 5000, StopPrice: 4600, TargetPrice: 5200,
		EntryOrderID: "E1", SLOrderID: "S1", TargetOrderID: "T1", Fees: 40, CreatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	if err := journal.RecordOrderEvent(ctx, store.OrderEvent{
		SessionID: "sess-1", Kind: store.EventFill, OrderID: "T1", TradingSymbol: "CRUDEOIL25JANFUT",
		Status: domain.OrderStatusComplete, Quantity: 2, CreatedAt: now.Add(time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	journal.Close()

	var out bytes.Buffer
	if err := runJournal(&out, []string{"-config", cfgPath}); err != nil {
		t.Fatalf("runJournal() error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"sess-1", "CRUDEOIL25JANFUT", "target", "+360.00"} {
		if !strings.Contains(got, want) {
			t.Errorf("journal output missing %q:\n%s", want, got)
		}
	}
}

func TestJournalCommandMissingDB(t *testing.T) {
	dir := t.TempDir()
	if err := runJournal(&bytes.Buffer{}, []string{"-config", writeConfig(t, dir)}); err == nil {
		t.Error("expected an error for a missing journal")
	}
}

func TestResultsCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	report := strategy.NewReport(strategy.ReportInput{
		GeneratedAt:   time.Now(),
		Instrument:    "111111",
		TradingSymbol: "CRUDEOIL25JANFUT",
		Interval:      "2minute",
		Days:          10,
		Result: strategy.BacktestResult{
			Trades: []domain.Trade{{ExitReason: domain.ExitTarget, PnL: 500}},
			Stats:  strategy.Stats{Trades: 1, Wins: 1, WinRate: 1, TotalPnL: 500, FinalEquity: 450500},
		},
	})
	if err := strategy.WriteReport(filepath.Join(dir, "results.json"), report); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runResults(&out, []string{"-config", cfgPath}); err != nil {
		t.Fatalf("runResults() error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"CRUDEOIL25JANFUT", report.RunID, "trades 1", "450,500.00", "target"} {
		if !strings.Contains(got, want) {
			t.Errorf("results output missing %q:\n%s", want, got)
		}
	}
}
