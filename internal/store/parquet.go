package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"kitetrader/internal/domain"
)

// Compile-time interface checks.
var _ CandleArchive = (*ParquetStore)(nil)
var _ TradeExporter = (*ParquetStore)(nil)

// ParquetStore implements CandleArchive and TradeExporter using Parquet
// files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// CandleRecord is the Parquet schema for archived candles.
type CandleRecord struct {
	Instrument string  `parquet:"instrument"`
	Interval   string  `parquet:"interval"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     float64 `parquet:"volume"`
}

// BacktestTradeRecord is the Parquet schema for exported backtest trades.
type BacktestTradeRecord struct {
	RunID      string  `parquet:"run_id"`
	Instrument string  `parquet:"instrument"`
	Side       string  `parquet:"side"`
	EntryTime  int64   `parquet:"entry_time,timestamp(millisecond)"`
	ExitTime   int64   `parquet:"exit_time,timestamp(millisecond)"`
	EntryPrice float64 `parquet:"entry_price"`
	ExitPrice  float64 `parquet:"exit_price"`
	Size       float64 `parquet:"size"`
	PnL        float64 `parquet:"pnl"`
	Reason     string  `parquet:"reason"`
}

// Trade converts the record back to a domain trade.
func (r BacktestTradeRecord) Trade() domain.Trade {
	return domain.Trade{
		EntryTime:  time.UnixMilli(r.EntryTime),
		ExitTime:   time.UnixMilli(r.ExitTime),
		EntryPrice: r.EntryPrice,
		ExitPrice:  r.ExitPrice,
		Side:       domain.Side(r.Side),
		Size:       r.Size,
		PnL:        r.PnL,
		ExitReason: domain.ExitReason(r.Reason),
	}
}

// ---------------------------------------------------------------------------
// CandleArchive implementation
// ---------------------------------------------------------------------------

// WriteCandles writes candles to Parquet files organized by day:
//
//	<DataDir>/candles/<instrument>/<interval>/<YYYY-MM-DD>.parquet
//
// Existing rows with the same timestamp are replaced.
func (s *ParquetStore) WriteCandles(_ context.Context, instrument, interval string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	groups := make(map[string][]CandleRecord)
	for _, c := range candles {
		day := c.Timestamp.Format("2006-01-02")
		groups[day] = append(groups[day], CandleRecord{
			Instrument: instrument,
			Interval:   interval,
			Timestamp:  c.Timestamp.UnixMilli(),
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,
			Volume:     c.Volume,
		})
	}

	for day, records := range groups {
		path := filepath.Join(s.candleDir(instrument, interval), day+".parquet")

		existing, err := readParquetFile[CandleRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading candles for %s/%s: %w", instrument, day, err)
		}
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%s: %w", instrument, day, err)
		}
	}
	return nil
}

// ReadCandles reads archived candles within [start, end].
func (s *ParquetStore) ReadCandles(_ context.Context, instrument, interval string, start, end time.Time) ([]domain.Candle, error) {
	var candles []domain.Candle
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	for d := startDay; !d.After(end); d = d.AddDate(0, 0, 1) {
		path := filepath.Join(s.candleDir(instrument, interval), d.Format("2006-01-02")+".parquet")
		records, err := readParquetFile[CandleRecord](path)
		if err != nil {
			// No archive for this day.
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).In(start.Location())
			if ts.Before(start) || ts.After(end) {
				continue
			}
			candles = append(candles, domain.Candle{
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return candles, nil
}

// ---------------------------------------------------------------------------
// TradeExporter implementation
// ---------------------------------------------------------------------------

// WriteBacktestTrades writes the trades of one run grouped by entry day:
//
//	<DataDir>/backtest/<instrument>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteBacktestTrades(_ context.Context, runID, instrument string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	groups := make(map[string][]BacktestTradeRecord)
	for _, t := range trades {
		day := t.EntryTime.Format("2006-01-02")
		groups[day] = append(groups[day], BacktestTradeRecord{
			RunID:      runID,
			Instrument: instrument,
			Side:       string(t.Side),
			EntryTime:  t.EntryTime.UnixMilli(),
			ExitTime:   t.ExitTime.UnixMilli(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Size:       t.Size,
			PnL:        t.PnL,
			Reason:     string(t.ExitReason),
		})
	}

	for day, records := range groups {
		path := filepath.Join(s.DataDir, "backtest", instrument, day+".parquet")

		existing, err := readParquetFile[BacktestTradeRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading backtest trades for %s/%s: %w", instrument, day, err)
		}
		merged := mergeTradeRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing backtest trades for %s/%s: %w", instrument, day, err)
		}
	}
	return nil
}

// ReadBacktestTrades returns every exported trade for instrument that
// entered on day, across runs.
func (s *ParquetStore) ReadBacktestTrades(_ context.Context, instrument string, day time.Time) ([]BacktestTradeRecord, error) {
	path := filepath.Join(s.DataDir, "backtest", instrument, day.Format("2006-01-02")+".parquet")
	records, err := readParquetFile[BacktestTradeRecord](path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return records, err
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// candleDir returns <dataDir>/candles/<instrument>/<interval>.
func (s *ParquetStore) candleDir(instrument, interval string) string {
	return filepath.Join(s.DataDir, "candles", instrument, interval)
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCandleRecords deduplicates candle records by timestamp, preferring
// new records over existing ones.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	seen := make(map[int64]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeTradeRecords deduplicates trade records by (run, entry time, side),
// preferring new records. Results are sorted by entry time.
func mergeTradeRecords(existing, incoming []BacktestTradeRecord) []BacktestTradeRecord {
	type key struct {
		run   string
		entry int64
		side  string
	}
	seen := make(map[key]BacktestTradeRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.RunID, r.EntryTime, r.Side}] = r
	}
	for _, r := range incoming {
		seen[key{r.RunID, r.EntryTime, r.Side}] = r
	}

	merged := make([]BacktestTradeRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].EntryTime != merged[j].EntryTime {
			return merged[i].EntryTime < merged[j].EntryTime
		}
		return merged[i].RunID < merged[j].RunID
	})
	return merged
}
