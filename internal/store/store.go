// Package store defines storage interfaces and their file-backed
// implementations: the JSON candle cache, the Parquet archive and the
// SQLite trading journal.
package store

import (
	"context"
	"time"

	"kitetrader/internal/domain"
)

// CandleStore persists and retrieves candle series by cache key.
type CandleStore interface {
	// Load returns the candles stored under key. A missing entry yields
	// ErrCacheMiss.
	Load(key CacheKey) ([]domain.Candle, error)

	// Save replaces the candles stored under key.
	Save(key CacheKey, candles []domain.Candle) error
}

// CandleArchive keeps fetched candles in columnar form for later analysis.
type CandleArchive interface {
	// WriteCandles merges candles into the archive for instrument/interval.
	WriteCandles(ctx context.Context, instrument, interval string, candles []domain.Candle) error

	// ReadCandles returns archived candles within [start, end].
	ReadCandles(ctx context.Context, instrument, interval string, start, end time.Time) ([]domain.Candle, error)
}

// TradeExporter writes and reads back the trades of a backtest run.
type TradeExporter interface {
	// WriteBacktestTrades stores the trades of one run.
	WriteBacktestTrades(ctx context.Context, runID, instrument string, trades []domain.Trade) error

	// ReadBacktestTrades returns the trades recorded for instrument on day.
	ReadBacktestTrades(ctx context.Context, instrument string, day time.Time) ([]BacktestTradeRecord, error)
}

// Journal records what the live engine did: brackets placed, fills seen,
// cancels requested and signals acted on.
type Journal interface {
	// RecordBracket stores a placed bracket.
	RecordBracket(ctx context.Context, b BracketRecord) error

	// RecordOrderEvent stores a fill or cancel observation.
	RecordOrderEvent(ctx context.Context, e OrderEvent) error

	// RecordSignal stores a signal evaluated by the live loop.
	RecordSignal(ctx context.Context, s SignalRecord) error

	// ListBrackets returns the brackets of a session, oldest first.
	ListBrackets(ctx context.Context, sessionID string) ([]BracketRecord, error)

	// ListOrderEvents returns the order events of a session, oldest first.
	ListOrderEvents(ctx context.Context, sessionID string) ([]OrderEvent, error)

	// ListSignals returns the most recent signals for a symbol, up to limit.
	ListSignals(ctx context.Context, tradingSymbol string, limit int) ([]SignalRecord, error)
}

// ---------------------------------------------------------------------------
// Journal records
// ---------------------------------------------------------------------------

// BracketRecord is a journaled bracket. Empty leg ids mean the leg was not
// placed.
type BracketRecord struct {
	SessionID     string
	TradingSymbol string
	Side          domain.TransactionType
	Contracts     int
	ExecutedPrice float64
	StopPrice     float64
	TargetPrice   float64
	EntryOrderID  string
	SLOrderID     string
	TargetOrderID string
	Paper         bool
	Fees          float64
	CreatedAt     time.Time
}

// OrderEventKind distinguishes journaled order events.
type OrderEventKind string

const (
	EventFill         OrderEventKind = "fill"
	EventCancel       OrderEventKind = "cancel"
	EventCancelFailed OrderEventKind = "cancel_failed"
)

// OrderEvent is a journaled fill or cancel.
type OrderEvent struct {
	SessionID     string
	Kind          OrderEventKind
	OrderID       string
	TradingSymbol string
	Status        domain.OrderStatus
	Quantity      int
	Detail        string
	CreatedAt     time.Time
}

// SignalRecord is a journaled live signal.
type SignalRecord struct {
	SessionID     string
	TradingSymbol string
	Signal        domain.Signal
	Close         float64
	CandleTime    time.Time
	CreatedAt     time.Time
}
