package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kitetrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Journal = (*SQLiteStore)(nil)

// SQLiteStore implements Journal backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// journal tables if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// The journal is written from a single dispatch loop.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS brackets (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id      TEXT    NOT NULL,
			tradingsymbol   TEXT    NOT NULL,
			side            TEXT    NOT NULL,
			contracts       INTEGER NOT NULL,
			executed_price  REAL    NOT NULL,
			stop_price      REAL    NOT NULL,
			target_price    REAL    NOT NULL,
			entry_order_id  TEXT    NOT NULL,
			sl_order_id     TEXT    NOT NULL DEFAULT '',
			target_order_id TEXT    NOT NULL DEFAULT '',
			paper           INTEGER NOT NULL,
			fees            REAL    NOT NULL,
			created_at      INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS order_events (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT    NOT NULL,
			kind          TEXT    NOT NULL,
			order_id      TEXT    NOT NULL,
			tradingsymbol TEXT    NOT NULL,
			status        TEXT    NOT NULL,
			quantity      INTEGER NOT NULL,
			detail        TEXT    NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS signals (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT    NOT NULL,
			tradingsymbol TEXT    NOT NULL,
			signal        INTEGER NOT NULL,
			close         REAL    NOT NULL,
			candle_time   INTEGER NOT NULL,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_brackets_session ON brackets(session_id);
		CREATE INDEX IF NOT EXISTS idx_order_events_session ON order_events(session_id);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(tradingsymbol);
	`)
	return err
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// RecordBracket inserts a placed bracket.
func (s *SQLiteStore) RecordBracket(ctx context.Context, b BracketRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brackets (
			session_id, tradingsymbol, side, contracts, executed_price,
			stop_price, target_price, entry_order_id, sl_order_id,
			target_order_id, paper, fees, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.SessionID, b.TradingSymbol, string(b.Side), b.Contracts, b.ExecutedPrice,
		b.StopPrice, b.TargetPrice, b.EntryOrderID, b.SLOrderID,
		b.TargetOrderID, b.Paper, b.Fees, b.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting bracket: %w", err)
	}
	return nil
}

// RecordOrderEvent inserts a fill or cancel event.
func (s *SQLiteStore) RecordOrderEvent(ctx context.Context, e OrderEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_events (
			session_id, kind, order_id, tradingsymbol, status, quantity, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, string(e.Kind), e.OrderID, e.TradingSymbol, string(e.Status),
		e.Quantity, e.Detail, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting order event: %w", err)
	}
	return nil
}

// RecordSignal inserts a live signal.
func (s *SQLiteStore) RecordSignal(ctx context.Context, r SignalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (
			session_id, tradingsymbol, signal, close, candle_time, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.TradingSymbol, int(r.Signal), r.Close,
		r.CandleTime.UnixMilli(), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// ListBrackets returns the brackets of a session in insertion order.
func (s *SQLiteStore) ListBrackets(ctx context.Context, sessionID string) ([]BracketRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, tradingsymbol, side, contracts, executed_price,
		       stop_price, target_price, entry_order_id, sl_order_id,
		       target_order_id, paper, fees, created_at
		FROM brackets
		WHERE session_id = ?
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying brackets: %w", err)
	}
	defer rows.Close()

	var out []BracketRecord
	for rows.Next() {
		var (
			b       BracketRecord
			side    string
			created int64
		)
		if err := rows.Scan(&b.SessionID, &b.TradingSymbol, &side, &b.Contracts, &b.ExecutedPrice,
			&b.StopPrice, &b.TargetPrice, &b.EntryOrderID, &b.SLOrderID,
			&b.TargetOrderID, &b.Paper, &b.Fees, &created); err != nil {
			return nil, fmt.Errorf("scanning bracket: %w", err)
		}
		b.Side = domain.TransactionType(side)
		b.CreatedAt = time.UnixMilli(created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListOrderEvents returns the order events of a session in insertion order.
func (s *SQLiteStore) ListOrderEvents(ctx context.Context, sessionID string) ([]OrderEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, kind, order_id, tradingsymbol, status, quantity, detail, created_at
		FROM order_events
		WHERE session_id = ?
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying order events: %w", err)
	}
	defer rows.Close()

	var out []OrderEvent
	for rows.Next() {
		var (
			e            OrderEvent
			kind, status string
			created      int64
		)
		if err := rows.Scan(&e.SessionID, &kind, &e.OrderID, &e.TradingSymbol, &status,
			&e.Quantity, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scanning order event: %w", err)
		}
		e.Kind = OrderEventKind(kind)
		e.Status = domain.OrderStatus(status)
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListSignals returns the most recent signals for a symbol, newest first.
func (s *SQLiteStore) ListSignals(ctx context.Context, tradingSymbol string, limit int) ([]SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, tradingsymbol, signal, close, candle_time, created_at
		FROM signals
		WHERE tradingsymbol = ?
		ORDER BY id DESC
		LIMIT ?`, tradingSymbol, limit)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var (
			r                   SignalRecord
			sig                 int
			candleTime, created int64
		)
		if err := rows.Scan(&r.SessionID, &r.TradingSymbol, &sig, &r.Close, &candleTime, &created); err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		r.Signal = domain.Signal(sig)
		r.CandleTime = time.UnixMilli(candleTime)
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionInfo summarizes one journaled session.
type SessionInfo struct {
	SessionID string
	FirstAt   time.Time
	LastAt    time.Time
	Brackets  int
}

// ListSessions returns the sessions that placed at least one bracket,
// most recent first, up to limit.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, MIN(created_at), MAX(created_at), COUNT(*)
		FROM brackets
		GROUP BY session_id
		ORDER BY MIN(created_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			si          SessionInfo
			first, last int64
		)
		if err := rows.Scan(&si.SessionID, &first, &last, &si.Brackets); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		si.FirstAt = time.UnixMilli(first)
		si.LastAt = time.UnixMilli(last)
		out = append(out, si)
	}
	return out, rows.Err()
}
