// Package engine runs the live trading session: position sizing, bracket
// placement, the one-cancels-other order monitor and the tick scheduler
// that ties them together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"kitetrader/internal/broker"
	"kitetrader/internal/domain"
	"kitetrader/internal/store"
	"kitetrader/internal/strategy"
	"kitetrader/internal/util"
)

const defaultTickMinutes = 2

// Options configures a live session.
type Options struct {
	Instrument    string
	TradingSymbol string
	Exchange      string
	Product       domain.Product
	Interval      string

	Capital      float64
	RiskPct      float64
	SLTicks      float64
	TargetTicks  float64
	TickValue    float64
	MaxContracts int

	Commission     float64
	TurnoverFeePct float64
	GSTPct         float64

	// Paper places synthetic brackets instead of broker orders.
	Paper bool

	HistoryDays  int
	PollInterval time.Duration
	// SessionEnd is the clock time at which Run returns.
	SessionEnd util.Clock
}

// HealthReporter is told when the session starts and stops serving.
type HealthReporter interface {
	SetServing(serving bool)
}

// Engine is the live scheduler. Run owns all mutable state; nothing else may
// call into the engine concurrently.
type Engine struct {
	broker   broker.Broker
	journal  store.Journal
	strategy strategy.Strategy
	calendar *util.TradingCalendar
	clock    util.TimeSource
	opts     Options
	logger   *slog.Logger
	health   HealthReporter

	session  *Session
	risk     *RiskManager
	brackets *BracketManager
	monitor  *OrderMonitor
}

// NewEngine creates an Engine. journal and clock may be nil.
func NewEngine(
	b broker.Broker,
	journal store.Journal,
	strat strategy.Strategy,
	cal *util.TradingCalendar,
	clock util.TimeSource,
	opts Options,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	session := NewSession(clock.Now())
	logger = logger.With("session", session.ID)

	return &Engine{
		broker:   b,
		journal:  journal,
		strategy: strat,
		calendar: cal,
		clock:    clock,
		opts:     opts,
		logger:   logger.With("component", "engine"),
		session:  session,
		risk:     NewRiskManager(opts.Capital, opts.RiskPct, opts.SLTicks, opts.TickValue, opts.MaxContracts),
		brackets: NewBracketManager(b, journal, clock, logger),
		monitor:  NewOrderMonitor(b, journal, clock, session.ID, opts.Paper, logger),
	}
}

// SetHealth registers a reporter notified while Run is serving.
func (e *Engine) SetHealth(h HealthReporter) {
	e.health = h
}

// Session returns the session state. It must not be read while Run is
// executing.
func (e *Engine) Session() *Session {
	return e.session
}

// TickPeriod returns the scheduler period derived from the candle interval:
// the leading minute count of "<n>minute", or two minutes when that cannot
// be parsed.
func TickPeriod(interval string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSuffix(interval, "minute"))
	if err != nil || n <= 0 {
		n = defaultTickMinutes
	}
	return time.Duration(n) * time.Minute
}

// Run drives the session until ctx is cancelled or the session end time is
// reached. It returns nil immediately on weekends. One tick runs at once,
// then ticks and monitor polls are dispatched from a single loop. In-flight
// broker calls are allowed to complete after ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	now := e.clock.Now()
	if e.calendar.IsWeekend(now) {
		e.logger.Info("weekend, not trading", "date", now.In(e.calendar.Location).Format("2006-01-02"))
		return nil
	}

	var eod <-chan time.Time
	end := e.opts.SessionEnd.On(now, e.calendar.Location)
	if wait := end.Sub(now); wait > 0 {
		timer := e.clock.NewTimer(wait)
		defer timer.Stop()
		eod = timer.C()
		e.logger.Info("scheduled session end", "at", end.Format("15:04:05"))
	}

	period := TickPeriod(e.opts.Interval)
	ticker := e.clock.NewTicker(period)
	defer ticker.Stop()
	poller := e.clock.NewTicker(e.opts.PollInterval)
	defer poller.Stop()

	if e.health != nil {
		e.health.SetServing(true)
		defer e.health.SetServing(false)
	}

	e.logger.Info("live session started",
		"symbol", e.opts.TradingSymbol,
		"instrument", e.opts.Instrument,
		"tick", period,
		"poll", e.opts.PollInterval,
		"paper", e.opts.Paper,
	)

	e.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("live session stopped", "ticks", e.session.Ticks, "brackets", e.session.Brackets)
			return nil
		case <-eod:
			e.logger.Info("market closed, ending session", "ticks", e.session.Ticks, "brackets", e.session.Brackets)
			return nil
		case <-ticker.C():
			e.runTick(ctx)
		case <-poller.C():
			if err := e.monitor.Poll(context.WithoutCancel(ctx)); err != nil {
				e.logger.Error("monitor poll", "error", err)
			}
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	e.session.Ticks++
	if err := e.tick(context.WithoutCancel(ctx)); err != nil {
		var auth *broker.AuthExpiredError
		if errors.As(err, &auth) {
			e.logger.Error("session token rejected; refresh ENCTOKEN", "error", err)
			return
		}
		e.logger.Error("live tick", "error", err)
	}
}

// tick evaluates the latest candle and places a bracket on a fresh signal.
// The open-position check and the placement are not atomic with respect to
// the broker.
func (e *Engine) tick(ctx context.Context) error {
	now := e.clock.Now()
	if !e.calendar.IsMarketOpen(now) {
		e.logger.Info("outside market hours", "time", now.In(e.calendar.Location).Format("15:04:05"))
		return nil
	}

	// In paper mode no broker orders exist, so the session flag stands in
	// for the order book.
	if e.opts.Paper {
		if e.session.PositionOpen {
			e.logger.Info("paper position open, skipping", "symbol", e.opts.TradingSymbol)
			return nil
		}
	} else {
		orders, err := e.broker.ListOrders(ctx)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}
		e.session.PositionOpen = hasOpenPosition(orders, e.opts.TradingSymbol)
		if e.session.PositionOpen {
			e.logger.Info("position already open, skipping", "symbol", e.opts.TradingSymbol)
			return nil
		}
	}

	candles, err := e.broker.Historical(ctx, e.opts.Instrument, e.opts.Interval, now.AddDate(0, 0, -e.opts.HistoryDays), now)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		e.logger.Warn("no bars returned for live tick")
		return nil
	}

	bars := e.strategy.Generate(candles, nil)
	last := bars[len(bars)-1]
	e.recordSignal(ctx, last)

	side, ok := last.Signal.Side()
	if !ok {
		e.logger.Info("no new signal", "close", last.Close)
		return nil
	}
	txn := side.EntryTransaction()
	e.logger.Info("new signal", "side", txn, "close", last.Close, "candle", last.Timestamp)

	contracts, err := e.risk.Size()
	if err != nil {
		if errors.Is(err, ErrSizing) {
			e.logger.Warn("entry skipped", "error", err)
			return nil
		}
		return err
	}

	br, err := e.brackets.PlaceEntryWithSLTarget(ctx, BracketRequest{
		SessionID:      e.session.ID,
		TradingSymbol:  e.opts.TradingSymbol,
		Exchange:       e.opts.Exchange,
		Product:        e.opts.Product,
		Side:           txn,
		Contracts:      contracts,
		TickValue:      e.opts.TickValue,
		SLTicks:        e.opts.SLTicks,
		TargetTicks:    e.opts.TargetTicks,
		Commission:     e.opts.Commission,
		TurnoverFeePct: e.opts.TurnoverFeePct,
		GSTPct:         e.opts.GSTPct,
		Paper:          e.opts.Paper,
		LastLTP:        last.Close,
	})
	if err != nil {
		return err
	}

	e.session.PositionOpen = true
	e.session.Brackets++
	e.logger.Info("bracket placed",
		"side", txn,
		"contracts", contracts,
		"entry_id", br.Entry.OrderID,
		"fees", br.Fees.Total,
		"unprotected", br.Unprotected(),
	)
	return nil
}

// hasOpenPosition reports whether any order for symbol carries a non-zero
// quantity, which is how the order book is read as a position.
func hasOpenPosition(orders []domain.OrderRecord, symbol string) bool {
	for _, o := range orders {
		if o.TradingSymbol == symbol && o.Quantity != 0 {
			return true
		}
	}
	return false
}

func (e *Engine) recordSignal(ctx context.Context, b strategy.Bar) {
	if e.journal == nil {
		return
	}
	err := e.journal.RecordSignal(ctx, store.SignalRecord{
		SessionID:     e.session.ID,
		TradingSymbol: e.opts.TradingSymbol,
		Signal:        b.Signal,
		Close:         b.Close,
		CandleTime:    b.Timestamp,
		CreatedAt:     e.clock.Now(),
	})
	if err != nil {
		e.logger.Error("journaling signal", "error", err)
	}
}
