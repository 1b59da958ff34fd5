package engine

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kitetrader/internal/broker"
	"kitetrader/internal/domain"
	"kitetrader/internal/store"
	"kitetrader/internal/strategy"
	"kitetrader/internal/util"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memJournal struct {
	mu       sync.Mutex
	brackets []store.BracketRecord
	events   []store.OrderEvent
	signals  []store.SignalRecord
}

var _ store.Journal = (*memJournal)(nil)

func (j *memJournal) RecordBracket(_ context.Context, b store.BracketRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.brackets = append(j.brackets, b)
	return nil
}

func (j *memJournal) RecordOrderEvent(_ context.Context, e store.OrderEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *memJournal) RecordSignal(_ context.Context, s store.SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.signals = append(j.signals, s)
	return nil
}

func (j *memJournal) ListBrackets(_ context.Context, _ string) ([]store.BracketRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]store.BracketRecord(nil), j.brackets...), nil
}

func (j *memJournal) ListOrderEvents(_ context.Context, _ string) ([]store.OrderEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]store.OrderEvent(nil), j.events...), nil
}

func (j *memJournal) ListSignals(_ context.Context, _ string, _ int) ([]store.SignalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]store.SignalRecord(nil), j.signals...), nil
}

// countingBroker counts order-book and candle requests.
type countingBroker struct {
	*broker.SimulatorBroker
	lists atomic.Int32
	hist  atomic.Int32
}

func (c *countingBroker) ListOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	c.lists.Add(1)
	return c.SimulatorBroker.ListOrders(ctx)
}

func (c *countingBroker) Historical(ctx context.Context, instrument, interval string, from, to time.Time) ([]domain.Candle, error) {
	c.hist.Add(1)
	return c.SimulatorBroker.Historical(ctx, instrument, interval, from, to)
}

// stubStrategy marks the last candle with a fixed signal.
type stubStrategy struct{ signal domain.Signal }

func (stubStrategy) Name() string { return "stub" }

func (s stubStrategy) Generate(candles []domain.Candle, _ []float64) []strategy.Bar {
	bars := make([]strategy.Bar, len(candles))
	for i, c := range candles {
		bars[i].Candle = c
	}
	if len(bars) > 0 {
		bars[len(bars)-1].Signal = s.signal
	}
	return bars
}

type recordingHealth struct {
	mu     sync.Mutex
	states []bool
}

func (h *recordingHealth) SetServing(serving bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, serving)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testCalendar(t *testing.T) *util.TradingCalendar {
	t.Helper()
	cal, err := util.NewTradingCalendar("09:00", "23:30", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("NewTradingCalendar: %v", err)
	}
	return cal
}

// monday returns hh:mm on Monday 2025-01-06 in the calendar zone.
func monday(cal *util.TradingCalendar, hh, mm int) time.Time {
	return time.Date(2025, 1, 6, hh, mm, 0, 0, cal.Location)
}

func liveOptions() Options {
	return Options{
		Instrument:     "111111",
		TradingSymbol:  "CRUDEOIL25JANFUT",
		Exchange:       "MCX",
		Product:        domain.ProductMIS,
		Interval:       "2minute",
		Capital:        450000,
		RiskPct:        0.02,
		SLTicks:        40,
		TargetTicks:    20,
		TickValue:      10,
		Commission:     20,
		TurnoverFeePct: 0.0002,
		GSTPct:         0.18,
		PollInterval:   time.Hour,
		SessionEnd:     util.Clock{Hour: 23, Minute: 31},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func startEngine(t *testing.T, e *Engine) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- e.Run(ctx) }()
	t.Cleanup(cancelCtx)
	return cancelCtx, ch
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// ---------------------------------------------------------------------------
// Sizing and fees
// ---------------------------------------------------------------------------

func TestComputeQuantity(t *testing.T) {
	tests := []struct {
		name                               string
		capital, riskPct, slTicks, tickVal float64
		max                                int
		want                               int
	}{
		{"backtest defaults", 450000, 0.014, 30, 10, 0, 21},
		{"live defaults", 450000, 0.02, 40, 10, 0, 22},
		{"zero stop", 450000, 0.02, 0, 10, 0, 0},
		{"negative tick value", 450000, 0.02, 40, -10, 0, 0},
		{"below one contract", 1000, 0.01, 40, 10, 0, 0},
		{"clamped to default max", 1e9, 0.1, 1, 1, 0, DefaultMaxContracts},
		{"clamped to max", 1e6, 0.1, 1, 1, 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeQuantity(tt.capital, tt.riskPct, tt.slTicks, tt.tickVal, tt.max)
			if got != tt.want {
				t.Errorf("ComputeQuantity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRiskManagerSize(t *testing.T) {
	n, err := NewRiskManager(450000, 0.014, 30, 10, 1000).Size()
	if err != nil || n != 21 {
		t.Errorf("Size() = %d, %v; want 21, nil", n, err)
	}

	_, err = NewRiskManager(100, 0.01, 40, 10, 1000).Size()
	if !errors.Is(err, ErrSizing) {
		t.Errorf("Size() error = %v, want ErrSizing", err)
	}
}

func TestEstimateFees(t *testing.T) {
	f := EstimateFees(100000, 20, 0.0002, 0.18)
	if !approx(f.Turnover, 20) || !approx(f.GSTOnBroker, 3.6) || !approx(f.Total, 43.6) {
		t.Errorf("EstimateFees() = %+v", f)
	}

	zero := EstimateFees(0, 20, 0.0002, 0.18)
	if !approx(zero.Total, 23.6) {
		t.Errorf("EstimateFees(0).Total = %v, want 23.6", zero.Total)
	}
}

// ---------------------------------------------------------------------------
// Bracket manager
// ---------------------------------------------------------------------------

func bracketRequest(side domain.TransactionType) BracketRequest {
	return BracketRequest{
		SessionID:      "s1",
		TradingSymbol:  "CRUDEOIL25JANFUT",
		Exchange:       "MCX",
		Product:        domain.ProductMIS,
		Side:           side,
		Contracts:      22,
		TickValue:      10,
		SLTicks:        40,
		TargetTicks:    20,
		Commission:     20,
		TurnoverFeePct: 0.0002,
		GSTPct:         0.18,
	}
}

func TestBracketPaper(t *testing.T) {
	cal := testCalendar(t)
	now := monday(cal, 10, 0)
	clock := util.NewFakeClock(now)
	sim := broker.NewSimulatorBroker()
	journal := &memJournal{}
	m := NewBracketManager(sim, journal, clock, nil)

	req := bracketRequest(domain.TransactionBuy)
	req.Paper = true
	req.LastLTP = 5000

	br, err := m.PlaceEntryWithSLTarget(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceEntryWithSLTarget() error: %v", err)
	}
	if len(sim.Placed()) != 0 {
		t.Errorf("paper bracket reached the broker: %v", sim.Placed())
	}

	ms := now.UnixMilli()
	if br.Entry.OrderID != "PAPER_ENTRY_"+itoa(ms) ||
		br.StopLoss.OrderID != "PAPER_SL_"+itoa(ms) ||
		br.Target.OrderID != "PAPER_TGT_"+itoa(ms) {
		t.Errorf("ids = %s %s %s", br.Entry.OrderID, br.StopLoss.OrderID, br.Target.OrderID)
	}
	if *br.StopPrice != 4600 || *br.TargetPrice != 5200 {
		t.Errorf("stop/target = %v/%v, want 4600/5200", *br.StopPrice, *br.TargetPrice)
	}
	if *br.StopLoss.TriggerPrice != 4600 || *br.Target.Price != 5200 {
		t.Error("paper legs do not carry the exit prices")
	}
	wantFees := EstimateFees(5000*22, 20, 0.0002, 0.18)
	if !approx(br.Fees.Total, wantFees.Total) {
		t.Errorf("Fees.Total = %v, want %v", br.Fees.Total, wantFees.Total)
	}
	if br.Unprotected() {
		t.Error("paper bracket reported unprotected")
	}

	if len(journal.brackets) != 1 || !journal.brackets[0].Paper || journal.brackets[0].SessionID != "s1" {
		t.Errorf("journal = %+v", journal.brackets)
	}
}

func TestBracketPaperWithoutPrice(t *testing.T) {
	m := NewBracketManager(broker.NewSimulatorBroker(), nil, util.NewFakeClock(time.Unix(0, 0)), nil)
	req := bracketRequest(domain.TransactionSell)
	req.Paper = true

	br, err := m.PlaceEntryWithSLTarget(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if br.ExecutedPrice != nil || br.StopPrice != nil || br.TargetPrice != nil {
		t.Error("prices should be absent without a last traded price")
	}
	if !approx(br.Fees.Total, 23.6) {
		t.Errorf("Fees.Total = %v, want 23.6", br.Fees.Total)
	}
}

func TestBracketLive(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.FillPrice = 5000
	m := NewBracketManager(sim, nil, nil, nil)

	br, err := m.PlaceEntryWithSLTarget(context.Background(), bracketRequest(domain.TransactionSell))
	if err != nil {
		t.Fatalf("PlaceEntryWithSLTarget() error: %v", err)
	}

	placed := sim.Placed()
	if len(placed) != 3 {
		t.Fatalf("placed %d orders, want 3", len(placed))
	}
	entry, sl, tgt := placed[0], placed[1], placed[2]
	if entry.OrderType != domain.OrderTypeMarket || entry.TransactionType != domain.TransactionSell || entry.Quantity != 22 {
		t.Errorf("entry = %+v", entry)
	}
	if sl.OrderType != domain.OrderTypeStopLoss || sl.TransactionType != domain.TransactionBuy || *sl.TriggerPrice != 5400 {
		t.Errorf("stop-loss = %+v", sl)
	}
	if tgt.OrderType != domain.OrderTypeLimit || tgt.TransactionType != domain.TransactionBuy || *tgt.Price != 4800 {
		t.Errorf("target = %+v", tgt)
	}
	if br.Entry.OrderID != "SIM-1" || br.Unprotected() {
		t.Errorf("bracket = %+v", br)
	}
}

func TestBracketLiveWithoutAveragePrice(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	m := NewBracketManager(sim, nil, nil, nil)

	br, err := m.PlaceEntryWithSLTarget(context.Background(), bracketRequest(domain.TransactionBuy))
	if err != nil {
		t.Fatal(err)
	}
	if br.ExecutedPrice != nil {
		t.Error("executed price should be absent")
	}
	placed := sim.Placed()
	if len(placed) != 3 || placed[1].TriggerPrice != nil || placed[2].Price != nil {
		t.Errorf("exit legs should be placed without prices: %+v", placed)
	}
}

func TestBracketEntryFailure(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.PlaceErr = func(domain.OrderRequest) error {
		return &broker.ValidationError{Status: 400, Reason: "insufficient margin"}
	}
	journal := &memJournal{}
	m := NewBracketManager(sim, journal, nil, nil)

	_, err := m.PlaceEntryWithSLTarget(context.Background(), bracketRequest(domain.TransactionBuy))
	var ope *OrderPlacementError
	if !errors.As(err, &ope) || ope.Leg != LegEntry {
		t.Fatalf("err = %v, want entry OrderPlacementError", err)
	}
	var ve *broker.ValidationError
	if !errors.As(err, &ve) {
		t.Error("cause not preserved")
	}
	if len(journal.brackets) != 0 {
		t.Error("failed entry was journaled")
	}
}

func TestBracketPartialFailure(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.FillPrice = 5000
	sim.PlaceErr = func(req domain.OrderRequest) error {
		if req.OrderType == domain.OrderTypeStopLoss {
			return &broker.NetworkError{Op: "place order", Status: 503, Err: errors.New("unavailable")}
		}
		return nil
	}
	journal := &memJournal{}
	m := NewBracketManager(sim, journal, nil, nil)

	br, err := m.PlaceEntryWithSLTarget(context.Background(), bracketRequest(domain.TransactionBuy))
	if err != nil {
		t.Fatalf("partial failure must not fail the bracket: %v", err)
	}
	if br.StopLoss != nil || br.Target == nil {
		t.Errorf("legs = %v/%v, want nil stop and a target", br.StopLoss, br.Target)
	}
	if !br.Unprotected() {
		t.Error("bracket without stop-loss should be unprotected")
	}
	if len(sim.Cancelled()) != 0 {
		t.Error("entry must not be rolled back")
	}
	if len(journal.brackets) != 1 || journal.brackets[0].SLOrderID != "" || journal.brackets[0].TargetOrderID == "" {
		t.Errorf("journal = %+v", journal.brackets)
	}
}

func TestBracketRejectsZeroContracts(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	m := NewBracketManager(sim, nil, nil, nil)
	req := bracketRequest(domain.TransactionBuy)
	req.Contracts = 0
	if _, err := m.PlaceEntryWithSLTarget(context.Background(), req); err == nil {
		t.Error("expected an error for zero contracts")
	}
	if len(sim.Placed()) != 0 {
		t.Error("orders placed for zero contracts")
	}
}

// ---------------------------------------------------------------------------
// Order monitor
// ---------------------------------------------------------------------------

func TestOrderMonitorCancelsSiblingOnce(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.SetOrders([]domain.OrderRecord{
		{OrderID: "1", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusComplete},
		{OrderID: "2", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusOpen},
	})
	journal := &memJournal{}
	m := NewOrderMonitor(sim, journal, nil, "s1", false, nil)
	ctx := context.Background()

	if err := m.Poll(ctx); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if got := sim.Cancelled(); len(got) != 1 || got[0] != "2" {
		t.Fatalf("Cancelled() = %v, want [2]", got)
	}
	if !m.Seen("1") {
		t.Error("fill 1 not marked seen")
	}

	// The sibling reappearing as pending must not re-trigger the same fill.
	sim.SetStatus("2", domain.OrderStatusOpen)
	if err := m.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if got := sim.Cancelled(); len(got) != 1 {
		t.Errorf("Cancelled() = %v, want a single cancel", got)
	}

	if len(journal.events) != 2 || journal.events[0].Kind != store.EventFill || journal.events[1].Kind != store.EventCancel {
		t.Errorf("journal events = %+v", journal.events)
	}
}

func TestOrderMonitorMatching(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.SetOrders([]domain.OrderRecord{
		{OrderID: "1", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusFilled},
		{OrderID: "2", TradingSymbol: "X", Quantity: 5, Status: domain.OrderStatusOpen},
		{OrderID: "3", TradingSymbol: "Y", Quantity: 10, Status: domain.OrderStatusOpen},
		{OrderID: "4", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusRejected},
		{OrderID: "5", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusTriggerPending},
		{OrderID: "6", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusPending},
	})
	m := NewOrderMonitor(sim, nil, nil, "s1", false, nil)
	if err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(sim.Cancelled(), ",")
	if got != "5,6" {
		t.Errorf("Cancelled() = %s, want 5,6", got)
	}
}

func TestOrderMonitorCancelFailureNotRetried(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.SetOrders([]domain.OrderRecord{
		{OrderID: "1", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusComplete},
		{OrderID: "2", TradingSymbol: "X", Quantity: 10, Status: domain.OrderStatusOpen},
	})
	attempts := 0
	sim.CancelErr = func(string) error {
		attempts++
		return &broker.NetworkError{Op: "cancel order", Err: errors.New("timeout")}
	}
	journal := &memJournal{}
	m := NewOrderMonitor(sim, journal, nil, "s1", false, nil)

	for range 3 {
		if err := m.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() error: %v", err)
		}
	}
	if attempts != 1 {
		t.Errorf("cancel attempts = %d, want 1", attempts)
	}
	if len(journal.events) != 2 || journal.events[1].Kind != store.EventCancelFailed {
		t.Errorf("journal events = %+v", journal.events)
	}
}

func TestOrderMonitorPaperIdles(t *testing.T) {
	cb := &countingBroker{SimulatorBroker: broker.NewSimulatorBroker()}
	cb.ListErr = errors.New("must not be called")
	m := NewOrderMonitor(cb, nil, nil, "s1", true, nil)
	if err := m.Poll(context.Background()); err != nil {
		t.Errorf("Poll() = %v, want nil", err)
	}
	if cb.lists.Load() != 0 {
		t.Error("paper monitor listed orders")
	}
}

func TestOrderMonitorListError(t *testing.T) {
	sim := broker.NewSimulatorBroker()
	sim.ListErr = &broker.AuthExpiredError{Message: "expired"}
	m := NewOrderMonitor(sim, nil, nil, "s1", false, nil)
	err := m.Poll(context.Background())
	var ae *broker.AuthExpiredError
	if !errors.As(err, &ae) {
		t.Errorf("Poll() = %v, want wrapped AuthExpiredError", err)
	}
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

func TestTickPeriod(t *testing.T) {
	tests := map[string]time.Duration{
		"2minute":  2 * time.Minute,
		"3minute":  3 * time.Minute,
		"15minute": 15 * time.Minute,
		"minute":   2 * time.Minute,
		"day":      2 * time.Minute,
		"":         2 * time.Minute,
	}
	for in, want := range tests {
		if got := TickPeriod(in); got != want {
			t.Errorf("TickPeriod(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHasOpenPosition(t *testing.T) {
	orders := []domain.OrderRecord{
		{TradingSymbol: "X", Quantity: 0},
		{TradingSymbol: "Y", Quantity: 3},
	}
	if hasOpenPosition(orders, "X") {
		t.Error("zero-quantity order read as a position")
	}
	if !hasOpenPosition(orders, "Y") {
		t.Error("order with quantity not read as a position")
	}
}

func TestEngineWeekend(t *testing.T) {
	cal := testCalendar(t)
	clock := util.NewFakeClock(time.Date(2025, 1, 4, 10, 0, 0, 0, cal.Location))
	cb := &countingBroker{SimulatorBroker: broker.NewSimulatorBroker()}
	e := NewEngine(cb, nil, stubStrategy{domain.SignalLong}, cal, clock, liveOptions(), nil)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if clock.Waiters() != 0 || cb.lists.Load() != 0 || cb.hist.Load() != 0 {
		t.Error("weekend run did work")
	}
}

func TestEngineLiveTickPlacesOneBracket(t *testing.T) {
	cal := testCalendar(t)
	now := monday(cal, 10, 0)
	clock := util.NewFakeClock(now)

	cb := &countingBroker{SimulatorBroker: broker.NewSimulatorBroker()}
	cb.FillPrice = 5000
	cb.SetCandles([]domain.Candle{
		{Timestamp: now.Add(-4 * time.Minute), Open: 4990, High: 5005, Low: 4985, Close: 4998},
		{Timestamp: now.Add(-2 * time.Minute), Open: 4998, High: 5010, Low: 4995, Close: 5000},
	})
	journal := &memJournal{}
	health := &recordingHealth{}

	e := NewEngine(cb, journal, stubStrategy{domain.SignalLong}, cal, clock, liveOptions(), nil)
	e.SetHealth(health)
	cancel, done := startEngine(t, e)

	waitFor(t, "initial bracket", func() bool { return len(cb.Placed()) == 3 })
	waitFor(t, "timers", func() bool { return clock.Waiters() == 3 })

	// The next tick sees the filled entry in the order book and skips.
	clock.Advance(2 * time.Minute)
	waitFor(t, "second tick", func() bool { return cb.lists.Load() == 2 })

	cancel()
	waitDone(t, done)

	placed := cb.Placed()
	if len(placed) != 3 {
		t.Fatalf("placed %d orders, want 3", len(placed))
	}
	if placed[0].TransactionType != domain.TransactionBuy || placed[0].Quantity != 22 {
		t.Errorf("entry = %+v, want BUY 22", placed[0])
	}
	if *placed[1].TriggerPrice != 4600 || *placed[2].Price != 5200 {
		t.Errorf("exit prices = %v/%v, want 4600/5200", *placed[1].TriggerPrice, *placed[2].Price)
	}
	if cb.hist.Load() != 1 {
		t.Errorf("Historical calls = %d, want 1", cb.hist.Load())
	}

	s := e.Session()
	if !s.PositionOpen || s.Brackets != 1 || s.ID == "" {
		t.Errorf("session = %+v", s)
	}
	if len(journal.signals) != 1 || journal.signals[0].Signal != domain.SignalLong {
		t.Errorf("signals = %+v", journal.signals)
	}
	if len(journal.brackets) != 1 || journal.brackets[0].SessionID != s.ID {
		t.Errorf("brackets = %+v", journal.brackets)
	}
	if clock.Waiters() != 0 {
		t.Errorf("Waiters() = %d after Run, want 0", clock.Waiters())
	}

	health.mu.Lock()
	defer health.mu.Unlock()
	if len(health.states) != 2 || !health.states[0] || health.states[1] {
		t.Errorf("health states = %v, want [true false]", health.states)
	}
}

func TestEngineMonitorCancelsSibling(t *testing.T) {
	cal := testCalendar(t)
	clock := util.NewFakeClock(monday(cal, 10, 0))

	sim := broker.NewSimulatorBroker()
	sim.HistoricalErr = errors.New("upstream down")

	opts := liveOptions()
	opts.Interval = "60minute"
	opts.PollInterval = 3 * time.Second
	e := NewEngine(sim, nil, stubStrategy{domain.SignalLong}, cal, clock, opts, nil)
	cancel, done := startEngine(t, e)

	waitFor(t, "timers", func() bool { return clock.Waiters() == 3 })
	sim.SetOrders([]domain.OrderRecord{
		{OrderID: "sl", TradingSymbol: "CRUDEOIL25JANFUT", Quantity: 22, Status: domain.OrderStatusComplete},
		{OrderID: "tgt", TradingSymbol: "CRUDEOIL25JANFUT", Quantity: 22, Status: domain.OrderStatusOpen},
	})
	clock.Advance(3 * time.Second)
	waitFor(t, "sibling cancel", func() bool { return len(sim.Cancelled()) == 1 })

	cancel()
	waitDone(t, done)

	if got := sim.Cancelled(); got[0] != "tgt" {
		t.Errorf("Cancelled() = %v, want [tgt]", got)
	}
	if len(sim.Placed()) != 0 {
		t.Error("orders placed although the candle fetch failed")
	}
}

func TestEnginePaperBracket(t *testing.T) {
	cal := testCalendar(t)
	now := monday(cal, 10, 0)
	clock := util.NewFakeClock(now)

	cb := &countingBroker{SimulatorBroker: broker.NewSimulatorBroker()}
	cb.SetCandles([]domain.Candle{{Timestamp: now.Add(-2 * time.Minute), Close: 5000}})
	journal := &memJournal{}

	opts := liveOptions()
	opts.Paper = true
	e := NewEngine(cb, journal, stubStrategy{domain.SignalShort}, cal, clock, opts, nil)
	cancel, done := startEngine(t, e)

	waitFor(t, "paper bracket", func() bool {
		journal.mu.Lock()
		defer journal.mu.Unlock()
		return len(journal.brackets) == 1
	})
	cancel()
	waitDone(t, done)

	if len(cb.Placed()) != 0 || cb.lists.Load() != 0 {
		t.Error("paper session touched the broker order endpoints")
	}
	b := journal.brackets[0]
	if !b.Paper || b.Side != domain.TransactionSell || b.StopPrice != 5400 || b.TargetPrice != 4800 {
		t.Errorf("bracket = %+v", b)
	}
	if !strings.HasPrefix(b.EntryOrderID, "PAPER_ENTRY_") {
		t.Errorf("EntryOrderID = %q", b.EntryOrderID)
	}
	if !e.Session().PositionOpen {
		t.Error("paper session should hold a position")
	}
}

func TestEngineOutsideMarketHours(t *testing.T) {
	cal := testCalendar(t)
	clock := util.NewFakeClock(monday(cal, 8, 0))
	cb := &countingBroker{SimulatorBroker: broker.NewSimulatorBroker()}

	e := NewEngine(cb, nil, stubStrategy{domain.SignalLong}, cal, clock, liveOptions(), nil)
	cancel, done := startEngine(t, e)
	waitFor(t, "timers", func() bool { return clock.Waiters() == 3 })
	cancel()
	waitDone(t, done)

	if cb.lists.Load() != 0 || cb.hist.Load() != 0 {
		t.Error("tick before the open reached the broker")
	}
}

func TestEngineStopsAtSessionEnd(t *testing.T) {
	cal := testCalendar(t)
	clock := util.NewFakeClock(monday(cal, 23, 29))
	sim := broker.NewSimulatorBroker()

	e := NewEngine(sim, nil, stubStrategy{domain.SignalFlat}, cal, clock, liveOptions(), nil)
	_, done := startEngine(t, e)
	waitFor(t, "timers", func() bool { return clock.Waiters() == 3 })

	clock.Advance(2 * time.Minute)
	waitDone(t, done)
}

func TestEngineNoEndTimerAfterSessionEnd(t *testing.T) {
	cal := testCalendar(t)
	clock := util.NewFakeClock(monday(cal, 23, 45))
	sim := broker.NewSimulatorBroker()

	e := NewEngine(sim, nil, stubStrategy{domain.SignalFlat}, cal, clock, liveOptions(), nil)
	cancel, done := startEngine(t, e)
	waitFor(t, "tickers", func() bool { return clock.Waiters() == 2 })
	cancel()
	waitDone(t, done)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
