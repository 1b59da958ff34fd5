package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kitetrader/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface in memory. It serves a
// fixed candle series, keeps an order book and records every placement and
// cancellation so callers can inspect the traffic. Market orders fill
// immediately; LIMIT orders rest as OPEN and SL orders as TRIGGER PENDING.
type SimulatorBroker struct {
	mu        sync.Mutex
	candles   []domain.Candle
	orders    []domain.OrderRecord
	placed    []domain.OrderRequest
	cancelled []string
	nextID    int

	// FillPrice is reported as the average price of market orders when
	// positive.
	FillPrice float64

	// PlaceErr, when set, is consulted before every placement. A non-nil
	// return fails that placement.
	PlaceErr func(req domain.OrderRequest) error
	// CancelErr, when set, is consulted before every cancellation.
	CancelErr func(orderID string) error
	// ListErr and HistoricalErr fail the respective calls when non-nil.
	ListErr       error
	HistoricalErr error
}

// NewSimulatorBroker creates an empty SimulatorBroker.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SetCandles replaces the candle series served by Historical.
func (b *SimulatorBroker) SetCandles(candles []domain.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.candles = append([]domain.Candle(nil), candles...)
}

// SetOrders replaces the order book.
func (b *SimulatorBroker) SetOrders(orders []domain.OrderRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append([]domain.OrderRecord(nil), orders...)
}

// SetStatus changes the status of a booked order. It reports whether the
// order exists.
func (b *SimulatorBroker) SetStatus(orderID string, status domain.OrderStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.orders {
		if b.orders[i].OrderID == orderID {
			b.orders[i].Status = status
			return true
		}
	}
	return false
}

// Placed returns a copy of every accepted order request, in order.
func (b *SimulatorBroker) Placed() []domain.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OrderRequest(nil), b.placed...)
}

// Cancelled returns the ids passed to successful CancelOrder calls.
func (b *SimulatorBroker) Cancelled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.cancelled...)
}

// Historical returns the candles whose timestamps fall within [from, to].
func (b *SimulatorBroker) Historical(_ context.Context, instrument, interval string, from, to time.Time) ([]domain.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.HistoricalErr != nil {
		return nil, &DataFetchError{Instrument: instrument, Interval: interval, Err: b.HistoricalErr}
	}
	var out []domain.Candle
	for _, c := range b.candles {
		if c.Timestamp.Before(from) || c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	if out == nil {
		return nil, &DataFetchError{Instrument: instrument, Interval: interval, Err: ErrNoCandles}
	}
	return out, nil
}

// PlaceOrder books the order under a sequential SIM-<n> id.
func (b *SimulatorBroker) PlaceOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PlaceErr != nil {
		if err := b.PlaceErr(req); err != nil {
			return nil, err
		}
	}

	b.nextID++
	id := fmt.Sprintf("SIM-%d", b.nextID)
	rec := domain.OrderRecord{
		OrderID:         id,
		TradingSymbol:   req.TradingSymbol,
		Exchange:        req.Exchange,
		TransactionType: req.TransactionType,
		OrderType:       req.OrderType,
		Quantity:        domain.Quantity(req.Quantity),
	}
	resp := &domain.OrderResponse{OrderID: id}
	switch req.OrderType {
	case domain.OrderTypeLimit:
		rec.Status = domain.OrderStatusOpen
	case domain.OrderTypeStopLoss:
		rec.Status = domain.OrderStatusTriggerPending
	default:
		rec.Status = domain.OrderStatusComplete
		if b.FillPrice > 0 {
			rec.AveragePrice = b.FillPrice
			p := b.FillPrice
			resp.AveragePrice = &p
		}
	}
	if req.Price != nil {
		rec.Price = *req.Price
		p := *req.Price
		resp.Price = &p
	}
	if req.TriggerPrice != nil {
		rec.TriggerPrice = *req.TriggerPrice
		p := *req.TriggerPrice
		resp.TriggerPrice = &p
	}

	b.orders = append(b.orders, rec)
	b.placed = append(b.placed, req)
	return resp, nil
}

// CancelOrder marks a pending order as cancelled.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CancelErr != nil {
		if err := b.CancelErr(orderID); err != nil {
			return err
		}
	}
	for i := range b.orders {
		if b.orders[i].OrderID != orderID {
			continue
		}
		if !b.orders[i].Status.IsPending() {
			return &ValidationError{Status: 400, Reason: fmt.Sprintf("order %s is %s", orderID, b.orders[i].Status)}
		}
		b.orders[i].Status = domain.OrderStatusCancelled
		b.cancelled = append(b.cancelled, orderID)
		return nil
	}
	return &ValidationError{Status: 400, Reason: "unknown order " + orderID}
}

// ListOrders returns a copy of the order book.
func (b *SimulatorBroker) ListOrders(_ context.Context) ([]domain.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	return append([]domain.OrderRecord(nil), b.orders...), nil
}
