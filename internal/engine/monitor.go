package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kitetrader/internal/broker"
	"kitetrader/internal/domain"
	"kitetrader/internal/store"
	"kitetrader/internal/util"
)

// DefaultPollInterval is the order monitor cadence.
const DefaultPollInterval = 3 * time.Second

// OrderMonitor implements one-cancels-other over the broker order book. On
// each newly seen fill it cancels every other pending order with the same
// trading symbol and quantity. Legs are not linked otherwise, so the pairing
// assumes at most one open bracket per symbol and size.
//
// An OrderMonitor is owned by a single goroutine.
type OrderMonitor struct {
	broker    broker.Broker
	journal   store.Journal
	clock     util.TimeSource
	logger    *slog.Logger
	sessionID string
	paper     bool

	seen map[string]struct{}
}

// NewOrderMonitor creates an OrderMonitor. In paper mode Poll does nothing.
// journal may be nil.
func NewOrderMonitor(b broker.Broker, journal store.Journal, clock util.TimeSource, sessionID string, paper bool, logger *slog.Logger) *OrderMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &OrderMonitor{
		broker:    b,
		journal:   journal,
		clock:     clock,
		logger:    logger.With("component", "monitor"),
		sessionID: sessionID,
		paper:     paper,
		seen:      make(map[string]struct{}),
	}
}

// Poll runs one monitor iteration. Cancel failures are logged and not
// retried; only a failure to list orders is returned.
func (m *OrderMonitor) Poll(ctx context.Context) error {
	if m.paper {
		return nil
	}

	orders, err := m.broker.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("listing orders: %w", err)
	}

	for _, o := range orders {
		if !o.Status.IsFilled() {
			continue
		}
		if _, ok := m.seen[o.OrderID]; ok {
			continue
		}
		m.seen[o.OrderID] = struct{}{}

		m.logger.Info("detected fill",
			"order_id", o.OrderID,
			"symbol", o.TradingSymbol,
			"side", o.TransactionType,
			"status", o.Status,
		)
		m.record(ctx, store.EventFill, o, "")

		for _, sib := range orders {
			if sib.OrderID == o.OrderID ||
				sib.TradingSymbol != o.TradingSymbol ||
				sib.Quantity != o.Quantity ||
				!sib.Status.IsPending() {
				continue
			}
			m.logger.Info("cancelling opposite leg", "order_id", sib.OrderID, "filled", o.OrderID)
			if err := m.broker.CancelOrder(ctx, sib.OrderID); err != nil {
				m.logger.Error("cancel failed", "order_id", sib.OrderID, "error", err)
				m.record(ctx, store.EventCancelFailed, sib, err.Error())
				continue
			}
			m.record(ctx, store.EventCancel, sib, "filled "+o.OrderID)
		}
	}
	return nil
}

// Seen reports whether the fill of orderID has been processed.
func (m *OrderMonitor) Seen(orderID string) bool {
	_, ok := m.seen[orderID]
	return ok
}

func (m *OrderMonitor) record(ctx context.Context, kind store.OrderEventKind, o domain.OrderRecord, detail string) {
	if m.journal == nil {
		return
	}
	err := m.journal.RecordOrderEvent(ctx, store.OrderEvent{
		SessionID:     m.sessionID,
		Kind:          kind,
		OrderID:       o.OrderID,
		TradingSymbol: o.TradingSymbol,
		Status:        o.Status,
		Quantity:      int(o.Quantity),
		Detail:        detail,
		CreatedAt:     m.clock.Now(),
	})
	if err != nil {
		m.logger.Error("journaling order event", "error", err)
	}
}
