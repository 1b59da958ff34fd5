package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kitetrader/internal/broker"
	"kitetrader/internal/domain"
	"kitetrader/internal/store"
	"kitetrader/internal/util"
)

// Bracket legs, as reported by OrderPlacementError.
const (
	LegEntry  = "entry"
	LegStop   = "stop_loss"
	LegTarget = "target"
)

// OrderPlacementError reports a failed bracket leg.
type OrderPlacementError struct {
	Leg string
	Err error
}

func (e *OrderPlacementError) Error() string {
	return fmt.Sprintf("placing %s order: %v", e.Leg, e.Err)
}

func (e *OrderPlacementError) Unwrap() error { return e.Err }

// BracketRequest describes an entry with its protective legs.
type BracketRequest struct {
	SessionID     string
	TradingSymbol string
	Exchange      string
	Product       domain.Product
	Side          domain.TransactionType
	Contracts     int

	TickValue   float64
	SLTicks     float64
	TargetTicks float64

	Commission     float64
	TurnoverFeePct float64
	GSTPct         float64

	// Paper synthesizes all three legs locally.
	Paper bool
	// LastLTP is the executed price used in paper mode. Zero means unknown.
	LastLTP float64
}

// Bracket is the outcome of a placement. Price pointers are nil when the
// executed price was unknown; leg responses are nil when placement failed.
type Bracket struct {
	Entry    *domain.OrderResponse
	StopLoss *domain.OrderResponse
	Target   *domain.OrderResponse

	ExecutedPrice *float64
	StopPrice     *float64
	TargetPrice   *float64

	Fees  Fees
	Paper bool
}

// Unprotected reports whether the entry is live without both exit legs.
func (b *Bracket) Unprotected() bool {
	return b.Entry != nil && (b.StopLoss == nil || b.Target == nil)
}

// BracketManager places an entry order followed by a stop-loss and a target
// order on the opposite side. A failed exit leg is logged and left nil; the
// entry is never rolled back.
type BracketManager struct {
	broker  broker.Broker
	journal store.Journal
	clock   util.TimeSource
	logger  *slog.Logger
}

// NewBracketManager creates a BracketManager. journal may be nil.
func NewBracketManager(b broker.Broker, journal store.Journal, clock util.TimeSource, logger *slog.Logger) *BracketManager {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &BracketManager{
		broker:  b,
		journal: journal,
		clock:   clock,
		logger:  logger.With("component", "bracket"),
	}
}

// PlaceEntryWithSLTarget places a bracket for req.
func (m *BracketManager) PlaceEntryWithSLTarget(ctx context.Context, req BracketRequest) (*Bracket, error) {
	if req.Contracts <= 0 {
		return nil, errors.New("contracts must be >= 1")
	}

	var br *Bracket
	if req.Paper {
		br = m.paper(req)
	} else {
		var err error
		if br, err = m.live(ctx, req); err != nil {
			return nil, err
		}
	}

	m.record(ctx, req, br)
	return br, nil
}

func (m *BracketManager) paper(req BracketRequest) *Bracket {
	ms := m.clock.Now().UnixMilli()
	br := &Bracket{Paper: true}

	if req.LastLTP > 0 {
		price := req.LastLTP
		br.ExecutedPrice = &price
	}
	br.StopPrice, br.TargetPrice = exitPrices(req, br.ExecutedPrice)

	br.Entry = &domain.OrderResponse{
		OrderID:      fmt.Sprintf("PAPER_ENTRY_%d", ms),
		AveragePrice: br.ExecutedPrice,
	}
	br.StopLoss = &domain.OrderResponse{
		OrderID:      fmt.Sprintf("PAPER_SL_%d", ms),
		TriggerPrice: br.StopPrice,
	}
	br.Target = &domain.OrderResponse{
		OrderID: fmt.Sprintf("PAPER_TGT_%d", ms),
		Price:   br.TargetPrice,
	}
	br.Fees = m.fees(req, br.ExecutedPrice)

	m.logger.Info("paper bracket",
		"symbol", req.TradingSymbol,
		"side", req.Side,
		"contracts", req.Contracts,
		"entry_id", br.Entry.OrderID,
	)
	return br
}

func (m *BracketManager) live(ctx context.Context, req BracketRequest) (*Bracket, error) {
	entry, err := m.broker.PlaceOrder(ctx, domain.OrderRequest{
		Exchange:        req.Exchange,
		TradingSymbol:   req.TradingSymbol,
		TransactionType: req.Side,
		OrderType:       domain.OrderTypeMarket,
		Quantity:        req.Contracts,
		Product:         req.Product,
	})
	if err != nil {
		return nil, &OrderPlacementError{Leg: LegEntry, Err: err}
	}

	br := &Bracket{Entry: entry}
	if entry.AveragePrice != nil && *entry.AveragePrice > 0 {
		price := *entry.AveragePrice
		br.ExecutedPrice = &price
	} else {
		m.logger.Warn("executed price not returned by entry response; exit legs carry no price",
			"order_id", entry.OrderID)
	}
	br.StopPrice, br.TargetPrice = exitPrices(req, br.ExecutedPrice)

	exit := req.Side.Opposite()
	br.StopLoss, err = m.broker.PlaceOrder(ctx, domain.OrderRequest{
		Exchange:        req.Exchange,
		TradingSymbol:   req.TradingSymbol,
		TransactionType: exit,
		OrderType:       domain.OrderTypeStopLoss,
		Quantity:        req.Contracts,
		Product:         req.Product,
		TriggerPrice:    br.StopPrice,
	})
	if err != nil {
		m.logger.Error("stop-loss placement failed", "error", &OrderPlacementError{Leg: LegStop, Err: err})
	}

	br.Target, err = m.broker.PlaceOrder(ctx, domain.OrderRequest{
		Exchange:        req.Exchange,
		TradingSymbol:   req.TradingSymbol,
		TransactionType: exit,
		OrderType:       domain.OrderTypeLimit,
		Quantity:        req.Contracts,
		Product:         req.Product,
		Price:           br.TargetPrice,
	})
	if err != nil {
		m.logger.Error("target placement failed", "error", &OrderPlacementError{Leg: LegTarget, Err: err})
	}

	br.Fees = m.fees(req, br.ExecutedPrice)

	if br.Unprotected() {
		m.logger.Warn("entry is live without full protection",
			"symbol", req.TradingSymbol,
			"entry_id", entry.OrderID,
			"stop_placed", br.StopLoss != nil,
			"target_placed", br.Target != nil,
		)
	}
	return br, nil
}

// exitPrices offsets the stop and target from executed by whole ticks. Both
// are nil when executed is nil.
func exitPrices(req BracketRequest, executed *float64) (stop, target *float64) {
	if executed == nil {
		return nil, nil
	}
	slDist := req.SLTicks * req.TickValue
	tgtDist := req.TargetTicks * req.TickValue
	s, t := *executed-slDist, *executed+tgtDist
	if req.Side == domain.TransactionSell {
		s, t = *executed+slDist, *executed-tgtDist
	}
	return &s, &t
}

func (m *BracketManager) fees(req BracketRequest, executed *float64) Fees {
	var notional float64
	if executed != nil {
		notional = *executed * float64(req.Contracts)
	}
	return EstimateFees(notional, req.Commission, req.TurnoverFeePct, req.GSTPct)
}

func (m *BracketManager) record(ctx context.Context, req BracketRequest, br *Bracket) {
	if m.journal == nil {
		return
	}
	rec := store.BracketRecord{
		SessionID:     req.SessionID,
		TradingSymbol: req.TradingSymbol,
		Side:          req.Side,
		Contracts:     req.Contracts,
		ExecutedPrice: deref(br.ExecutedPrice),
		StopPrice:     deref(br.StopPrice),
		TargetPrice:   deref(br.TargetPrice),
		EntryOrderID:  orderID(br.Entry),
		SLOrderID:     orderID(br.StopLoss),
		TargetOrderID: orderID(br.Target),
		Paper:         br.Paper,
		Fees:          br.Fees.Total,
		CreatedAt:     m.clock.Now(),
	}
	if err := m.journal.RecordBracket(ctx, rec); err != nil {
		m.logger.Error("journaling bracket", "error", err)
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func orderID(r *domain.OrderResponse) string {
	if r == nil {
		return ""
	}
	return r.OrderID
}
