// Package domain defines the core value types shared across the trading
// engine: candles, signals, positions, trades and broker order records.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Candle is a single OHLCV bar. Candles are immutable once fetched and are
// kept in ascending timestamp order.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ---------------------------------------------------------------------------
// Signals and positions
// ---------------------------------------------------------------------------

// Signal is the per-candle trading decision.
type Signal int

const (
	SignalFlat  Signal = 0
	SignalLong  Signal = 1
	SignalShort Signal = -1
)

// String returns "LONG", "SHORT" or "FLAT".
func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "LONG"
	case SignalShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Side returns the position side implied by a non-flat signal.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalLong:
		return SideLong, true
	case SignalShort:
		return SideShort, true
	}
	return "", false
}

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// EntryTransaction returns the broker transaction type that opens a
// position on this side.
func (s Side) EntryTransaction() TransactionType {
	if s == SideShort {
		return TransactionSell
	}
	return TransactionBuy
}

// ExitReason records why a simulated position was closed.
type ExitReason string

const (
	ExitStop             ExitReason = "stop"
	ExitTarget           ExitReason = "target"
	ExitTime             ExitReason = "time_exit"
	ExitMarketClose      ExitReason = "market_close"
	ExitMarketCloseFinal ExitReason = "market_close_final"
)

// Position is the single open position tracked by the backtest simulator.
// Only CandlesHeld changes after creation.
type Position struct {
	Side        Side
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Size        float64
	EntryTime   time.Time
	EntryIndex  int
	CandlesHeld int
}

// Trade is one closed position lifecycle.
type Trade struct {
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Side       Side       `json:"side"`
	Size       float64    `json:"size"`
	PnL        float64    `json:"pnl"`
	ExitReason ExitReason `json:"reason"`
}

// ---------------------------------------------------------------------------
// Broker orders
// ---------------------------------------------------------------------------

// TransactionType is the broker's BUY/SELL field.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Opposite returns the closing transaction for this one.
func (t TransactionType) Opposite() TransactionType {
	if t == TransactionBuy {
		return TransactionSell
	}
	return TransactionBuy
}

// OrderType is the broker order type.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "SL"
)

// OrderStatus is the broker-side status string.
type OrderStatus string

const (
	OrderStatusOpen           OrderStatus = "OPEN"
	OrderStatusTriggerPending OrderStatus = "TRIGGER PENDING"
	OrderStatusPending        OrderStatus = "PENDING"
	OrderStatusComplete       OrderStatus = "COMPLETE"
	OrderStatusFilled         OrderStatus = "FILLED"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusRejected       OrderStatus = "REJECTED"
)

// IsFilled reports whether the status denotes an executed order.
func (s OrderStatus) IsFilled() bool {
	return s == OrderStatusComplete || s == OrderStatusFilled
}

// IsPending reports whether the order can still execute and so can be
// cancelled.
func (s OrderStatus) IsPending() bool {
	return s == OrderStatusOpen || s == OrderStatusTriggerPending || s == OrderStatusPending
}

// Product is the broker product type (intraday vs carry-forward).
type Product string

const (
	ProductMIS  Product = "MIS"
	ProductNRML Product = "NRML"
)

// OrderRequest is the form body for a new order.
type OrderRequest struct {
	Exchange        string
	TradingSymbol   string
	TransactionType TransactionType
	OrderType       OrderType
	Quantity        int
	Product         Product
	Validity        string
	Variety         string
	Price           *float64
	TriggerPrice    *float64
}

// OrderResponse is what the broker returns for a placed order.
type OrderResponse struct {
	OrderID      string   `json:"order_id"`
	AveragePrice *float64 `json:"average_price,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	TriggerPrice *float64 `json:"trigger_price,omitempty"`
}

// OrderRecord is a broker-owned order as listed by the order book endpoint.
// The engine only observes these and requests cancellation.
type OrderRecord struct {
	OrderID         string          `json:"order_id"`
	TradingSymbol   string          `json:"tradingsymbol"`
	Exchange        string          `json:"exchange,omitempty"`
	TransactionType TransactionType `json:"transaction_type"`
	OrderType       OrderType       `json:"order_type,omitempty"`
	Quantity        Quantity        `json:"quantity"`
	Status          OrderStatus     `json:"status"`
	Price           float64         `json:"price,omitempty"`
	TriggerPrice    float64         `json:"trigger_price,omitempty"`
	AveragePrice    float64         `json:"average_price,omitempty"`
}

// Quantity decodes both numeric and string quantities, since the order
// book returns numbers while form echoes carry strings.
type Quantity int

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("quantity %q: %w", s, err)
		}
		*q = Quantity(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*q = Quantity(int(n))
	return nil
}
