package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Candle can be instantiated with zero values.
	c := Candle{}
	if !c.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Candle")
	}
	if c.Open != 0 || c.High != 0 || c.Low != 0 || c.Close != 0 || c.Volume != 0 {
		t.Error("expected zero OHLCV values for zero-value Candle")
	}

	// Zero-value signal is FLAT.
	var s Signal
	if s != SignalFlat || s.String() != "FLAT" {
		t.Errorf("zero Signal = %v (%q), want FLAT", s, s.String())
	}

	order := OrderRecord{}
	if order.OrderID != "" || order.Status != "" || order.Quantity != 0 {
		t.Error("expected empty zero-value OrderRecord")
	}

	// Verify enum constants are defined correctly.
	if TransactionBuy != "BUY" || TransactionSell != "SELL" {
		t.Error("TransactionType constants have unexpected values")
	}
	if ExitMarketCloseFinal != "market_close_final" {
		t.Errorf("ExitMarketCloseFinal = %q", ExitMarketCloseFinal)
	}

	// Verify structs can be constructed with real values.
	now := time.Now()
	trade := Trade{
		EntryTime:  now,
		ExitTime:   now.Add(2 * time.Minute),
		EntryPrice: 100,
		ExitPrice:  101,
		Side:       SideLong,
		Size:       2,
		PnL:        2,
		ExitReason: ExitTarget,
	}
	if trade.Side != SideLong {
		t.Errorf("trade.Side = %q, want %q", trade.Side, SideLong)
	}
}

func TestSignalSide(t *testing.T) {
	tests := []struct {
		sig    Signal
		side   Side
		ok     bool
		entry  TransactionType
		String string
	}{
		{SignalLong, SideLong, true, TransactionBuy, "LONG"},
		{SignalShort, SideShort, true, TransactionSell, "SHORT"},
		{SignalFlat, "", false, "", "FLAT"},
	}
	for _, tt := range tests {
		side, ok := tt.sig.Side()
		if side != tt.side || ok != tt.ok {
			t.Errorf("%v.Side() = (%q, %v), want (%q, %v)", tt.sig, side, ok, tt.side, tt.ok)
		}
		if ok && side.EntryTransaction() != tt.entry {
			t.Errorf("%q.EntryTransaction() = %q, want %q", side, side.EntryTransaction(), tt.entry)
		}
		if tt.sig.String() != tt.String {
			t.Errorf("String() = %q, want %q", tt.sig.String(), tt.String)
		}
	}
	if TransactionBuy.Opposite() != TransactionSell || TransactionSell.Opposite() != TransactionBuy {
		t.Error("Opposite() did not flip the transaction type")
	}
}

func TestOrderStatusPredicates(t *testing.T) {
	filled := []OrderStatus{OrderStatusComplete, OrderStatusFilled}
	pending := []OrderStatus{OrderStatusOpen, OrderStatusTriggerPending, OrderStatusPending}

	for _, s := range filled {
		if !s.IsFilled() || s.IsPending() {
			t.Errorf("%q: IsFilled=%v IsPending=%v", s, s.IsFilled(), s.IsPending())
		}
	}
	for _, s := range pending {
		if s.IsFilled() || !s.IsPending() {
			t.Errorf("%q: IsFilled=%v IsPending=%v", s, s.IsFilled(), s.IsPending())
		}
	}
	if OrderStatusCancelled.IsFilled() || OrderStatusCancelled.IsPending() {
		t.Error("CANCELLED should be neither filled nor pending")
	}
}

func TestOrderRecordQuantityDecoding(t *testing.T) {
	raw := `[{"order_id":"1","tradingsymbol":"X","quantity":10,"status":"COMPLETE"},
	         {"order_id":"2","tradingsymbol":"X","quantity":"10","status":"OPEN"}]`

	var orders []OrderRecord
	if err := json.Unmarshal([]byte(raw), &orders); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	if orders[0].Quantity != 10 || orders[1].Quantity != 10 {
		t.Errorf("quantities = %d, %d; want 10, 10", orders[0].Quantity, orders[1].Quantity)
	}
	if orders[1].Status != OrderStatusOpen {
		t.Errorf("status = %q, want OPEN", orders[1].Status)
	}
}
