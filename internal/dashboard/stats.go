// Package dashboard aggregates the live engine's journal into per-session
// and per-symbol summaries for the command-line report.
package dashboard

import (
	"sort"
	"time"

	"kitetrader/internal/domain"
	"kitetrader/internal/store"
)

// Outcome is how a journaled bracket ended, as far as the journal knows.
type Outcome string

const (
	OutcomeOpen   Outcome = "open"
	OutcomeStop   Outcome = "stop"
	OutcomeTarget Outcome = "target"
	OutcomePaper  Outcome = "paper"
)

// BracketView is a journaled bracket with its observed outcome.
type BracketView struct {
	store.BracketRecord
	Outcome Outcome

	// PnL is estimated from the leg prices, net of fees. Zero while open.
	PnL float64
}

// Unprotected reports whether a live bracket is missing its stop or target.
func (v BracketView) Unprotected() bool {
	return !v.Paper && (v.SLOrderID == "" || v.TargetOrderID == "")
}

// SymbolStats holds aggregated bracket statistics for a single symbol.
type SymbolStats struct {
	Symbol    string
	Brackets  int
	Contracts int
	Stops     int
	Targets   int
	Open      int
	Fees      float64
	PnL       float64
}

// SessionReport is everything the journal holds about one session.
type SessionReport struct {
	SessionID string
	Start     time.Time
	End       time.Time

	Brackets []BracketView
	Symbols  []*SymbolStats // sorted by symbol

	Fills          int
	Cancels        int
	CancelFailures int
	Unprotected    int

	Fees float64
	PnL  float64
}

// BuildReport joins a session's brackets with its order events. A bracket
// whose stop leg was seen filled is a stop-out, likewise for the target.
func BuildReport(sessionID string, brackets []store.BracketRecord, events []store.OrderEvent) SessionReport {
	r := SessionReport{SessionID: sessionID}

	filled := make(map[string]bool)
	for _, e := range events {
		r.observe(e.CreatedAt)
		switch e.Kind {
		case store.EventFill:
			r.Fills++
			filled[e.OrderID] = true
		case store.EventCancel:
			r.Cancels++
		case store.EventCancelFailed:
			r.CancelFailures++
		}
	}

	bySymbol := make(map[string]*SymbolStats)
	for _, b := range brackets {
		r.observe(b.CreatedAt)
		v := view(b, filled)
		r.Brackets = append(r.Brackets, v)
		if v.Unprotected() {
			r.Unprotected++
		}
		r.Fees += v.Fees
		r.PnL += v.PnL

		s := bySymbol[b.TradingSymbol]
		if s == nil {
			s = &SymbolStats{Symbol: b.TradingSymbol}
			bySymbol[b.TradingSymbol] = s
		}
		s.Brackets++
		s.Contracts += b.Contracts
		s.Fees += b.Fees
		s.PnL += v.PnL
		switch v.Outcome {
		case OutcomeStop:
			s.Stops++
		case OutcomeTarget:
			s.Targets++
		case OutcomeOpen:
			s.Open++
		}
	}

	for _, s := range bySymbol {
		r.Symbols = append(r.Symbols, s)
	}
	sort.Slice(r.Symbols, func(i, j int) bool { return r.Symbols[i].Symbol < r.Symbols[j].Symbol })
	return r
}

func (r *SessionReport) observe(t time.Time) {
	if t.IsZero() {
		return
	}
	if r.Start.IsZero() || t.Before(r.Start) {
		r.Start = t
	}
	if t.After(r.End) {
		r.End = t
	}
}

func view(b store.BracketRecord, filled map[string]bool) BracketView {
	v := BracketView{BracketRecord: b, Outcome: OutcomeOpen}
	if b.Paper {
		v.Outcome = OutcomePaper
		return v
	}

	var exit float64
	switch {
	case b.SLOrderID != "" && filled[b.SLOrderID]:
		v.Outcome = OutcomeStop
		exit = b.StopPrice
	case b.TargetOrderID != "" && filled[b.TargetOrderID]:
		v.Outcome = OutcomeTarget
		exit = b.TargetPrice
	default:
		return v
	}
	if b.ExecutedPrice == 0 || exit == 0 {
		return v
	}

	dir := 1.0
	if b.Side == domain.TransactionSell {
		dir = -1
	}
	v.PnL = dir*(exit-b.ExecutedPrice)*float64(b.Contracts) - b.Fees
	return v
}
