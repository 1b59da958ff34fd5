// Package strategy turns candles into trading signals and replays those
// signals through the intraday backtest simulator. It also provides a
// Registry for selecting a signal strategy by name.
package strategy

import (
	"sort"

	"kitetrader/internal/domain"
)

// Strategy is the interface that all signal strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Generate annotates every candle with indicators and a signal.
	// higherTF is an optional index-aligned trend reference.
	Generate(candles []domain.Candle, higherTF []float64) []Bar
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
