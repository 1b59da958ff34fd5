// Package broker defines the Broker interface and provides implementations
// for fetching candles and managing orders at the brokerage.
package broker

import (
	"context"
	"time"

	"kitetrader/internal/domain"
)

// Broker abstracts the brokerage operations the engine depends on.
type Broker interface {
	// Name returns the broker identifier (e.g. "kite", "simulator").
	Name() string

	// Historical returns candles for instrument at interval within
	// [from, to], oldest first.
	Historical(ctx context.Context, instrument, interval string, from, to time.Time) ([]domain.Candle, error)

	// PlaceOrder sends an order to the brokerage.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// ListOrders returns every order of the trading day, in any status.
	ListOrders(ctx context.Context) ([]domain.OrderRecord, error)
}
