package broker

import (
	"errors"
	"fmt"
)

// ErrNoCandles is returned when the historical endpoint answers without a
// candle list.
var ErrNoCandles = errors.New("no candles returned")

// NetworkError is a transport failure or a 5xx response.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthExpiredError is returned when the broker rejects the session token.
type AuthExpiredError struct {
	Message string
}

func (e *AuthExpiredError) Error() string {
	return "session expired: " + e.Message
}

// RateLimitedError is returned on HTTP 429.
type RateLimitedError struct {
	Message string
}

func (e *RateLimitedError) Error() string {
	return "rate limited: " + e.Message
}

// ValidationError is any other rejection of a request by the broker.
type ValidationError struct {
	Status int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Reason)
}

// DataFetchError wraps a failed candle fetch.
type DataFetchError struct {
	Instrument string
	Interval   string
	Err        error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetching %s %s candles: %v", e.Instrument, e.Interval, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }
