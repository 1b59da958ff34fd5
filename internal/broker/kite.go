package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kitetrader/internal/domain"
	"kitetrader/internal/util"
)

// Compile-time interface check.
var _ Broker = (*KiteBroker)(nil)

const (
	defaultKiteVersion = "2.9.8"
	kiteQueryTime      = "2006-01-02 15:04:05"
)

// KiteConfig configures a KiteBroker.
type KiteConfig struct {
	BaseURL        string
	EncToken       string
	Version        string
	Timeout        time.Duration
	RequestsPerSec float64
}

// KiteBroker implements the Broker interface against the Kite web API,
// authenticating with a browser session enctoken. Requests are spaced by a
// client-side rate limiter and never retried.
type KiteBroker struct {
	baseURL  string
	enctoken string
	version  string
	client   *http.Client
	limiter  *util.RateLimiter
	logger   *slog.Logger
}

// NewKiteBroker creates a KiteBroker. A nil logger uses slog.Default().
func NewKiteBroker(cfg KiteConfig, logger *slog.Logger) *KiteBroker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = defaultKiteVersion
	}
	return &KiteBroker{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		enctoken: cfg.EncToken,
		version:  cfg.Version,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  util.NewRateLimiter(cfg.RequestsPerSec),
		logger:   logger.With("component", "kite"),
	}
}

// Name returns "kite".
func (b *KiteBroker) Name() string {
	return "kite"
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type kiteEnvelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

type historicalData struct {
	Candles [][]any `json:"candles"`
}

// ---------------------------------------------------------------------------
// Broker implementation
// ---------------------------------------------------------------------------

// Historical fetches candles from the historical endpoint. Every failure is
// returned as a *DataFetchError wrapping the tagged cause.
func (b *KiteBroker) Historical(ctx context.Context, instrument, interval string, from, to time.Time) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("from", from.Format(kiteQueryTime))
	q.Set("to", to.Format(kiteQueryTime))
	q.Set("oi", "1")
	path := fmt.Sprintf("/oms/instruments/historical/%s/%s?%s",
		url.PathEscape(instrument), url.PathEscape(interval), q.Encode())

	wrap := func(err error) error {
		return &DataFetchError{Instrument: instrument, Interval: interval, Err: err}
	}

	env, err := b.do(ctx, "historical", http.MethodGet, path, nil)
	if err != nil {
		return nil, wrap(err)
	}

	var data historicalData
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, wrap(ErrNoCandles)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, wrap(fmt.Errorf("decoding candles: %w", err))
	}
	if data.Candles == nil {
		return nil, wrap(ErrNoCandles)
	}

	candles := make([]domain.Candle, 0, len(data.Candles))
	for i, row := range data.Candles {
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, wrap(fmt.Errorf("candle %d: %w", i, err))
		}
		candles = append(candles, c)
	}

	b.logger.Debug("fetched candles", "instrument", instrument, "interval", interval, "count", len(candles))
	return candles, nil
}

// PlaceOrder posts a form-encoded order. Validity defaults to DAY and
// variety to regular.
func (b *KiteBroker) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	variety := req.Variety
	if variety == "" {
		variety = "regular"
	}
	validity := req.Validity
	if validity == "" {
		validity = "DAY"
	}

	form := url.Values{}
	form.Set("exchange", req.Exchange)
	form.Set("tradingsymbol", req.TradingSymbol)
	form.Set("transaction_type", string(req.TransactionType))
	form.Set("order_type", string(req.OrderType))
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("product", string(req.Product))
	form.Set("validity", validity)
	form.Set("variety", variety)
	if req.Price != nil {
		form.Set("price", formatPrice(*req.Price))
	}
	if req.TriggerPrice != nil {
		form.Set("trigger_price", formatPrice(*req.TriggerPrice))
	}

	env, err := b.do(ctx, "place order", http.MethodPost, "/oms/orders/"+url.PathEscape(variety), form)
	if err != nil {
		return nil, err
	}

	var resp domain.OrderResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}
	if resp.OrderID == "" {
		return nil, &ValidationError{Status: http.StatusOK, Reason: "response carried no order_id"}
	}

	b.logger.Info("order placed",
		"order_id", resp.OrderID,
		"symbol", req.TradingSymbol,
		"side", req.TransactionType,
		"type", req.OrderType,
		"qty", req.Quantity,
	)
	return &resp, nil
}

// CancelOrder cancels a regular order.
func (b *KiteBroker) CancelOrder(ctx context.Context, orderID string) error {
	_, err := b.do(ctx, "cancel order", http.MethodPost, "/oms/orders/regular/"+url.PathEscape(orderID)+"/cancel", nil)
	if err != nil {
		return err
	}
	b.logger.Info("order cancelled", "order_id", orderID)
	return nil
}

// ListOrders returns all orders of the day. A response without data is an
// empty list.
func (b *KiteBroker) ListOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	env, err := b.do(ctx, "list orders", http.MethodGet, "/oms/orders?status=all", nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	var orders []domain.OrderRecord
	if err := json.Unmarshal(env.Data, &orders); err != nil {
		return nil, fmt.Errorf("decoding orders: %w", err)
	}
	return orders, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// do performs one request and maps failures onto the tagged error set.
func (b *KiteBroker) do(ctx context.Context, op, method, path string, form url.Values) (*kiteEnvelope, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Authorization", "enctoken "+b.enctoken)
	req.Header.Set("X-Kite-Version", b.version)
	req.Header.Set("Referer", b.baseURL+"/")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: err}
	}

	var env kiteEnvelope
	decodeErr := json.Unmarshal(raw, &env)
	message := env.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || env.ErrorType == "TokenException":
		return nil, &AuthExpiredError{Message: message}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{Message: message}
	case resp.StatusCode >= 500:
		return nil, &NetworkError{Op: op, Status: resp.StatusCode, Err: errors.New(message)}
	case resp.StatusCode >= 400:
		return nil, &ValidationError{Status: resp.StatusCode, Reason: message}
	case decodeErr != nil:
		return nil, fmt.Errorf("%s: decoding response: %w", op, decodeErr)
	case env.Status == "error":
		return nil, &ValidationError{Status: resp.StatusCode, Reason: message}
	}
	return &env, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatPrice renders a price with at most two decimals.
func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).Round(2).String()
}

// kiteTimeLayouts lists the timestamp forms returned by the historical
// endpoint.
var kiteTimeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	kiteQueryTime,
}

// parseCandleRow decodes [ts, open, high, low, close, volume, (oi)].
func parseCandleRow(row []any) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}
	tsStr, ok := row[0].(string)
	if !ok {
		return domain.Candle{}, fmt.Errorf("timestamp is %T, want string", row[0])
	}
	var ts time.Time
	var err error
	for _, layout := range kiteTimeLayouts {
		if ts, err = time.Parse(layout, tsStr); err == nil {
			break
		}
	}
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing timestamp %q: %w", tsStr, err)
	}

	var vals [5]float64
	for i := range vals {
		v, err := toFloat(row[i+1])
		if err != nil {
			return domain.Candle{}, err
		}
		vals[i] = v
	}
	return domain.Candle{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected numeric field %T", v)
}
