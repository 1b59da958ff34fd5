package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kitetrader/internal/domain"
)

// Compile-time interface check.
var _ CandleStore = (*CandleCache)(nil)

// ErrCacheMiss is returned by Load when no cache file exists for a key.
var ErrCacheMiss = errors.New("candle cache miss")

// CacheError reports a cache file that exists but cannot be used.
type CacheError struct {
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("candle cache %s: %v", e.Path, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// CacheKey identifies one cached candle series.
type CacheKey struct {
	Instrument string
	Interval   string
	From       time.Time
	To         time.Time
}

// FileName returns cache_<instrument>_<interval>_<YYYYMMDD>_<YYYYMMDD>.json.
func (k CacheKey) FileName() string {
	return fmt.Sprintf("cache_%s_%s_%s_%s.json",
		k.Instrument, k.Interval, k.From.Format("20060102"), k.To.Format("20060102"))
}

// cacheRecord is the on-disk shape of one candle.
type cacheRecord struct {
	Date   time.Time `json:"dt"`
	Open   float64   `json:"Open"`
	High   float64   `json:"High"`
	Low    float64   `json:"Low"`
	Close  float64   `json:"Close"`
	Volume float64   `json:"Volume"`
}

// CandleCache stores candle series as JSON files in a directory.
type CandleCache struct {
	Dir    string
	logger *slog.Logger
}

// NewCandleCache creates a cache rooted at dir. A nil logger uses
// slog.Default().
func NewCandleCache(dir string, logger *slog.Logger) *CandleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleCache{Dir: dir, logger: logger.With("component", "cache")}
}

// Path returns the file backing key.
func (c *CandleCache) Path(key CacheKey) string {
	return filepath.Join(c.Dir, key.FileName())
}

// Load reads the candles cached under key.
func (c *CandleCache) Load(key CacheKey) ([]domain.Candle, error) {
	path := c.Path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &CacheError{Path: path, Err: err}
	}

	var records []cacheRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &CacheError{Path: path, Err: err}
	}

	candles := make([]domain.Candle, len(records))
	for i, r := range records {
		candles[i] = domain.Candle{
			Timestamp: r.Date,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return candles, nil
}

// Save writes candles under key, replacing any previous file.
func (c *CandleCache) Save(key CacheKey, candles []domain.Candle) error {
	records := make([]cacheRecord, len(candles))
	for i, cd := range candles {
		records[i] = cacheRecord{
			Date:   cd.Timestamp,
			Open:   cd.Open,
			High:   cd.High,
			Low:    cd.Low,
			Close:  cd.Close,
			Volume: cd.Volume,
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding candles: %w", err)
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	// Write to a temp file then rename so readers never see a partial file.
	path := c.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming cache: %w", err)
	}
	return nil
}

// FetchFunc retrieves candles from the broker.
type FetchFunc func(ctx context.Context, instrument, interval string, from, to time.Time) ([]domain.Candle, error)

// FetchCached returns the cached series for key when one exists and is
// non-empty, unless refresh is set. Otherwise it calls fetch and caches
// a non-empty result. A corrupt cache file is logged and refetched; a
// failed fetch is returned to the caller. A failure to write the cache is
// only logged.
func (c *CandleCache) FetchCached(ctx context.Context, key CacheKey, refresh bool, fetch FetchFunc) ([]domain.Candle, error) {
	if !refresh {
		candles, err := c.Load(key)
		var cacheErr *CacheError
		switch {
		case err == nil && len(candles) > 0:
			c.logger.Info("loaded candles from cache", "file", key.FileName(), "count", len(candles))
			return candles, nil
		case errors.As(err, &cacheErr):
			c.logger.Warn("ignoring unreadable cache", "error", err)
		}
	}

	candles, err := fetch(ctx, key.Instrument, key.Interval, key.From, key.To)
	if err != nil {
		return nil, err
	}

	if len(candles) == 0 {
		return candles, nil
	}
	if err := c.Save(key, candles); err != nil {
		c.logger.Warn("failed to save cache", "file", key.FileName(), "error", err)
	} else {
		c.logger.Info("cached candles", "file", key.FileName(), "count", len(candles))
	}
	return candles, nil
}
