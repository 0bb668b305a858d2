package price

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"TradeCore/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// fakeKlines serves hourly candles for any window and records each request.
type fakeKlines struct {
	mu       sync.Mutex
	requests [][2]time.Time
	err      error
}

func (f *fakeKlines) FetchCandles(_ context.Context, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, [2]time.Time{start, end})
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Price
	for ts := start.Truncate(time.Hour); !ts.After(end); ts = ts.Add(time.Hour) {
		if ts.Before(start) {
			continue
		}
		out = append(out, hourly(symbol, timeFrame, ts))
	}
	return out, nil
}

func hourly(symbol, timeFrame string, ts time.Time) models.Price {
	price := 100 + float64(ts.Sub(t0)/time.Hour)
	return models.Price{
		Symbol:    symbol,
		TimeFrame: timeFrame,
		OpenTime:  ts,
		CloseTime: ts.Add(time.Hour - time.Millisecond),
		Open:      price,
		High:      price + 1,
		Low:       price - 1,
		Close:     price + 0.5,
		Volume:    10,
	}
}

func newTestFetcher(source KlineSource) *PriceFetcher {
	f := NewPriceFetcher(source, nil)
	f.pause = 0
	return f
}

func TestPriceFetcherChunksAndDedups(t *testing.T) {
	source := &fakeKlines{}
	fetcher := newTestFetcher(source)

	end := t0.Add(1200 * time.Hour)
	prices, err := fetcher.GetHistoricalCandles(context.Background(), "binance", "BTCUSDT", models.PriceTimeFrame1h, t0, end)
	if err != nil {
		t.Fatalf("GetHistoricalCandles: %v", err)
	}

	if len(source.requests) != 3 {
		t.Errorf("requests = %d, want 3 windows of %d candles", len(source.requests), chunkCandles)
	}
	if len(prices) != 1201 {
		t.Fatalf("candles = %d, want 1201", len(prices))
	}
	for i := 1; i < len(prices); i++ {
		if !prices[i].OpenTime.After(prices[i-1].OpenTime) {
			t.Fatalf("candle %d not strictly after %d", i, i-1)
		}
	}
	if prices[0].Exchange != "binance" {
		t.Errorf("exchange = %q, want binance", prices[0].Exchange)
	}
}

func TestPriceFetcherRejectsBadInput(t *testing.T) {
	fetcher := newTestFetcher(&fakeKlines{})
	ctx := context.Background()

	if _, err := fetcher.GetHistoricalCandles(ctx, "binance", "BTCUSDT", "1h", t0, t0); !errors.Is(err, models.ErrInvalidTimeRange) {
		t.Errorf("equal bounds: err = %v, want ErrInvalidTimeRange", err)
	}
	if _, err := fetcher.GetHistoricalCandles(ctx, "binance", "BTCUSDT", "7m", t0, t0.Add(time.Hour)); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("bad timeframe: err = %v, want ErrInvalidConfig", err)
	}
}

func TestPriceFetcherWrapsSourceError(t *testing.T) {
	boom := errors.New("exchange down")
	fetcher := newTestFetcher(&fakeKlines{err: boom})

	_, err := fetcher.GetHistoricalCandles(context.Background(), "binance", "BTCUSDT", "1h", t0, t0.Add(5*time.Hour))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped source error", err)
	}
}

func TestNormalize(t *testing.T) {
	a := hourly("X", "1h", t0)
	b := hourly("X", "1h", t0.Add(time.Hour))
	late := hourly("X", "1h", t0.Add(5*time.Hour))
	b2 := b
	b2.Close = 999

	out := normalize([]models.Price{b, a, b2, late}, t0, t0.Add(2*time.Hour))
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if !out[0].OpenTime.Equal(t0) || out[1].Close != 999 {
		t.Errorf("normalize = %+v", out)
	}
}

// countingSource counts upstream range requests.
type countingSource struct {
	fetcher *PriceFetcher
	calls   int
}

func (c *countingSource) GetHistoricalCandles(ctx context.Context, exchange, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	c.calls++
	return c.fetcher.GetHistoricalCandles(ctx, exchange, symbol, timeFrame, start, end)
}

func TestSQLiteCacheServesCoveredRanges(t *testing.T) {
	upstream := &countingSource{fetcher: newTestFetcher(&fakeKlines{})}
	cache, err := OpenSQLiteCache(filepath.Join(t.TempDir(), "candles.db"), upstream, nil)
	if err != nil {
		t.Fatalf("OpenSQLiteCache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	end := t0.Add(23 * time.Hour)

	first, err := cache.GetHistoricalCandles(ctx, "binance", "ETHUSDT", "1h", t0, end)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if upstream.calls != 1 || len(first) != 24 {
		t.Fatalf("first read: calls = %d, candles = %d", upstream.calls, len(first))
	}

	second, err := cache.GetHistoricalCandles(ctx, "binance", "ETHUSDT", "1h", t0.Add(2*time.Hour), t0.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if upstream.calls != 1 {
		t.Errorf("covered sub-range went upstream, calls = %d", upstream.calls)
	}
	if len(second) != 9 || second[0].Close != first[2].Close || !second[0].OpenTime.Equal(first[2].OpenTime) {
		t.Errorf("cached candles differ: %+v", second[0])
	}

	if _, err := cache.GetHistoricalCandles(ctx, "binance", "ETHUSDT", "1h", t0, t0.Add(30*time.Hour)); err != nil {
		t.Fatalf("third read: %v", err)
	}
	if upstream.calls != 2 {
		t.Errorf("uncovered range should go upstream, calls = %d", upstream.calls)
	}
}

func TestCovers(t *testing.T) {
	candles := []models.Price{hourly("X", "1h", t0), hourly("X", "1h", t0.Add(time.Hour)), hourly("X", "1h", t0.Add(3*time.Hour))}

	if covers(nil, t0, t0.Add(time.Hour), time.Hour) {
		t.Error("empty set covers nothing")
	}
	if !covers(candles[:2], t0, t0.Add(time.Hour+30*time.Minute), time.Hour) {
		t.Error("contiguous candles should cover")
	}
	if covers(candles, t0, t0.Add(3*time.Hour), time.Hour) {
		t.Error("gap at 02:00 should not cover")
	}
}

// memStore collects saved candles.
type memStore struct {
	saved []models.Price
	err   error
}

func (m *memStore) SaveCandles(_ context.Context, prices []models.Price) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, prices...)
	return nil
}

func TestPriceRecorderRecordsEverySymbol(t *testing.T) {
	store := &memStore{}
	rec := NewPriceRecorder(&fakeKlines{}, store, "binance", []string{"BTCUSDT", "ETHUSDT"}, []string{"1h"}, nil)

	saved := rec.recordPrices(context.Background(), "1h", time.Hour, t0.Add(10*time.Hour))
	if saved != 6 || len(store.saved) != 6 {
		t.Fatalf("saved = %d (%d stored), want 3 per symbol", saved, len(store.saved))
	}
	for _, p := range store.saved {
		if p.Exchange != "binance" {
			t.Fatalf("exchange not set on %+v", p)
		}
	}
}

func TestPriceRecorderSkipsFailures(t *testing.T) {
	rec := NewPriceRecorder(&fakeKlines{err: errors.New("down")}, &memStore{}, "binance", []string{"BTCUSDT"}, []string{"1h"}, nil)
	if saved := rec.recordPrices(context.Background(), "1h", time.Hour, t0); saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}

	rec = NewPriceRecorder(&fakeKlines{}, &memStore{err: errors.New("disk full")}, "binance", []string{"BTCUSDT"}, []string{"1h"}, nil)
	if saved := rec.recordPrices(context.Background(), "1h", time.Hour, t0.Add(5*time.Hour)); saved != 0 {
		t.Errorf("saved = %d, want 0", saved)
	}
}
