package price

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"TradeCore/internal/models"
)

// KlineSource fetches raw candles for one window. A single call may return
// fewer candles than the window holds.
type KlineSource interface {
	FetchCandles(ctx context.Context, symbol, timeFrame string, start, end time.Time) ([]models.Price, error)
}

// CandleSource serves candle history for a range, sorted ascending.
type CandleSource interface {
	GetHistoricalCandles(ctx context.Context, exchange, symbol, timeFrame string, start, end time.Time) ([]models.Price, error)
}

// chunkCandles is how many candles one request window spans.
const chunkCandles = 500

type PriceFetcher struct {
	source KlineSource
	pause  time.Duration
	logger *slog.Logger
}

func NewPriceFetcher(source KlineSource, logger *slog.Logger) *PriceFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceFetcher{
		source: source,
		pause:  100 * time.Millisecond,
		logger: logger.With(slog.String("component", "price_fetcher")),
	}
}

// GetHistoricalCandles pages through [start, end] in windows of chunkCandles
// and returns the candles sorted by open time without duplicates.
func (f *PriceFetcher) GetHistoricalCandles(ctx context.Context, exchange, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%s %s from %s to %s: %w", symbol, timeFrame,
			start.Format(time.RFC3339), end.Format(time.RFC3339), models.ErrInvalidTimeRange)
	}
	chunkDuration, err := calculateChunkDuration(timeFrame)
	if err != nil {
		return nil, err
	}

	var allPrices []models.Price
	for currentStart := start; currentStart.Before(end); {
		currentEnd := currentStart.Add(chunkDuration)
		if currentEnd.After(end) {
			currentEnd = end
		}

		prices, err := f.source.FetchCandles(ctx, symbol, timeFrame, currentStart, currentEnd)
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s from %s: %w", symbol, timeFrame, currentStart.Format(time.RFC3339), err)
		}
		allPrices = append(allPrices, prices...)
		f.logger.Debug("fetched candles",
			slog.String("symbol", symbol),
			slog.String("timeframe", timeFrame),
			slog.Int("count", len(prices)),
			slog.Time("from", currentStart),
			slog.Time("to", currentEnd),
		)

		currentStart = currentEnd
		if f.pause > 0 && currentStart.Before(end) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.pause):
			}
		}
	}

	out := normalize(allPrices, start, end)
	for i := range out {
		if out[i].Exchange == "" {
			out[i].Exchange = exchange
		}
	}
	return out, nil
}

// normalize sorts by open time, drops duplicates and anything outside [start, end].
func normalize(prices []models.Price, start, end time.Time) []models.Price {
	sort.SliceStable(prices, func(i, j int) bool {
		return prices[i].OpenTime.Before(prices[j].OpenTime)
	})
	out := prices[:0]
	for _, p := range prices {
		if p.OpenTime.Before(start) || p.OpenTime.After(end) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(p.OpenTime) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

func calculateChunkDuration(timeFrame string) (time.Duration, error) {
	interval, err := models.TimeFrameDuration(timeFrame)
	if err != nil {
		return 0, err
	}
	return interval * chunkCandles, nil
}
