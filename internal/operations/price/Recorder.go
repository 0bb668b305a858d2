package price

import (
	"context"
	"log/slog"
	"time"

	"TradeCore/internal/models"
)

// CandleStore persists candles, replacing rows with the same open time.
type CandleStore interface {
	SaveCandles(ctx context.Context, prices []models.Price) error
}

// PriceRecorder keeps a store current with the latest closed candles of
// each symbol and timeframe.
type PriceRecorder struct {
	source     KlineSource
	store      CandleStore
	exchange   string
	symbols    []string
	timeframes []string
	logger     *slog.Logger
}

func NewPriceRecorder(source KlineSource, store CandleStore, exchange string, symbols, timeframes []string, logger *slog.Logger) *PriceRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceRecorder{
		source:     source,
		store:      store,
		exchange:   exchange,
		symbols:    symbols,
		timeframes: timeframes,
		logger:     logger.With(slog.String("component", "price_recorder")),
	}
}

// StartRecording starts one goroutine per timeframe. They stop with ctx.
func (r *PriceRecorder) StartRecording(ctx context.Context) {
	for _, timeframe := range r.timeframes {
		interval, err := models.TimeFrameDuration(timeframe)
		if err != nil {
			r.logger.Error("skip timeframe", slog.String("timeframe", timeframe), slog.String("error", err.Error()))
			continue
		}
		go r.recordTimeframe(ctx, timeframe, interval)
	}
}

func (r *PriceRecorder) recordTimeframe(ctx context.Context, timeframe string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("price recording started", slog.String("timeframe", timeframe))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("price recording stopped", slog.String("timeframe", timeframe))
			return
		case now := <-ticker.C:
			r.recordPrices(ctx, timeframe, interval, now)
		}
	}
}

// recordPrices stores the last two candles per symbol so the one that just
// closed is written with its final values.
func (r *PriceRecorder) recordPrices(ctx context.Context, timeframe string, interval time.Duration, now time.Time) int {
	saved := 0
	for _, symbol := range r.symbols {
		prices, err := r.source.FetchCandles(ctx, symbol, timeframe, now.Add(-2*interval), now)
		if err != nil {
			r.logger.Warn("kline fetch failed", slog.String("symbol", symbol), slog.String("timeframe", timeframe), slog.String("error", err.Error()))
			continue
		}
		for i := range prices {
			if prices[i].Exchange == "" {
				prices[i].Exchange = r.exchange
			}
		}
		if err := r.store.SaveCandles(ctx, prices); err != nil {
			r.logger.Warn("saving candles failed", slog.String("symbol", symbol), slog.String("timeframe", timeframe), slog.String("error", err.Error()))
			continue
		}
		saved += len(prices)
	}
	return saved
}
