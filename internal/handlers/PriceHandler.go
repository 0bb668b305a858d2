package handlers

import (
	"context"
	"log/slog"
	"time"

	"TradeCore/internal/operations/price"
)

// PriceHandler backfills recent history into a candle store and then keeps
// it current with a recorder.
type PriceHandler struct {
	fetcher    price.CandleSource
	store      price.CandleStore
	recorder   *price.PriceRecorder
	exchange   string
	symbols    []string
	timeframes []string
	backfill   time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewPriceHandler(
	fetcher price.CandleSource,
	store price.CandleStore,
	recorder *price.PriceRecorder,
	exchange string,
	symbols, timeframes []string,
	backfill time.Duration,
	logger *slog.Logger,
) *PriceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceHandler{
		fetcher:    fetcher,
		store:      store,
		recorder:   recorder,
		exchange:   exchange,
		symbols:    symbols,
		timeframes: timeframes,
		backfill:   backfill,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "price_handler")),
	}
}

func (h *PriceHandler) Start(ctx context.Context) error {
	if err := h.fetchHistoricalData(ctx); err != nil {
		return err
	}
	if h.recorder != nil {
		h.recorder.StartRecording(ctx)
	}
	return nil
}

func (h *PriceHandler) fetchHistoricalData(ctx context.Context) error {
	if h.backfill <= 0 {
		return nil
	}
	end := h.now().UTC()
	start := end.Add(-h.backfill)

	for _, symbol := range h.symbols {
		for _, timeframe := range h.timeframes {
			prices, err := h.fetcher.GetHistoricalCandles(ctx, h.exchange, symbol, timeframe, start, end)
			if err != nil {
				return err
			}
			if err := h.store.SaveCandles(ctx, prices); err != nil {
				h.logger.Warn("saving historical candles failed",
					slog.String("symbol", symbol),
					slog.String("timeframe", timeframe),
					slog.String("error", err.Error()),
				)
				continue
			}
			h.logger.Info("historical candles stored",
				slog.String("symbol", symbol),
				slog.String("timeframe", timeframe),
				slog.Int("count", len(prices)),
			)
		}
	}
	return nil
}
