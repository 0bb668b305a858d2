package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/backtest"
)

// PriceSource returns the latest traded price of a symbol.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (models.Tick, error)
}

type PaperTraderConfig struct {
	Exchange  string
	Symbols   []string
	TimeFrame string
	// Lookback is how many candles feed the indicators.
	Lookback int
	Interval time.Duration
}

// PaperTrader polls prices, runs the monitor on open positions and opens
// new ones from strategy signals.
type PaperTrader struct {
	cfg        PaperTraderConfig
	monitor    *Monitor
	prices     PriceSource
	candles    backtest.CandleSource
	indicators backtest.IndicatorProvider
	signals    backtest.SignalSource
	logger     *slog.Logger
}

func NewPaperTrader(
	cfg PaperTraderConfig,
	monitor *Monitor,
	prices PriceSource,
	candles backtest.CandleSource,
	indicators backtest.IndicatorProvider,
	signals backtest.SignalSource,
	logger *slog.Logger,
) *PaperTrader {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = backtest.WarmupCandles
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperTrader{
		cfg:        cfg,
		monitor:    monitor,
		prices:     prices,
		candles:    candles,
		indicators: indicators,
		signals:    signals,
		logger:     logger.With(slog.String("component", "paper_trader")),
	}
}

// MonitorPositions checks every symbol once per interval until ctx ends.
func (t *PaperTrader) MonitorPositions(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range t.cfg.Symbols {
				if err := t.checkSymbol(ctx, symbol); err != nil {
					t.logger.Error("check failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
				}
			}
		}
	}
}

func (t *PaperTrader) checkSymbol(ctx context.Context, symbol string) error {
	tick, err := t.prices.LatestPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("latest price: %w", err)
	}

	outcomes, err := t.monitor.EvaluateSymbol(ctx, Snapshot{Tick: tick})
	for _, out := range outcomes {
		if len(out.Actions) > 0 {
			t.logger.Info("position updated",
				slog.String("position_id", out.PositionID),
				slog.Any("actions", out.Actions),
				slog.Bool("closed", out.Closed),
			)
		}
	}
	if err != nil {
		return err
	}
	return t.maybeEnter(ctx, tick)
}

func (t *PaperTrader) maybeEnter(ctx context.Context, tick models.Tick) error {
	if t.monitor.HasOpen(tick.Symbol) && !t.monitor.cfg.AllowPyramiding {
		return nil
	}
	step, err := models.TimeFrameDuration(t.cfg.TimeFrame)
	if err != nil {
		return err
	}
	history, err := t.candles.GetHistoricalCandles(ctx, t.cfg.Exchange, tick.Symbol, t.cfg.TimeFrame,
		tick.Time.Add(-time.Duration(t.cfg.Lookback)*step), tick.Time)
	if err != nil {
		return fmt.Errorf("candles: %w", err)
	}
	if len(history) == 0 {
		return nil
	}

	var values map[string]float64
	if t.indicators != nil {
		if values, err = t.indicators.Compute(history); err != nil {
			return fmt.Errorf("indicators: %w", err)
		}
	}
	sig, err := t.signals.GenerateSignal(ctx, models.SignalContext{
		Symbol:     tick.Symbol,
		TimeFrame:  t.cfg.TimeFrame,
		Prices:     history,
		Indicators: values,
		Equity:     t.monitor.Equity(),
	})
	if err != nil || sig == nil {
		return err
	}

	pos, err := t.monitor.Open(ctx, *sig, tick)
	if pos != nil {
		t.logger.Info("position opened",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.String("side", string(pos.Side)),
			slog.Float64("entry", pos.AvgEntryPrice),
			slog.Float64("qty", pos.PositionQty),
		)
	}
	return err
}
