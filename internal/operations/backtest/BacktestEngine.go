package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"TradeCore/internal/models"

	"golang.org/x/sync/errgroup"
)

type Engine struct {
	candles    CandleSource
	indicators IndicatorProvider
	signals    SignalSource
	logger     *slog.Logger
}

func NewEngine(candles CandleSource, indicators IndicatorProvider, signals SignalSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		candles:    candles,
		indicators: indicators,
		signals:    signals,
		logger:     logger.With(slog.String("component", "backtest")),
	}
}

// run tracks one backtest through its states.
type run struct {
	results *BacktestResults
	logger  *slog.Logger
	started time.Time
}

func (r *run) transition(to Status) {
	r.logger.Debug("backtest state", slog.String("from", string(r.results.Status)), slog.String("to", string(to)))
	r.results.Status = to
}

func (r *run) fail(err error) (*BacktestResults, error) {
	r.logger.Error("backtest failed", slog.String("state", string(r.results.Status)), slog.String("error", err.Error()))
	r.results.Status = StatusFailed
	r.results.Error = err.Error()
	r.finish()
	return r.results, err
}

func (r *run) finish() {
	now := time.Now()
	r.results.Metadata.FinishedAt = now
	r.results.Metadata.ExecutionTimeMs = now.Sub(r.started).Milliseconds()
}

// RunBacktest replays cfg.Symbol over [StartTime, EndTime]. The results are
// returned even when the run fails; the error says why.
func (e *Engine) RunBacktest(ctx context.Context, cfg Config) (*BacktestResults, error) {
	if cfg.RunID == "" {
		cfg.RunID = models.NewRunID()
	}
	r := &run{
		results: &BacktestResults{
			RunID:     cfg.RunID,
			Symbol:    cfg.Symbol,
			TimeFrame: cfg.TimeFrame,
			Status:    StatusInitializing,
			Config:    cfg,
		},
		logger:  e.logger.With(slog.String("run_id", cfg.RunID), slog.String("symbol", cfg.Symbol)),
		started: time.Now(),
	}
	r.results.Metadata.StartedAt = r.started

	if err := cfg.Validate(); err != nil {
		return r.fail(err)
	}
	if e.signals == nil {
		return r.fail(fmt.Errorf("no signal source: %w", models.ErrInvalidConfig))
	}

	r.transition(StatusLoading)
	candles, first, err := e.load(ctx, cfg)
	if err != nil {
		return r.fail(err)
	}
	r.logger.Info("candles loaded",
		slog.Int("candles", len(candles)),
		slog.Int("warmup", first),
		slog.Time("start", cfg.StartTime),
		slog.Time("end", cfg.EndTime),
	)

	r.transition(StatusRunning)
	sim := NewSimulator(cfg, e.indicators, e.signals, r.logger)
	total := len(candles) - first
	every := cfg.ProgressEvery
	if every <= 0 {
		every = max(total/100, 1)
	}
	for i := first; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			r.collect(sim)
			return r.fail(fmt.Errorf("backtest canceled after %d candles: %w", i-first, err))
		}
		if err := sim.ProcessCandle(ctx, candles[:i+1]); err != nil {
			r.collect(sim)
			return r.fail(err)
		}
		r.results.Metadata.CandlesProcessed++
		if cfg.Progress != nil && (r.results.Metadata.CandlesProcessed%every == 0 || i == len(candles)-1) {
			cfg.Progress(Progress{
				Current: r.results.Metadata.CandlesProcessed,
				Total:   total,
				Message: fmt.Sprintf("processed %s", candleTime(candles[i]).Format(time.RFC3339)),
			})
		}
	}

	r.transition(StatusClosing)
	if err := sim.CloseAll(candles[len(candles)-1]); err != nil {
		r.collect(sim)
		return r.fail(err)
	}
	r.collect(sim)

	r.results.Metrics = calculateResults(cfg, sim.State().Equity(), r.results.Trades, r.results.EquityCurve)
	r.transition(StatusCompleted)
	r.finish()
	r.logger.Info("backtest completed",
		slog.Int("trades", r.results.Metrics.TotalTrades),
		slog.Float64("return_pct", r.results.Metrics.TotalReturnPct),
		slog.Float64("max_drawdown_pct", r.results.Metrics.MaxDrawdownPct),
		slog.Int64("execution_ms", r.results.Metadata.ExecutionTimeMs),
	)
	return r.results, nil
}

// load fetches the range plus enough earlier candles for warm-up and
// returns the index of the first candle to trade on.
func (e *Engine) load(ctx context.Context, cfg Config) ([]models.Price, int, error) {
	if !cfg.EndTime.After(cfg.StartTime) {
		return nil, 0, fmt.Errorf("start %s, end %s: %w", cfg.StartTime.Format(time.RFC3339), cfg.EndTime.Format(time.RFC3339), models.ErrInvalidTimeRange)
	}
	maxRange := cfg.MaxRange
	if maxRange <= 0 {
		maxRange = MaxRange
	}
	if span := cfg.EndTime.Sub(cfg.StartTime); span > maxRange {
		return nil, 0, fmt.Errorf("range %s exceeds %s: %w", span, maxRange, models.ErrRangeTooLarge)
	}
	step, err := models.TimeFrameDuration(cfg.TimeFrame)
	if err != nil {
		return nil, 0, err
	}

	extendedStart := cfg.StartTime.Add(-time.Duration(cfg.WarmupCandles) * step)
	candles, err := e.candles.GetHistoricalCandles(ctx, cfg.Exchange, cfg.Symbol, cfg.TimeFrame, extendedStart, cfg.EndTime)
	if err != nil {
		return nil, 0, fmt.Errorf("load candles: %w", err)
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})

	first := sort.Search(len(candles), func(i int) bool {
		return !candles[i].OpenTime.Before(cfg.StartTime)
	})
	if first == len(candles) || candles[first].OpenTime.After(cfg.EndTime) {
		return nil, 0, fmt.Errorf("%s %s between %s and %s: %w", cfg.Symbol, cfg.TimeFrame,
			cfg.StartTime.Format(time.RFC3339), cfg.EndTime.Format(time.RFC3339), models.ErrEmptyCandles)
	}
	// without enough history before the range, trading starts once warm-up is covered
	if first < cfg.WarmupCandles {
		first = cfg.WarmupCandles
	}
	if first >= len(candles) {
		return nil, 0, fmt.Errorf("%d candles do not cover %d warm-up candles: %w", len(candles), cfg.WarmupCandles, models.ErrEmptyCandles)
	}
	return candles, first, nil
}

func (r *run) collect(sim *Simulator) {
	closed := sim.State().Closed()
	r.results.Trades = make([]Trade, 0, len(closed))
	for _, p := range closed {
		r.results.Trades = append(r.results.Trades, tradeFromPosition(p))
	}
	r.results.EquityCurve = sim.State().Curve()
	r.results.Metadata.SignalsGenerated = sim.SignalsGenerated()
}

func tradeFromPosition(p *models.Position) Trade {
	t := Trade{
		PositionID:    p.ID,
		Symbol:        p.Symbol,
		Side:          p.Side,
		Leverage:      p.EffectiveLeverage(),
		EntryTime:     p.OpenedAt,
		EntryQty:      p.EntryQty,
		AvgEntryPrice: p.AvgEntryPrice,
		ExitPrice:     p.AverageExitPrice(),
		PnL:           p.RealizedPnlUsd,
		Fees:          p.FeesPaidUsd,
		ExitReason:    p.ExitReason,
		Position:      p,
	}
	if p.ClosedAt != nil {
		t.ExitTime = *p.ClosedAt
	}
	for _, o := range p.DCAOrders {
		if o.Status == models.OrderStatusFilled {
			t.DCAFills++
		}
	}
	for _, o := range p.TPOrders {
		if o.Status == models.OrderStatusFilled {
			t.TPFills++
		}
	}
	return t
}

// RunMany runs independent backtests with at most concurrency in flight.
// Each run owns its state; failures are reported per result and joined.
func (e *Engine) RunMany(ctx context.Context, cfgs []Config, concurrency int) ([]*BacktestResults, error) {
	results := make([]*BacktestResults, len(cfgs))
	errs := make([]error, len(cfgs))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, cfg := range cfgs {
		i, cfg := i, cfg
		g.Go(func() error {
			results[i], errs[i] = e.RunBacktest(gctx, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}
