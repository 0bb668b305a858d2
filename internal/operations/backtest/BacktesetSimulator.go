package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/autoclose"
	"TradeCore/internal/operations/dca"
	"TradeCore/internal/operations/portfolio"
	"TradeCore/internal/operations/position"
	"TradeCore/internal/operations/stoploss"
	"TradeCore/internal/operations/takeprofit"
)

// Simulator replays one run candle by candle. It owns the run's state and
// is not safe for concurrent use.
type Simulator struct {
	config     Config
	indicators IndicatorProvider
	signals    SignalSource

	state     *portfolio.State
	executor  *position.Executor
	dca       *dca.Manager
	tp        *takeprofit.Manager
	sl        *stoploss.Manager
	autoClose *autoclose.Evaluator

	// window is how many trailing candles the indicators see. Zero means all.
	window  int
	seq     int
	signalN int
	logger  *slog.Logger
}

// minHistory is implemented by providers that know their own lookback.
type minHistory interface {
	MinHistory() int
}

func NewSimulator(config Config, indicators IndicatorProvider, signals SignalSource, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	settings := config.Position
	if settings.Exchange == "" {
		settings.Exchange = config.Exchange
	}
	window := config.WarmupCandles
	if h, ok := indicators.(minHistory); ok && h.MinHistory() > window {
		window = h.MinHistory()
	}
	sl := stoploss.NewManager(config.Costs, logger)
	return &Simulator{
		window:     window,
		config:     config,
		indicators: indicators,
		signals:    signals,
		state:      portfolio.NewState(config.InitialBalance),
		executor:   position.NewExecutor(settings, config.Costs, config.DCASizing, logger),
		dca:        dca.NewManager(config.Costs, config.DCASizing, settings.LotStep, logger),
		tp:         takeprofit.NewManager(config.Costs, settings.LotStep, logger),
		sl:         sl,
		autoClose:  autoclose.NewEvaluator(sl, logger, autoclose.DefaultRules(config.AutoClose)...),
		logger:     logger.With(slog.String("component", "simulator"), slog.String("symbol", config.Symbol)),
	}
}

func (s *Simulator) State() *portfolio.State { return s.state }

func (s *Simulator) SignalsGenerated() int { return s.signalN }

// candleTime is the instant a candle's close is known.
func candleTime(c models.Price) time.Time {
	if !c.CloseTime.IsZero() {
		return c.CloseTime
	}
	return c.OpenTime
}

// ProcessCandle advances the run by the last candle in history: a possible
// entry at its close, then DCA, TP, SL, stop ratchets and auto-close on every
// position opened earlier, then one equity point.
func (s *Simulator) ProcessCandle(ctx context.Context, history []models.Price) error {
	candle := history[len(history)-1]
	at := candleTime(candle)

	if err := s.maybeEnter(ctx, history, at); err != nil {
		return err
	}

	for _, pos := range s.state.OpenPositions() {
		if pos.Symbol != candle.Symbol || !pos.OpenedAt.Before(at) {
			continue
		}
		if err := s.processPosition(pos, candle, at); err != nil {
			return err
		}
	}

	s.state.Revalue(candle.Symbol, candle.Close)
	s.state.RecordEquity(at)
	return nil
}

func (s *Simulator) maybeEnter(ctx context.Context, history []models.Price, at time.Time) error {
	candle := history[len(history)-1]
	var indicators map[string]float64
	if s.indicators != nil {
		var err error
		recent := history
		if s.window > 0 && len(recent) > s.window {
			recent = recent[len(recent)-s.window:]
		}
		indicators, err = s.indicators.Compute(recent)
		if err != nil {
			return fmt.Errorf("compute indicators at %s: %w", at.Format(time.RFC3339), err)
		}
	}

	s.state.Revalue(candle.Symbol, candle.Close)
	sig, err := s.signals.GenerateSignal(ctx, models.SignalContext{
		Symbol:           candle.Symbol,
		TimeFrame:        s.config.TimeFrame,
		Prices:           history,
		Indicators:       indicators,
		OpenPositions:    s.state.OpenCount(),
		ExposureUsd:      s.state.ExposureUsd(),
		AvailableBalance: s.state.AvailableBalance(),
		Equity:           s.state.Equity(),
		DrawdownPct:      s.state.CurrentDrawdownPct(),
	})
	if err != nil {
		return fmt.Errorf("generate signal at %s: %w", at.Format(time.RFC3339), err)
	}
	if sig == nil {
		return nil
	}
	s.signalN++

	if !s.config.AllowPyramiding && s.state.HasOpen(candle.Symbol) {
		s.logger.Debug("skip signal, position already open", slog.Time("at", at))
		return nil
	}

	res := s.executor.OpenPosition(position.OpenRequest{
		RunID:     s.config.RunID,
		Seq:       s.seq,
		Signal:    *sig,
		Tick:      models.Tick{Symbol: candle.Symbol, Price: candle.Close, Time: at},
		Available: s.state.AvailableBalance(),
	})
	if res.Err != nil {
		return res.Err
	}
	if !res.Executed {
		s.logger.Debug("entry not executed", slog.String("reason", res.Reason), slog.Time("at", at))
		return nil
	}
	s.seq++
	return s.state.Open(res)
}

func (s *Simulator) processPosition(pos *models.Position, candle models.Price, at time.Time) error {
	var err error
	adverse := candle.AdverseExtreme(pos.Side)
	favorable := candle.FavorableExtreme(pos.Side)

	for _, level := range pos.DCALevels {
		if !dca.ShouldExecute(level, adverse, pos.Side) {
			continue
		}
		tick := models.Tick{Symbol: pos.Symbol, Price: gapPrice(level.TargetPrice, candle.Open, pos.Side, true), Time: at}
		if pos, err = s.apply(pos, s.dca.Execute(pos, level, tick, s.state.AvailableBalance())); err != nil {
			return err
		}
	}

	for _, level := range pos.Risk.TPLevels() {
		if !takeprofit.ShouldExecute(level, favorable, pos.Side) {
			continue
		}
		tick := models.Tick{Symbol: pos.Symbol, Price: gapPrice(level.Price, candle.Open, pos.Side, false), Time: at}
		if pos, err = s.apply(pos, s.tp.Execute(pos, level, tick)); err != nil {
			return err
		}
		if !pos.IsOpen() {
			return nil
		}
	}

	if stoploss.ShouldTrigger(pos, adverse) {
		if pos, err = s.apply(pos, s.sl.Execute(pos, stoploss.StopTick(pos, candle, at))); err != nil {
			return err
		}
		if !pos.IsOpen() {
			return nil
		}
	}

	// stops armed on this candle take effect from the next one
	if next, changed := stoploss.UpdateBreakEven(pos, favorable); changed {
		if pos, err = s.apply(pos, models.ExecutionResult{Executed: true, Reason: "break-even armed", Position: next}); err != nil {
			return err
		}
	}
	if next, changed := takeprofit.UpdateTrailing(pos, favorable); changed {
		if pos, err = s.apply(pos, models.ExecutionResult{Executed: true, Reason: "trailing ratcheted", Position: next}); err != nil {
			return err
		}
	}

	s.state.Revalue(pos.Symbol, candle.Close)
	snap := autoclose.Snapshot{
		Time:               at,
		Price:              candle.Close,
		KillSwitch:         s.config.KillSwitch,
		CurrentDrawdownPct: s.state.CurrentDrawdownPct(),
		DailyPnlUsd:        s.state.DailyPnl(at),
		CapitalUsd:         s.state.InitialCapital(),
	}
	ev := s.autoClose.Evaluate(pos, snap)
	_, err = s.apply(pos, ev.Result)
	return err
}

// apply commits res to the state and returns the position to keep working with.
func (s *Simulator) apply(pos *models.Position, res models.ExecutionResult) (*models.Position, error) {
	if res.Err != nil {
		return pos, fmt.Errorf("position %s: %w", pos.ID, res.Err)
	}
	if !res.Executed {
		return pos, nil
	}
	if err := s.state.Apply(res); err != nil {
		return pos, err
	}
	return res.Position, nil
}

// CloseAll force-closes every open position at the last close.
func (s *Simulator) CloseAll(last models.Price) error {
	at := candleTime(last)
	remaining := s.state.OpenPositions()
	for _, pos := range remaining {
		tick := models.Tick{Symbol: pos.Symbol, Price: last.Close, Time: at}
		if _, err := s.apply(pos, s.sl.Close(pos, tick, models.ExitTimeout)); err != nil {
			return err
		}
	}
	if len(remaining) > 0 {
		// the last point must carry the exit fees and slippage
		s.state.RestateEquity(at)
	}
	return nil
}

// gapPrice is the fill for a resting level: the level itself, or the open
// when the candle opened beyond it. adding selects the DCA direction.
func gapPrice(level, open float64, side models.Side, adding bool) float64 {
	restsBelow := side == models.SideBuy
	if !adding {
		restsBelow = !restsBelow
	}
	if restsBelow {
		if open < level {
			return open
		}
		return level
	}
	if open > level {
		return open
	}
	return level
}
