package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/autoclose"
	"TradeCore/internal/operations/costs"
	"TradeCore/internal/operations/dca"
	"TradeCore/internal/operations/portfolio"
	"TradeCore/internal/operations/position"
	"TradeCore/internal/operations/stoploss"
	"TradeCore/internal/operations/takeprofit"
)

// OrderGateway receives the orders the monitor decides on.
type OrderGateway interface {
	Submit(ctx context.Context, order models.OrderRef) (string, error)
	Cancel(ctx context.Context, order models.OrderRef) error
}

// Locker serializes work per position id.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// TradeRecorder stores positions once they close.
type TradeRecorder interface {
	Create(ctx context.Context, trade *models.TradeRecord) error
}

type MonitorConfig struct {
	SessionID       string
	InitialBalance  float64
	KillSwitch      bool
	AllowPyramiding bool
	Position        position.Settings
	Costs           costs.Model
	DCASizing       dca.SizingPolicy
	AutoClose       autoclose.Config
}

// Snapshot is the market view one evaluation runs against.
type Snapshot struct {
	Tick       models.Tick
	KillSwitch bool
}

// Outcome reports what one evaluation did to a position.
type Outcome struct {
	PositionID string
	Actions    []string
	Closed     bool
	ExitReason models.ExitReason
	Warning    *autoclose.Decision
	Position   *models.Position
}

// Monitor runs the live lifecycle rules against market snapshots. Each
// position is evaluated by at most one caller at a time; the portfolio
// state has a single writer guarded by mu.
type Monitor struct {
	cfg MonitorConfig

	mu       sync.Mutex
	state    *portfolio.State
	resting  map[string]string
	seq      int
	executor *position.Executor

	dca       *dca.Manager
	tp        *takeprofit.Manager
	sl        *stoploss.Manager
	autoClose *autoclose.Evaluator

	locker     Locker
	gateway    OrderGateway
	trades     TradeRecorder
	killSwitch atomic.Bool
	logger     *slog.Logger
}

func NewMonitor(cfg MonitorConfig, locker Locker, gateway OrderGateway, trades TradeRecorder, logger *slog.Logger) (*Monitor, error) {
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("monitor initial balance %.2f: %w", cfg.InitialBalance, models.ErrInvalidConfig)
	}
	if locker == nil || gateway == nil {
		return nil, fmt.Errorf("monitor needs a locker and an order gateway: %w", models.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	sl := stoploss.NewManager(cfg.Costs, logger)
	m := &Monitor{
		cfg:       cfg,
		state:     portfolio.NewState(cfg.InitialBalance),
		resting:   make(map[string]string),
		executor:  position.NewExecutor(cfg.Position, cfg.Costs, cfg.DCASizing, logger),
		dca:       dca.NewManager(cfg.Costs, cfg.DCASizing, cfg.Position.LotStep, logger),
		tp:        takeprofit.NewManager(cfg.Costs, cfg.Position.LotStep, logger),
		sl:        sl,
		autoClose: autoclose.NewEvaluator(sl, logger, autoclose.DefaultRules(cfg.AutoClose)...),
		locker:    locker,
		gateway:   gateway,
		trades:    trades,
		logger:    logger.With(slog.String("component", "monitor")),
	}
	m.killSwitch.Store(cfg.KillSwitch)
	return m, nil
}

// SetKillSwitch closes every position on its next evaluation while on.
func (m *Monitor) SetKillSwitch(on bool) {
	m.killSwitch.Store(on)
}

func (m *Monitor) Equity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Equity()
}

func (m *Monitor) OpenPositions() []*models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.OpenPositions()
}

func (m *Monitor) HasOpen(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.HasOpen(symbol)
}

// Open turns a signal into a position. The entry goes out as a market order
// and the DCA rungs rest on the book as limit orders. Take-profit orders are
// sent when their level triggers, sized from the quantity held then. A nil
// position with a nil error means the entry was skipped.
func (m *Monitor) Open(ctx context.Context, sig models.Signal, tick models.Tick) (*models.Position, error) {
	m.mu.Lock()
	if !m.cfg.AllowPyramiding && m.state.HasOpen(tick.Symbol) {
		m.mu.Unlock()
		return nil, nil
	}
	res := m.executor.OpenPosition(position.OpenRequest{
		RunID:     m.cfg.SessionID,
		Seq:       m.seq,
		Signal:    sig,
		Tick:      tick,
		Available: m.state.AvailableBalance(),
	})
	if res.Err != nil {
		m.mu.Unlock()
		return nil, res.Err
	}
	if !res.Executed {
		m.mu.Unlock()
		m.logger.Info("entry skipped", slog.String("symbol", tick.Symbol), slog.String("reason", res.Reason))
		return nil, nil
	}
	m.seq++
	if err := m.state.Open(res); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	pos := res.Position
	var errs []error
	for _, fill := range res.Fills {
		if _, err := m.gateway.Submit(ctx, fill); err != nil {
			errs = append(errs, fmt.Errorf("submit entry %s: %w", fill.ID, err))
		}
	}
	for _, pending := range pos.PendingOrders() {
		if pending.Metadata.Role != models.OrderRoleDCA {
			continue
		}
		exchangeID, err := m.gateway.Submit(ctx, pending)
		if err != nil {
			m.logger.Warn("resting order not placed",
				slog.String("position_id", pos.ID),
				slog.String("order_id", pending.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.mu.Lock()
		m.resting[pending.ID] = exchangeID
		m.mu.Unlock()
	}
	return pos, errors.Join(errs...)
}

// Evaluate applies DCA, take-profit, break-even and trailing, stop-loss and
// auto-close to one position, once, at the snapshot price.
func (m *Monitor) Evaluate(ctx context.Context, positionID string, snap Snapshot) (Outcome, error) {
	unlock, err := m.locker.Acquire(ctx, positionID)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	out, results, err := m.evaluate(positionID, snap)
	if err != nil {
		return out, err
	}
	err = m.handOff(ctx, results)

	if out.Closed && m.trades != nil {
		rec := models.NewTradeRecord(m.cfg.SessionID, out.Position)
		if terr := m.trades.Create(ctx, &rec); terr != nil {
			m.logger.Error("trade not stored", slog.String("position_id", positionID), slog.String("error", terr.Error()))
		}
	}
	return out, err
}

// EvaluateSymbol evaluates every open position on the tick's symbol. A
// position another caller is already evaluating is skipped.
func (m *Monitor) EvaluateSymbol(ctx context.Context, snap Snapshot) ([]Outcome, error) {
	var (
		outcomes []Outcome
		errs     []error
	)
	for _, pos := range m.OpenPositions() {
		if pos.Symbol != snap.Tick.Symbol {
			continue
		}
		out, err := m.Evaluate(ctx, pos.ID, snap)
		if errors.Is(err, models.ErrLockHeld) {
			m.logger.Debug("position busy", slog.String("position_id", pos.ID))
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
		if out.PositionID != "" {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes, errors.Join(errs...)
}

func (m *Monitor) evaluate(positionID string, snap Snapshot) (Outcome, []models.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.state.Position(positionID)
	if !ok {
		return Outcome{}, nil, fmt.Errorf("position %s: %w", positionID, models.ErrPositionNotFound)
	}
	if !pos.IsOpen() {
		return Outcome{}, nil, fmt.Errorf("position %s: %w", positionID, models.ErrPositionClosed)
	}

	tick := snap.Tick
	price := tick.Price

	out := Outcome{PositionID: positionID}
	var results []models.ExecutionResult
	step := func(res models.ExecutionResult) error {
		if res.Err != nil {
			return fmt.Errorf("position %s: %w", positionID, res.Err)
		}
		if !res.Executed {
			return nil
		}
		if err := m.state.Apply(res); err != nil {
			return err
		}
		pos = res.Position
		out.Actions = append(out.Actions, res.Reason)
		results = append(results, res)
		return nil
	}
	finish := func(err error) (Outcome, []models.ExecutionResult, error) {
		m.state.Mark(tick.Time)
		out.Position = pos
		out.Closed = !pos.IsOpen()
		out.ExitReason = pos.ExitReason
		return out, results, err
	}

	for _, level := range pos.DCALevels {
		if !dca.ShouldExecute(level, price, pos.Side) {
			continue
		}
		if err := step(m.dca.Execute(pos, level, tick, m.state.AvailableBalance())); err != nil {
			return finish(err)
		}
	}

	for _, level := range pos.Risk.TPLevels() {
		if !takeprofit.ShouldExecute(level, price, pos.Side) {
			continue
		}
		if err := step(m.tp.Execute(pos, level, tick)); err != nil || !pos.IsOpen() {
			return finish(err)
		}
	}

	if next, changed := stoploss.UpdateBreakEven(pos, price); changed {
		if err := step(models.ExecutionResult{Executed: true, Reason: "break-even armed", Position: next}); err != nil {
			return finish(err)
		}
	}
	if next, changed := takeprofit.UpdateTrailing(pos, price); changed {
		if err := step(models.ExecutionResult{Executed: true, Reason: "trailing ratcheted", Position: next}); err != nil {
			return finish(err)
		}
	}

	if stoploss.ShouldTrigger(pos, price) {
		if err := step(m.sl.Execute(pos, tick)); err != nil || !pos.IsOpen() {
			return finish(err)
		}
	}

	m.state.Revalue(pos.Symbol, price)
	ev := m.autoClose.Evaluate(pos, autoclose.Snapshot{
		Time:               tick.Time,
		Price:              price,
		KillSwitch:         snap.KillSwitch || m.killSwitch.Load(),
		CurrentDrawdownPct: m.state.CurrentDrawdownPct(),
		DailyPnlUsd:        m.state.DailyPnl(tick.Time),
		CapitalUsd:         m.state.InitialCapital(),
	})
	out.Warning = ev.Warning
	return finish(step(ev.Result))
}

// handOff cancels siblings before submitting new orders. Cancel failures
// are logged and never stop the submits.
func (m *Monitor) handOff(ctx context.Context, results []models.ExecutionResult) error {
	var cancels, submits []models.OrderRef

	m.mu.Lock()
	for _, res := range results {
		for _, c := range res.Canceled {
			if _, ok := m.resting[c.ID]; ok {
				delete(m.resting, c.ID)
				cancels = append(cancels, c)
			}
		}
		for _, f := range res.Fills {
			if _, ok := m.resting[f.ID]; ok {
				// the resting limit is the fill
				delete(m.resting, f.ID)
				continue
			}
			submits = append(submits, f)
		}
	}
	m.mu.Unlock()

	for _, c := range cancels {
		if err := m.gateway.Cancel(ctx, c); err != nil {
			m.logger.Warn("cancel failed",
				slog.String("position_id", c.PositionID),
				slog.String("order_id", c.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	var errs []error
	for _, s := range submits {
		if _, err := m.gateway.Submit(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("submit %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}
