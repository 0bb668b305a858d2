package stoploss

import (
	"fmt"
	"log/slog"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
)

type Manager struct {
	costs  costs.Model
	logger *slog.Logger
}

func NewManager(model costs.Model, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		costs:  model,
		logger: logger.With(slog.String("component", "stoploss")),
	}
}

// EffectiveStop returns the most protective of the fixed stop and an
// activated trailing stop, with the exit reason it would close under.
// A zero price means no stop is armed.
func EffectiveStop(pos *models.Position) (float64, models.ExitReason) {
	stop := pos.Risk.StopLossPrice
	reason := models.ExitStopLoss
	tr := pos.Risk.Trailing
	if tr == nil || !tr.Enabled || !tr.Activated || tr.CurrentStopPrice <= 0 {
		return stop, reason
	}
	if stop <= 0 {
		return tr.CurrentStopPrice, models.ExitTrailingStop
	}
	if pos.Side == models.SideSell {
		if tr.CurrentStopPrice <= stop {
			return tr.CurrentStopPrice, models.ExitTrailingStop
		}
		return stop, reason
	}
	if tr.CurrentStopPrice >= stop {
		return tr.CurrentStopPrice, models.ExitTrailingStop
	}
	return stop, reason
}

// ShouldTrigger is true when a stop is armed and price has gone through it.
func ShouldTrigger(pos *models.Position, currentPrice float64) bool {
	if !pos.IsOpen() {
		return false
	}
	stop, _ := EffectiveStop(pos)
	if stop <= 0 {
		return false
	}
	if pos.Side == models.SideSell {
		return currentPrice >= stop
	}
	return currentPrice <= stop
}

// Execute closes the whole remaining quantity at tick.Price when the stop
// has been breached.
func (m *Manager) Execute(pos *models.Position, tick models.Tick) models.ExecutionResult {
	if !pos.IsOpen() {
		return models.NotExecuted("position not open")
	}
	if !ShouldTrigger(pos, tick.Price) {
		stop, _ := EffectiveStop(pos)
		if stop <= 0 {
			return models.NotExecuted("no stop armed")
		}
		return models.NotExecuted(fmt.Sprintf("price %.8f has not breached stop %.8f", tick.Price, stop))
	}
	_, reason := EffectiveStop(pos)
	return m.close(pos, tick, reason, "sl")
}

// Close force-closes the position at tick.Price for reason. Pending orders
// are canceled before the closing fill. Auto-close rules and the end of a
// backtest close through here.
func (m *Manager) Close(pos *models.Position, tick models.Tick, reason models.ExitReason) models.ExecutionResult {
	if !pos.IsOpen() {
		return models.NotExecuted("position not open")
	}
	return m.close(pos, tick, reason, "close")
}

func (m *Manager) close(pos *models.Position, tick models.Tick, reason models.ExitReason, slipRole string) models.ExecutionResult {
	next := pos.Clone()
	canceled, err := next.BeginClose(tick.Time)
	if err != nil {
		return models.Failed(fmt.Errorf("close %s: %w", pos.ID, err))
	}

	if next.PositionQty <= 0 {
		canceled = append(canceled, next.MarkClosed(reason, tick.Time)...)
		return models.ExecutionResult{
			Executed: true,
			Reason:   fmt.Sprintf("closed flat position: %s", reason),
			Position: next,
			Canceled: canceled,
		}
	}

	exitSide := pos.Side.Opposite()
	fill := m.costs.Fill(tick, exitSide, next.PositionQty, slipRole)
	order := models.OrderRef{
		ID:         models.NewOrderID(pos.ID, models.OrderRoleSL, 0, len(pos.SLOrders)),
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       exitSide,
		Type:       models.OrderTypeTaker,
		Status:     models.OrderStatusNew,
		Metadata:   models.OrderMetadata{Role: models.OrderRoleSL, Reason: reason},
		CreatedAt:  tick.Time,
	}
	filled, err := order.Fill(fill.Price, fill.Quantity, costs.Fee(fill.Notional, models.OrderTypeTaker, m.costs.Fees), tick.Time)
	if err != nil {
		return models.Failed(err)
	}

	effect, err := next.ApplyClosingFill(filled)
	if err != nil {
		return models.Failed(fmt.Errorf("close %s: %w", pos.ID, err))
	}
	canceled = append(canceled, next.MarkClosed(reason, tick.Time)...)
	next.Revalue(tick.Price)

	m.logger.Info("position closed",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("reason", reason.String()),
		slog.Float64("fill_price", filled.Price),
		slog.Float64("qty", filled.Quantity),
		slog.Float64("realized", effect.RealizedPnl),
		slog.Int("canceled", len(canceled)),
	)

	return models.ExecutionResult{
		Executed:     true,
		Reason:       fmt.Sprintf("closed: %s", reason),
		Position:     next,
		Fills:        []models.OrderRef{filled},
		Canceled:     canceled,
		RealizedPnl:  effect.RealizedPnl,
		BalanceDelta: effect.BalanceDelta,
	}
}

// UpdateBreakEven moves the stop to the average entry price once the
// trigger is reached. It fires at most once per position.
func UpdateBreakEven(pos *models.Position, currentPrice float64) (*models.Position, bool) {
	be := pos.Risk.BreakEven
	if be == nil || !be.Enabled || be.Activated || !pos.IsOpen() {
		return pos, false
	}
	reached := currentPrice >= be.TriggerPrice
	if pos.Side == models.SideSell {
		reached = currentPrice <= be.TriggerPrice
	}
	if !reached {
		return pos, false
	}
	next := pos.Clone()
	next.Risk.StopLossPrice = next.AvgEntryPrice
	next.Risk.BreakEven.Activated = true
	return next, true
}

// StopTick builds the execution tick for a stop hit inside a candle: the
// stop price itself, or the open when the candle gapped through it.
func StopTick(pos *models.Position, candle models.Price, at time.Time) models.Tick {
	stop, _ := EffectiveStop(pos)
	price := stop
	if pos.Side == models.SideSell {
		if candle.Open > stop {
			price = candle.Open
		}
	} else if candle.Open < stop {
		price = candle.Open
	}
	return models.Tick{Symbol: pos.Symbol, Price: price, Time: at}
}
