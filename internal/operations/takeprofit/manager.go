package takeprofit

import (
	"fmt"
	"log/slog"
	"strconv"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
)

// fullClosePct is the cumulative ladder percentage that closes the rest.
const fullClosePct = 100 - 1e-9

type Manager struct {
	costs   costs.Model
	lotStep float64
	logger  *slog.Logger
}

func NewManager(model costs.Model, lotStep float64, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		costs:   model,
		lotStep: lotStep,
		logger:  logger.With(slog.String("component", "takeprofit")),
	}
}

// ShouldExecute is true when the rung is pending and price has risen to it
// (buy) or fallen to it (sell).
func ShouldExecute(level models.TPLevel, currentPrice float64, side models.Side) bool {
	if level.Status != models.LevelPending {
		return false
	}
	if side == models.SideSell {
		return currentPrice <= level.Price
	}
	return currentPrice >= level.Price
}

// Execute closes PositionQty * Percentage / 100 at tick.Price. Once the
// executed rungs add up to 100% the whole remainder is closed and the
// position moves to closed.
func (m *Manager) Execute(pos *models.Position, level models.TPLevel, tick models.Tick) models.ExecutionResult {
	if !pos.IsOpen() || pos.PositionQty <= 0 {
		return models.NotExecuted("position not open")
	}
	idx := pos.TPLevelIndex(level.Level)
	if idx < 0 {
		return models.NotExecuted(fmt.Sprintf("tp level %d not configured", level.Level))
	}
	ladder := pos.Risk.TPLevels()
	current := ladder[idx]
	if !ShouldExecute(current, tick.Price, pos.Side) {
		if current.Status != models.LevelPending {
			return models.NotExecuted(fmt.Sprintf("tp level %d already %s", level.Level, current.Status))
		}
		return models.NotExecuted(fmt.Sprintf("price %.8f has not reached tp level %d at %.8f", tick.Price, level.Level, current.Price))
	}
	if current.Percentage <= 0 {
		return models.Failed(fmt.Errorf("tp level %d percentage %.4f: %w", level.Level, current.Percentage, models.ErrInvalidConfig))
	}

	cumulative := current.Percentage
	for _, l := range ladder {
		if l.Status == models.LevelFilled {
			cumulative += l.Percentage
		}
	}

	qty := pos.PositionQty * current.Percentage / 100
	if cumulative >= fullClosePct {
		qty = pos.PositionQty
	} else {
		qty = costs.RoundQuantity(qty, m.lotStep)
	}
	if qty > pos.PositionQty {
		m.logger.Warn("tp close quantity clamped to open quantity",
			slog.String("position_id", pos.ID),
			slog.Int("level", level.Level),
			slog.Float64("requested", qty),
			slog.Float64("open", pos.PositionQty),
		)
		qty = pos.PositionQty
	}
	if qty <= 0 {
		return models.NotExecuted(fmt.Sprintf("tp level %d quantity below lot size", level.Level))
	}

	exitSide := pos.Side.Opposite()
	fill := m.costs.Fill(tick, exitSide, qty, "tp-"+strconv.Itoa(level.Level))

	next := pos.Clone()
	order := models.OrderRef{
		ID:         current.OrderID,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       exitSide,
		Type:       m.costs.OrderType,
		Status:     models.OrderStatusNew,
		Metadata:   models.OrderMetadata{Role: models.OrderRoleTP, Level: level.Level, Reason: models.ExitTakeProfit},
		CreatedAt:  tick.Time,
	}
	if order.ID == "" {
		order.ID = models.NewOrderID(pos.ID, models.OrderRoleTP, level.Level, len(pos.TPOrders))
	} else {
		for _, o := range pos.TPOrders {
			if o.ID == order.ID {
				order = o
				break
			}
		}
	}
	filled, err := order.Fill(fill.Price, fill.Quantity, fill.Fee, tick.Time)
	if err != nil {
		return models.Failed(err)
	}

	effect, err := next.ApplyClosingFill(filled)
	if err != nil {
		return models.Failed(fmt.Errorf("tp level %d on %s: %w", level.Level, pos.ID, err))
	}
	next.Risk.PartialTP.Levels[idx].Status = models.LevelFilled
	next.Risk.PartialTP.Levels[idx].OrderID = filled.ID

	var canceled []models.OrderRef
	if next.PositionQty == 0 {
		canceled = next.MarkClosed(models.ExitTakeProfit, tick.Time)
	}
	next.Revalue(tick.Price)

	m.logger.Debug("tp level filled",
		slog.String("position_id", pos.ID),
		slog.Int("level", level.Level),
		slog.Float64("fill_price", fill.Price),
		slog.Float64("qty", qty),
		slog.Float64("realized", effect.RealizedPnl),
		slog.String("status", string(next.Status)),
	)

	return models.ExecutionResult{
		Executed:     true,
		Reason:       fmt.Sprintf("tp level %d filled", level.Level),
		Position:     next,
		Fills:        []models.OrderRef{filled},
		Canceled:     canceled,
		RealizedPnl:  effect.RealizedPnl,
		BalanceDelta: effect.BalanceDelta,
	}
}
