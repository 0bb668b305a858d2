package dca

import (
	"fmt"
	"log/slog"
	"strconv"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
)

type Manager struct {
	costs   costs.Model
	sizing  SizingPolicy
	lotStep float64
	logger  *slog.Logger
}

func NewManager(model costs.Model, sizing SizingPolicy, lotStep float64, logger *slog.Logger) *Manager {
	if sizing == nil {
		sizing = WeightedSizing{Step: 0.5}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		costs:   model,
		sizing:  sizing,
		lotStep: lotStep,
		logger:  logger.With(slog.String("component", "dca")),
	}
}

// ShouldExecute is true when the rung is pending and price has come down to
// it (buy) or up to it (sell).
func ShouldExecute(level models.DCALevel, currentPrice float64, side models.Side) bool {
	if level.Status != models.LevelPending {
		return false
	}
	if side == models.SideSell {
		return currentPrice >= level.TargetPrice
	}
	return currentPrice <= level.TargetPrice
}

// Execute fills a DCA rung at tick.Price. The input position is not touched;
// the averaged position is returned in the result. available is the balance
// the fill may consume.
func (m *Manager) Execute(pos *models.Position, level models.DCALevel, tick models.Tick, available float64) models.ExecutionResult {
	if !pos.IsOpen() {
		return models.NotExecuted("position not open")
	}
	idx := pos.DCALevelIndex(level.Level)
	if idx < 0 {
		return models.NotExecuted(fmt.Sprintf("dca level %d not configured", level.Level))
	}
	current := pos.DCALevels[idx]
	if !ShouldExecute(current, tick.Price, pos.Side) {
		if current.Status != models.LevelPending {
			return models.NotExecuted(fmt.Sprintf("dca level %d already %s", level.Level, current.Status))
		}
		return models.NotExecuted(fmt.Sprintf("price %.8f has not reached dca level %d at %.8f", tick.Price, level.Level, current.TargetPrice))
	}

	qty := current.Quantity
	if qty <= 0 {
		qty = m.sizing.Quantity(pos, current)
	}
	qty = costs.RoundQuantity(qty, m.lotStep)
	if qty <= 0 {
		return models.NotExecuted(fmt.Sprintf("dca level %d quantity below lot size", level.Level))
	}

	fill := m.costs.Fill(tick, pos.Side, qty, "dca-"+strconv.Itoa(level.Level))
	if cost := fill.Notional + fill.Fee; cost > available {
		return models.NotExecuted(fmt.Sprintf("insufficient balance for dca level %d: need %.2f, have %.2f", level.Level, cost, available))
	}

	next := pos.Clone()
	order := models.OrderRef{
		ID:         current.OrderID,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Type:       m.costs.OrderType,
		Status:     models.OrderStatusNew,
		Metadata:   models.OrderMetadata{Role: models.OrderRoleDCA, Level: level.Level},
		CreatedAt:  tick.Time,
	}
	if order.ID == "" {
		order.ID = models.NewOrderID(pos.ID, models.OrderRoleDCA, level.Level, len(pos.DCAOrders))
	} else if existing := findOrder(pos.DCAOrders, order.ID); existing != nil {
		order = *existing
	}
	filled, err := order.Fill(fill.Price, fill.Quantity, fill.Fee, tick.Time)
	if err != nil {
		return models.Failed(err)
	}

	oldAvg := next.AvgEntryPrice
	delta := next.ApplyOpeningFill(filled)
	next.DCALevels[idx].Status = models.LevelFilled
	next.DCALevels[idx].OrderID = filled.ID
	if next.LiquidationPrice > 0 {
		next.LiquidationPrice = next.EstimatedLiquidationPrice()
	}
	next.Revalue(tick.Price)

	m.logger.Debug("dca level filled",
		slog.String("position_id", pos.ID),
		slog.Int("level", level.Level),
		slog.Float64("fill_price", fill.Price),
		slog.Float64("qty", fill.Quantity),
		slog.Float64("old_avg", oldAvg),
		slog.Float64("new_avg", next.AvgEntryPrice),
	)

	return models.ExecutionResult{
		Executed:     true,
		Reason:       fmt.Sprintf("dca level %d filled", level.Level),
		Position:     next,
		Fills:        []models.OrderRef{filled},
		BalanceDelta: delta,
	}
}

func findOrder(list []models.OrderRef, id string) *models.OrderRef {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}
