package position

import (
	"fmt"
	"log/slog"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
	"TradeCore/internal/operations/dca"
)

// TPRung places a profit-taking level OffsetPct away from the entry price.
type TPRung struct {
	OffsetPct  float64
	Percentage float64
}

// Settings describe how a signal becomes a position.
type Settings struct {
	UserID     string
	StrategyID string
	Exchange   string
	MarketType models.MarketType
	Leverage   float64

	// PositionSizeUsd is a fixed notional per entry. When zero the entry
	// spends RiskPerTrade of the available balance.
	PositionSizeUsd float64
	RiskPerTrade    float64
	LotStep         float64
	TickSize        float64

	DCALevels  int
	DCAStepPct float64
	TPLadder   []TPRung

	StopLossPct           float64
	TrailingActivationPct float64
	TrailingDistancePct   float64
	BreakEvenTriggerPct   float64
}

type Executor struct {
	settings Settings
	costs    costs.Model
	sizing   dca.SizingPolicy
	logger   *slog.Logger
}

func NewExecutor(settings Settings, model costs.Model, sizing dca.SizingPolicy, logger *slog.Logger) *Executor {
	if settings.RiskPerTrade <= 0 && settings.PositionSizeUsd <= 0 {
		settings.RiskPerTrade = 0.02
	}
	if settings.MarketType == "" {
		settings.MarketType = models.MarketFutures
	}
	if sizing == nil {
		sizing = dca.WeightedSizing{Step: 0.5}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		settings: settings,
		costs:    model,
		sizing:   sizing,
		logger:   logger.With(slog.String("component", "position")),
	}
}

// OpenRequest carries what an entry needs beyond the signal.
type OpenRequest struct {
	RunID     string
	Seq       int
	Signal    models.Signal
	Tick      models.Tick
	Available float64
}

// OpenPosition fills the entry for a signal at tick price and lays out the
// pending DCA and TP orders, stops and liquidation estimate.
func (e *Executor) OpenPosition(req OpenRequest) models.ExecutionResult {
	side := req.Signal.Side
	if !side.Valid() {
		return models.Failed(fmt.Errorf("signal side %q: %w", side, models.ErrInvalidConfig))
	}
	price := req.Tick.Price
	if price <= 0 {
		return models.NotExecuted("no price to enter at")
	}

	qty := costs.RoundQuantity(e.calculatePositionSize(req.Available)/price, e.settings.LotStep)
	if qty <= 0 {
		return models.NotExecuted("position size below lot step")
	}
	fill := e.costs.Fill(req.Tick, side, qty, "entry")
	if cost := fill.Notional + fill.Fee; cost > req.Available {
		return models.NotExecuted(fmt.Sprintf("insufficient balance for entry: need %.2f, have %.2f", cost, req.Available))
	}

	id := models.NewPositionID(req.RunID, req.Tick.Symbol, req.Tick.Time, req.Seq)
	pos := &models.Position{
		ID:         id,
		UserID:     e.settings.UserID,
		StrategyID: e.settings.StrategyID,
		Exchange:   e.settings.Exchange,
		MarketType: e.settings.MarketType,
		Symbol:     req.Tick.Symbol,
		Side:       side,
		Leverage:   e.settings.Leverage,
		Status:     models.PositionStatusOpen,
		OpenedAt:   req.Tick.Time,
	}
	entry := models.OrderRef{
		ID:         models.NewOrderID(id, models.OrderRoleEntry, 0, 0),
		PositionID: id,
		Symbol:     pos.Symbol,
		Side:       side,
		Type:       e.costs.OrderType,
		Status:     models.OrderStatusNew,
		Metadata:   models.OrderMetadata{Role: models.OrderRoleEntry},
		CreatedAt:  req.Tick.Time,
	}
	filled, err := entry.Fill(fill.Price, fill.Quantity, fill.Fee, req.Tick.Time)
	if err != nil {
		return models.Failed(err)
	}
	delta := pos.ApplyOpeningFill(filled)

	e.layoutDCA(pos, req.Tick.Time)
	e.layoutRisk(pos, req.Signal, req.Tick.Time)
	pos.LiquidationPrice = pos.EstimatedLiquidationPrice()
	pos.Revalue(price)

	e.logger.Info("position opened",
		slog.String("position_id", id),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(side)),
		slog.Float64("price", filled.Price),
		slog.Float64("qty", filled.Quantity),
		slog.String("reason", req.Signal.Reason),
	)

	return models.ExecutionResult{
		Executed:     true,
		Reason:       "entry filled",
		Position:     pos,
		Fills:        []models.OrderRef{filled},
		BalanceDelta: delta,
	}
}

func (e *Executor) layoutDCA(pos *models.Position, at time.Time) {
	if e.settings.DCALevels <= 0 || e.settings.DCAStepPct <= 0 {
		return
	}
	sign := pos.Side.Sign()
	for i := 1; i <= e.settings.DCALevels; i++ {
		target := pos.AvgEntryPrice * (1 - sign*e.settings.DCAStepPct*float64(i)/100)
		target = costs.RoundPrice(target, e.settings.TickSize)
		if target <= 0 {
			break
		}
		level := models.DCALevel{Level: i, TargetPrice: target, Status: models.LevelPending}
		order := models.OrderRef{
			ID:         models.NewOrderID(pos.ID, models.OrderRoleDCA, i, 0),
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Side:       pos.Side,
			Type:       e.costs.OrderType,
			Price:      target,
			Quantity:   costs.RoundQuantity(e.sizing.Quantity(pos, level), e.settings.LotStep),
			Status:     models.OrderStatusNew,
			Metadata:   models.OrderMetadata{Role: models.OrderRoleDCA, Level: i},
			CreatedAt:  at,
		}
		level.OrderID = order.ID
		pos.DCALevels = append(pos.DCALevels, level)
		pos.DCAOrders = append(pos.DCAOrders, order)
	}
}

func (e *Executor) layoutRisk(pos *models.Position, sig models.Signal, at time.Time) {
	sign := pos.Side.Sign()
	avg := pos.AvgEntryPrice

	var levels []models.TPLevel
	for i, rung := range e.settings.TPLadder {
		if rung.Percentage <= 0 || rung.OffsetPct <= 0 {
			continue
		}
		levels = append(levels, models.TPLevel{
			Level:      i + 1,
			Price:      costs.RoundPrice(avg*(1+sign*rung.OffsetPct/100), e.settings.TickSize),
			Percentage: rung.Percentage,
			Status:     models.LevelPending,
		})
	}
	if len(levels) == 0 && sig.TakeProfitPrice > 0 {
		levels = []models.TPLevel{{Level: 1, Price: sig.TakeProfitPrice, Percentage: 100, Status: models.LevelPending}}
	}
	if len(levels) > 0 {
		for i := range levels {
			order := models.OrderRef{
				ID:         models.NewOrderID(pos.ID, models.OrderRoleTP, levels[i].Level, 0),
				PositionID: pos.ID,
				Symbol:     pos.Symbol,
				Side:       pos.Side.Opposite(),
				Type:       e.costs.OrderType,
				Price:      levels[i].Price,
				Quantity:   pos.PositionQty * levels[i].Percentage / 100,
				Status:     models.OrderStatusNew,
				Metadata:   models.OrderMetadata{Role: models.OrderRoleTP, Level: levels[i].Level, Reason: models.ExitTakeProfit},
				CreatedAt:  at,
			}
			levels[i].OrderID = order.ID
			pos.TPOrders = append(pos.TPOrders, order)
		}
		pos.Risk.PartialTP = &models.PartialTakeProfit{Levels: levels}
		pos.Risk.TakeProfitPrice = levels[len(levels)-1].Price
	}

	switch {
	case sig.StopLossPrice > 0:
		pos.Risk.StopLossPrice = sig.StopLossPrice
	case e.settings.StopLossPct > 0:
		pos.Risk.StopLossPrice = costs.RoundPrice(avg*(1-sign*e.settings.StopLossPct/100), e.settings.TickSize)
	}

	if e.settings.TrailingDistancePct > 0 {
		pos.Risk.Trailing = &models.TrailingStop{
			Enabled:         true,
			ActivationPrice: avg * (1 + sign*e.settings.TrailingActivationPct/100),
			DistancePct:     e.settings.TrailingDistancePct,
		}
	}
	if e.settings.BreakEvenTriggerPct > 0 {
		pos.Risk.BreakEven = &models.BreakEven{
			Enabled:      true,
			TriggerPrice: avg * (1 + sign*e.settings.BreakEvenTriggerPct/100),
		}
	}
}

// calculatePositionSize returns the USD notional reserved by one entry.
func (e *Executor) calculatePositionSize(available float64) float64 {
	if e.settings.PositionSizeUsd > 0 {
		return e.settings.PositionSizeUsd
	}
	return available * e.settings.RiskPerTrade
}
