package takeprofit

import (
	"math"
	"testing"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
)

func ladderPosition(side models.Side, entry, qty float64, levels ...models.TPLevel) *models.Position {
	return &models.Position{
		ID:            "22222222-2222-2222-2222-222222222222",
		Symbol:        "BTCUSDT",
		Side:          side,
		AvgEntryPrice: entry,
		PositionQty:   qty,
		EntryQty:      qty,
		MarginUsd:     entry * qty,
		Status:        models.PositionStatusOpen,
		DCALevels:     []models.DCALevel{{Level: 1, TargetPrice: entry * 0.9, Status: models.LevelPending}},
		Risk: models.RiskState{
			PartialTP: &models.PartialTakeProfit{Levels: levels},
		},
	}
}

func TestShouldExecute(t *testing.T) {
	l := models.TPLevel{Level: 1, Price: 110, Percentage: 50, Status: models.LevelPending}
	if ShouldExecute(l, 109, models.SideBuy) {
		t.Error("buy triggered below target")
	}
	if !ShouldExecute(l, 110, models.SideBuy) {
		t.Error("buy not triggered at target")
	}
	if !ShouldExecute(models.TPLevel{Price: 90, Status: models.LevelPending}, 89, models.SideSell) {
		t.Error("sell not triggered below target")
	}
	l.Status = models.LevelFilled
	if ShouldExecute(l, 200, models.SideBuy) {
		t.Error("filled level triggered")
	}
}

func TestPartialClose(t *testing.T) {
	m := NewManager(costs.Model{}, 0, nil)
	pos := ladderPosition(models.SideBuy, 49400, 0.25,
		models.TPLevel{Level: 1, Price: 51000, Percentage: 30, Status: models.LevelPending},
		models.TPLevel{Level: 2, Price: 53000, Percentage: 70, Status: models.LevelPending})

	res := m.Execute(pos, pos.Risk.PartialTP.Levels[0], models.Tick{Symbol: "BTCUSDT", Price: 51000, Time: time.Unix(100, 0)})
	if !res.Executed {
		t.Fatalf("not executed: %s", res.Reason)
	}
	next := res.Position
	if next.Status != models.PositionStatusOpen {
		t.Fatalf("status = %s, want open", next.Status)
	}
	if math.Abs(next.PositionQty-0.175) > 1e-12 {
		t.Errorf("remaining qty = %v, want 70%% of 0.25", next.PositionQty)
	}
	if next.AvgEntryPrice != pos.AvgEntryPrice {
		t.Errorf("avg entry moved on partial close: %v", next.AvgEntryPrice)
	}
	wantPnl := (51000 - 49400) * 0.075
	if math.Abs(res.RealizedPnl-wantPnl) > 1e-6 || res.RealizedPnl <= 0 {
		t.Errorf("realized = %v, want %v", res.RealizedPnl, wantPnl)
	}
	if len(next.TPOrders) != 1 || next.TPOrders[0].Side != models.SideSell {
		t.Errorf("tp orders = %+v", next.TPOrders)
	}
	if next.DCALevels[0].Status != models.LevelPending {
		t.Error("partial close must not cancel dca levels")
	}
	if pos.PositionQty != 0.25 {
		t.Error("input position mutated")
	}

	// the second rung completes the ladder and closes the rest
	res2 := m.Execute(next, next.Risk.PartialTP.Levels[1], models.Tick{Symbol: "BTCUSDT", Price: 53000, Time: time.Unix(200, 0)})
	if !res2.Executed {
		t.Fatalf("second rung not executed: %s", res2.Reason)
	}
	closed := res2.Position
	if closed.Status != models.PositionStatusClosed || closed.PositionQty != 0 {
		t.Fatalf("status=%s qty=%v, want closed/0", closed.Status, closed.PositionQty)
	}
	if closed.ExitReason != models.ExitTakeProfit {
		t.Errorf("exit reason = %s", closed.ExitReason)
	}
	if closed.DCALevels[0].Status != models.LevelCancelled {
		t.Errorf("dca level = %s, want cancelled", closed.DCALevels[0].Status)
	}
	if math.Abs(closed.FilledQuantity(models.OrderRoleTP)-0.25) > 1e-12 {
		t.Errorf("closed quantity = %v", closed.FilledQuantity(models.OrderRoleTP))
	}
}

func TestExecuteRejectsConsumedLevel(t *testing.T) {
	m := NewManager(costs.Model{}, 0, nil)
	pos := ladderPosition(models.SideBuy, 100, 1,
		models.TPLevel{Level: 1, Price: 110, Percentage: 50, Status: models.LevelFilled})
	res := m.Execute(pos, pos.Risk.PartialTP.Levels[0], models.Tick{Price: 120, Time: time.Unix(0, 0)})
	if res.Executed || res.Err != nil {
		t.Fatalf("got %+v", res)
	}
}

func TestSellSidePartialClose(t *testing.T) {
	m := NewManager(costs.Model{Fees: costs.FeeConfig{TakerPct: 0.05}}, 0.001, nil)
	pos := ladderPosition(models.SideSell, 2000, 2,
		models.TPLevel{Level: 1, Price: 1900, Percentage: 25, Status: models.LevelPending})

	res := m.Execute(pos, pos.Risk.PartialTP.Levels[0], models.Tick{Symbol: "ETHUSDT", Price: 1900, Time: time.Unix(0, 0)})
	if !res.Executed {
		t.Fatalf("not executed: %s", res.Reason)
	}
	if res.Fills[0].Side != models.SideBuy {
		t.Errorf("exit side = %s, want buy", res.Fills[0].Side)
	}
	gross := (2000 - 1900) * 0.5
	fee := 1900 * 0.5 * 0.05 / 100
	if math.Abs(res.RealizedPnl-(gross-fee)) > 1e-6 {
		t.Errorf("realized = %v, want %v", res.RealizedPnl, gross-fee)
	}
}

func TestUpdateTrailingRatchets(t *testing.T) {
	pos := ladderPosition(models.SideBuy, 50000, 0.1)
	pos.Risk.Trailing = &models.TrailingStop{Enabled: true, ActivationPrice: 51000, DistancePct: 1}

	if _, changed := UpdateTrailing(pos, 50500); changed {
		t.Fatal("trailing moved before activation")
	}

	p1, changed := UpdateTrailing(pos, 51000)
	if !changed || !p1.Risk.Trailing.Activated {
		t.Fatal("trailing not activated at activation price")
	}
	if math.Abs(p1.Risk.Trailing.CurrentStopPrice-50490) > 1e-6 {
		t.Errorf("stop = %v, want 50490", p1.Risk.Trailing.CurrentStopPrice)
	}

	p2, _ := UpdateTrailing(p1, 52000)
	if math.Abs(p2.Risk.Trailing.CurrentStopPrice-51480) > 1e-6 {
		t.Errorf("stop = %v, want 51480", p2.Risk.Trailing.CurrentStopPrice)
	}

	p3, changed := UpdateTrailing(p2, 51500)
	if changed {
		t.Error("pullback changed trailing state")
	}
	if p3.Risk.Trailing.CurrentStopPrice != p2.Risk.Trailing.CurrentStopPrice {
		t.Error("stop retreated")
	}
	if pos.Risk.Trailing.Activated {
		t.Error("input trailing state mutated")
	}
}

func TestUpdateTrailingSellSide(t *testing.T) {
	pos := ladderPosition(models.SideSell, 2000, 1)
	pos.Risk.Trailing = &models.TrailingStop{Enabled: true, ActivationPrice: 1900, DistancePct: 2}

	p1, changed := UpdateTrailing(pos, 1900)
	if !changed {
		t.Fatal("not activated")
	}
	if math.Abs(p1.Risk.Trailing.CurrentStopPrice-1938) > 1e-6 {
		t.Errorf("stop = %v, want 1938", p1.Risk.Trailing.CurrentStopPrice)
	}
	p2, _ := UpdateTrailing(p1, 1800)
	if math.Abs(p2.Risk.Trailing.CurrentStopPrice-1836) > 1e-6 {
		t.Errorf("stop = %v, want 1836", p2.Risk.Trailing.CurrentStopPrice)
	}
	p3, _ := UpdateTrailing(p2, 1850)
	if p3.Risk.Trailing.CurrentStopPrice != p2.Risk.Trailing.CurrentStopPrice {
		t.Error("sell stop moved against the position")
	}
}
