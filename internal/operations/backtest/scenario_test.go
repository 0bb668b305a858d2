package backtest

import (
	"math"
	"testing"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
	"TradeCore/internal/operations/dca"
	"TradeCore/internal/operations/portfolio"
	"TradeCore/internal/operations/position"
	"TradeCore/internal/operations/stoploss"
	"TradeCore/internal/operations/takeprofit"
)

// TestTradeLifecycleScenario walks one long position through entry, an
// averaging fill, a partial take-profit and a trailing stop exit.
func TestTradeLifecycleScenario(t *testing.T) {
	model := costs.Model{Fees: costs.FeeConfig{TakerPct: 0.04}}
	state := portfolio.NewState(20000)
	at := func(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }
	tick := func(price float64, h int) models.Tick {
		return models.Tick{Symbol: "BTCUSDT", Price: price, Time: at(h)}
	}
	apply := func(res models.ExecutionResult) *models.Position {
		t.Helper()
		if res.Err != nil || !res.Executed {
			t.Fatalf("not executed: %s (%v)", res.Reason, res.Err)
		}
		if err := state.Apply(res); err != nil {
			t.Fatal(err)
		}
		return res.Position
	}

	opener := position.NewExecutor(position.Settings{
		PositionSizeUsd:       5000,
		TickSize:              0.01,
		DCALevels:             2,
		DCAStepPct:            1,
		TPLadder:              []position.TPRung{{OffsetPct: 2, Percentage: 30}},
		TrailingActivationPct: 3,
		TrailingDistancePct:   1,
	}, model, dca.WeightedSizing{Step: 0.5}, nil)
	opened := opener.OpenPosition(position.OpenRequest{
		RunID: "scenario", Signal: models.Signal{Side: models.SideBuy}, Tick: tick(50000, 0), Available: state.AvailableBalance(),
	})
	if err := state.Open(opened); err != nil {
		t.Fatal(err)
	}
	pos := opened.Position
	if pos.PositionQty != 0.1 {
		t.Fatalf("entry qty = %v", pos.PositionQty)
	}

	// level 2 sits at 49,000 and is weighted 1.5x
	dcaMgr := dca.NewManager(model, dca.WeightedSizing{Step: 0.5}, 0, nil)
	level2 := pos.DCALevels[pos.DCALevelIndex(2)]
	if level2.TargetPrice != 49000 {
		t.Fatalf("level 2 target = %v", level2.TargetPrice)
	}
	oldQty := pos.PositionQty
	pos = apply(dcaMgr.Execute(pos, level2, tick(49000, 1), state.AvailableBalance()))
	if pos.PositionQty-oldQty < 0.15-1e-12 || pos.PositionQty-oldQty > 0.15+1e-12 {
		t.Errorf("dca qty = %v, want 0.15", pos.PositionQty-oldQty)
	}
	if pos.AvgEntryPrice <= 49000 || pos.AvgEntryPrice >= 50000 {
		t.Fatalf("avg entry = %v", pos.AvgEntryPrice)
	}
	avg := pos.AvgEntryPrice
	beforeTP := pos.PositionQty

	tpMgr := takeprofit.NewManager(model, 0, nil)
	res := tpMgr.Execute(pos, pos.Risk.TPLevels()[0], tick(51000, 2))
	pos = apply(res)
	if res.RealizedPnl <= 0 {
		t.Errorf("partial tp realized %v", res.RealizedPnl)
	}
	if pos.Status != models.PositionStatusOpen || pos.AvgEntryPrice != avg {
		t.Errorf("after tp status=%s avg=%v", pos.Status, pos.AvgEntryPrice)
	}
	if d := pos.PositionQty - beforeTP*0.7; d > 1e-12 || d < -1e-12 {
		t.Errorf("remaining qty = %v, want 70%% of %v", pos.PositionQty, beforeTP)
	}

	var stops []float64
	for h, price := range []float64{51600, 51800, 52000} {
		if next, changed := takeprofit.UpdateTrailing(pos, price); changed {
			pos = apply(models.ExecutionResult{Executed: true, Position: next})
		}
		state.Revalue("BTCUSDT", price)
		state.RecordEquity(at(3 + h))
		if pos.Risk.Trailing.Activated {
			stops = append(stops, pos.Risk.Trailing.CurrentStopPrice)
		}
	}
	for i := 1; i < len(stops); i++ {
		if stops[i] < stops[i-1] {
			t.Fatalf("trailing stop retreated: %v", stops)
		}
	}
	if len(stops) != 3 || math.Abs(stops[2]-51480) > 1e-6 {
		t.Fatalf("trailing stops = %v", stops)
	}

	slMgr := stoploss.NewManager(model, nil)
	if stoploss.ShouldTrigger(pos, 51600) {
		t.Fatal("stop triggered above trailing stop")
	}
	pos = apply(slMgr.Execute(pos, tick(51400, 6)))

	if pos.Status != models.PositionStatusClosed || pos.PositionQty != 0 {
		t.Fatalf("status=%s qty=%v", pos.Status, pos.PositionQty)
	}
	if len(pos.SLOrders) == 0 || pos.ExitReason != models.ExitTrailingStop {
		t.Errorf("sl orders=%d reason=%s", len(pos.SLOrders), pos.ExitReason)
	}
	if pos.DCALevels[pos.DCALevelIndex(1)].Status != models.LevelCancelled {
		t.Error("unfilled dca level left pending")
	}
	if state.OpenCount() != 0 || len(state.Closed()) != 1 {
		t.Errorf("open=%d closed=%d", state.OpenCount(), len(state.Closed()))
	}

	opened2 := pos.FilledQuantity(models.OrderRoleEntry) + pos.FilledQuantity(models.OrderRoleDCA)
	closed := pos.FilledQuantity(models.OrderRoleTP) + pos.FilledQuantity(models.OrderRoleSL)
	if d := opened2 - closed; d > 1e-9 || d < -1e-9 {
		t.Errorf("opened %v, closed %v", opened2, closed)
	}
	for _, p := range state.Curve() {
		if d := p.Equity - (20000 + p.RealizedPnl + p.UnrealizedPnl); d > 1e-6 || d < -1e-6 {
			t.Fatalf("equity identity broken at %v", p.Time)
		}
	}
}
