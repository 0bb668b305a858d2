package stoploss

import (
	"errors"
	"math"
	"testing"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
)

func openPosition(side models.Side, entry, qty, leverage float64) *models.Position {
	return &models.Position{
		ID:            "33333333-3333-3333-3333-333333333333",
		Symbol:        "BTCUSDT",
		MarketType:    models.MarketFutures,
		Side:          side,
		AvgEntryPrice: entry,
		PositionQty:   qty,
		EntryQty:      qty,
		Leverage:      leverage,
		MarginUsd:     entry * qty,
		Status:        models.PositionStatusOpen,
		DCALevels:     []models.DCALevel{{Level: 1, TargetPrice: entry * 0.95, Status: models.LevelPending, OrderID: "dca-1"}},
		DCAOrders: []models.OrderRef{{
			ID: "dca-1", Side: side, Status: models.OrderStatusNew,
			Metadata: models.OrderMetadata{Role: models.OrderRoleDCA, Level: 1},
		}},
		TPOrders: []models.OrderRef{{
			ID: "tp-1", Side: side.Opposite(), Status: models.OrderStatusNew,
			Metadata: models.OrderMetadata{Role: models.OrderRoleTP, Level: 1},
		}},
		Risk: models.RiskState{
			PartialTP: &models.PartialTakeProfit{Levels: []models.TPLevel{
				{Level: 1, Price: entry * 1.1, Percentage: 100, Status: models.LevelPending, OrderID: "tp-1"},
			}},
		},
	}
}

func TestEffectiveStop(t *testing.T) {
	tests := []struct {
		name       string
		side       models.Side
		stop       float64
		trailing   *models.TrailingStop
		wantPrice  float64
		wantReason models.ExitReason
	}{
		{"fixed only", models.SideBuy, 95, nil, 95, models.ExitStopLoss},
		{"none armed", models.SideBuy, 0, nil, 0, models.ExitStopLoss},
		{"inactive trailing ignored", models.SideBuy, 95, &models.TrailingStop{Enabled: true, CurrentStopPrice: 99}, 95, models.ExitStopLoss},
		{"trailing tighter on buy", models.SideBuy, 95, &models.TrailingStop{Enabled: true, Activated: true, CurrentStopPrice: 99}, 99, models.ExitTrailingStop},
		{"fixed tighter on buy", models.SideBuy, 98, &models.TrailingStop{Enabled: true, Activated: true, CurrentStopPrice: 97}, 98, models.ExitStopLoss},
		{"trailing tighter on sell", models.SideSell, 105, &models.TrailingStop{Enabled: true, Activated: true, CurrentStopPrice: 101}, 101, models.ExitTrailingStop},
		{"trailing without fixed", models.SideSell, 0, &models.TrailingStop{Enabled: true, Activated: true, CurrentStopPrice: 101}, 101, models.ExitTrailingStop},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos := openPosition(tc.side, 100, 1, 1)
			pos.Risk.StopLossPrice = tc.stop
			pos.Risk.Trailing = tc.trailing
			price, reason := EffectiveStop(pos)
			if price != tc.wantPrice || reason != tc.wantReason {
				t.Errorf("got (%v, %s), want (%v, %s)", price, reason, tc.wantPrice, tc.wantReason)
			}
		})
	}
}

func TestShouldTrigger(t *testing.T) {
	buy := openPosition(models.SideBuy, 100, 1, 1)
	buy.Risk.StopLossPrice = 95
	if ShouldTrigger(buy, 96) {
		t.Error("buy triggered above stop")
	}
	if !ShouldTrigger(buy, 95) {
		t.Error("buy not triggered at stop")
	}

	sell := openPosition(models.SideSell, 100, 1, 1)
	sell.Risk.StopLossPrice = 105
	if !ShouldTrigger(sell, 106) {
		t.Error("sell not triggered above stop")
	}
	if ShouldTrigger(sell, 104) {
		t.Error("sell triggered below stop")
	}

	unarmed := openPosition(models.SideBuy, 100, 1, 1)
	if ShouldTrigger(unarmed, 1) {
		t.Error("triggered without a stop")
	}
}

func TestExecuteClosesEverythingWithLeverage(t *testing.T) {
	m := NewManager(costs.Model{}, nil)
	pos := openPosition(models.SideBuy, 50000, 0.2, 5)
	pos.Risk.StopLossPrice = 49000
	at := time.Unix(1000, 0)

	res := m.Execute(pos, models.Tick{Symbol: "BTCUSDT", Price: 49000, Time: at})
	if !res.Executed || res.Err != nil {
		t.Fatalf("not executed: %+v", res)
	}
	next := res.Position
	if next.Status != models.PositionStatusClosed || next.PositionQty != 0 {
		t.Fatalf("status=%s qty=%v", next.Status, next.PositionQty)
	}
	if next.ExitReason != models.ExitStopLoss {
		t.Errorf("exit reason = %s", next.ExitReason)
	}
	want := (49000 - 50000) * 0.2 * 5.0
	if math.Abs(res.RealizedPnl-want) > 1e-6 {
		t.Errorf("realized = %v, want %v", res.RealizedPnl, want)
	}
	if len(next.SLOrders) != 1 || next.SLOrders[0].Status != models.OrderStatusFilled {
		t.Fatalf("sl orders = %+v", next.SLOrders)
	}
	if len(res.Canceled) != 2 {
		t.Errorf("canceled %d orders, want 2", len(res.Canceled))
	}
	if next.DCAOrders[0].Status != models.OrderStatusCanceled || next.TPOrders[0].Status != models.OrderStatusCanceled {
		t.Error("sibling orders left open")
	}
	if next.DCALevels[0].Status != models.LevelCancelled {
		t.Error("dca level left pending")
	}
	if next.ClosedAt == nil || !next.ClosedAt.Equal(at) {
		t.Errorf("closed at = %v", next.ClosedAt)
	}
	if pos.Status != models.PositionStatusOpen || pos.DCAOrders[0].Status != models.OrderStatusNew {
		t.Error("input position mutated")
	}
}

func TestExecuteShortSide(t *testing.T) {
	m := NewManager(costs.Model{Fees: costs.FeeConfig{TakerPct: 0.1}}, nil)
	pos := openPosition(models.SideSell, 2000, 1, 2)
	pos.Risk.StopLossPrice = 2100

	res := m.Execute(pos, models.Tick{Symbol: "ETHUSDT", Price: 2100, Time: time.Unix(0, 0)})
	if !res.Executed {
		t.Fatalf("not executed: %s", res.Reason)
	}
	if res.Fills[0].Side != models.SideBuy {
		t.Errorf("exit side = %s", res.Fills[0].Side)
	}
	want := (2100-2000)*1*-1*2.0 - 2100*0.1/100
	if math.Abs(res.RealizedPnl-want) > 1e-6 {
		t.Errorf("realized = %v, want %v", res.RealizedPnl, want)
	}
}

func TestExecuteNotTriggered(t *testing.T) {
	m := NewManager(costs.Model{}, nil)
	pos := openPosition(models.SideBuy, 100, 1, 1)
	pos.Risk.StopLossPrice = 90
	res := m.Execute(pos, models.Tick{Price: 95, Time: time.Unix(0, 0)})
	if res.Executed || res.Err != nil || res.Position != nil {
		t.Fatalf("got %+v", res)
	}
}

func TestCloseRecordsReason(t *testing.T) {
	m := NewManager(costs.Model{}, nil)
	pos := openPosition(models.SideBuy, 100, 1, 1)
	res := m.Close(pos, models.Tick{Price: 101, Time: time.Unix(0, 0)}, models.ExitKillSwitch)
	if !res.Executed {
		t.Fatalf("not executed: %s", res.Reason)
	}
	if res.Position.ExitReason != models.ExitKillSwitch {
		t.Errorf("exit reason = %s", res.Position.ExitReason)
	}
	if res.Fills[0].Metadata.Reason != models.ExitKillSwitch || res.Fills[0].Metadata.Role != models.OrderRoleSL {
		t.Errorf("fill metadata = %+v", res.Fills[0].Metadata)
	}

	again := m.Close(res.Position, models.Tick{Price: 101, Time: time.Unix(1, 0)}, models.ExitKillSwitch)
	if again.Executed {
		t.Error("closed a closed position")
	}
}

func TestUpdateBreakEvenIdempotent(t *testing.T) {
	pos := openPosition(models.SideBuy, 100, 1, 1)
	pos.Risk.StopLossPrice = 90
	pos.Risk.BreakEven = &models.BreakEven{Enabled: true, TriggerPrice: 105}

	if _, changed := UpdateBreakEven(pos, 104); changed {
		t.Fatal("moved before trigger")
	}
	p1, changed := UpdateBreakEven(pos, 105)
	if !changed || !p1.Risk.BreakEven.Activated {
		t.Fatal("not activated at trigger")
	}
	if p1.Risk.StopLossPrice != 100 {
		t.Errorf("stop = %v, want avg entry 100", p1.Risk.StopLossPrice)
	}

	// a later averaging fill must not drag the stop along
	p1.AvgEntryPrice = 98
	p2, changed := UpdateBreakEven(p1, 120)
	if changed || p2.Risk.StopLossPrice != 100 {
		t.Errorf("second call changed state: changed=%v stop=%v", changed, p2.Risk.StopLossPrice)
	}
	if pos.Risk.StopLossPrice != 90 || pos.Risk.BreakEven.Activated {
		t.Error("input position mutated")
	}
}

func TestStopTickGap(t *testing.T) {
	pos := openPosition(models.SideBuy, 100, 1, 1)
	pos.Risk.StopLossPrice = 95
	at := time.Unix(0, 0)

	if got := StopTick(pos, models.Price{Open: 97, Low: 94}, at).Price; got != 95 {
		t.Errorf("intrabar stop fill = %v, want 95", got)
	}
	if got := StopTick(pos, models.Price{Open: 93, Low: 92}, at).Price; got != 93 {
		t.Errorf("gap fill = %v, want open 93", got)
	}
}

func TestClosedPositionRejectsFill(t *testing.T) {
	pos := openPosition(models.SideBuy, 100, 1, 1)
	pos.MarkClosed(models.ExitStopLoss, time.Unix(0, 0))
	_, err := pos.ApplyClosingFill(models.OrderRef{Quantity: 1, Price: 100})
	if !errors.Is(err, models.ErrPositionClosed) {
		t.Errorf("err = %v, want ErrPositionClosed", err)
	}
}

func TestCloseGoesThroughClosing(t *testing.T) {
	m := NewManager(costs.Model{}, nil)
	pos := openPosition(models.SideBuy, 100, 1, 1)
	res := m.Close(pos, models.Tick{Price: 99, Time: time.Unix(0, 0)}, models.ExitDrawdown)
	if !res.Executed || res.Position.Status != models.PositionStatusClosed {
		t.Fatalf("close: %+v", res)
	}
	if pos.Status != models.PositionStatusOpen {
		t.Errorf("caller's position moved to %s", pos.Status)
	}

	// a close interrupted after the siblings were canceled can be finished
	stuck := openPosition(models.SideBuy, 100, 1, 1)
	if _, err := stuck.BeginClose(time.Unix(0, 0)); err != nil {
		t.Fatal(err)
	}
	res = m.Close(stuck, models.Tick{Price: 99, Time: time.Unix(1, 0)}, models.ExitDrawdown)
	if !res.Executed || res.Position.Status != models.PositionStatusClosed || len(res.Canceled) != 0 {
		t.Fatalf("finishing a closing position: executed=%v status=%s canceled=%d", res.Executed, res.Position.Status, len(res.Canceled))
	}
}
