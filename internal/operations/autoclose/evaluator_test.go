package autoclose

import (
	"testing"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"
	"TradeCore/internal/operations/stoploss"
)

func futuresPosition(side models.Side, entry, liq float64) *models.Position {
	return &models.Position{
		ID:               "44444444-4444-4444-4444-444444444444",
		Symbol:           "BTCUSDT",
		MarketType:       models.MarketFutures,
		Side:             side,
		AvgEntryPrice:    entry,
		PositionQty:      1,
		EntryQty:         1,
		Leverage:         10,
		LiquidationPrice: liq,
		MarginUsd:        entry,
		Status:           models.PositionStatusOpen,
		TPOrders: []models.OrderRef{{
			ID: "tp-1", Side: side.Opposite(), Status: models.OrderStatusNew,
			Metadata: models.OrderMetadata{Role: models.OrderRoleTP, Level: 1},
		}},
	}
}

func newEvaluator(cfg Config) *Evaluator {
	return NewEvaluator(stoploss.NewManager(costs.Model{}, nil), nil, DefaultRules(cfg)...)
}

func TestKillSwitchBeatsDrawdown(t *testing.T) {
	e := newEvaluator(Config{MaxDrawdownPct: 10})
	pos := futuresPosition(models.SideBuy, 100, 0)
	snap := Snapshot{Time: time.Unix(0, 0), Price: 90, KillSwitch: true, CurrentDrawdownPct: 25}

	ev := e.Evaluate(pos, snap)
	if ev.Close == nil || ev.Close.Rule != "kill_switch" {
		t.Fatalf("close decision = %+v, want kill_switch", ev.Close)
	}
	if !ev.Result.Executed || ev.Result.Position.ExitReason != models.ExitKillSwitch {
		t.Fatalf("result = %+v", ev.Result)
	}
	if ev.Result.Position.TPOrders[0].Status != models.OrderStatusCanceled {
		t.Error("pending tp not canceled")
	}
}

func TestRuleOrder(t *testing.T) {
	e := NewEvaluator(nil, nil,
		DailyLossRule{LimitUsd: 1},
		DrawdownRule{MaxPct: 1},
		LiquidationRule{MarginPct: 2},
		KillSwitchRule{},
	)
	var names []string
	for _, r := range e.Rules() {
		names = append(names, r.Name())
	}
	want := []string{"liquidation", "kill_switch", "drawdown", "daily_loss"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestDrawdownWarningSurfacesWithoutClosing(t *testing.T) {
	e := newEvaluator(Config{MaxDrawdownPct: 10})
	pos := futuresPosition(models.SideBuy, 100, 0)

	ev := e.Evaluate(pos, Snapshot{Price: 99, CurrentDrawdownPct: 8.5})
	if ev.Close != nil {
		t.Fatalf("closed on warning: %+v", ev.Close)
	}
	if ev.Warning == nil || ev.Warning.Rule != "drawdown" {
		t.Fatalf("warning = %+v", ev.Warning)
	}
	if ev.Result.Executed || ev.Result.Reason != ev.Warning.Message {
		t.Errorf("result = %+v", ev.Result)
	}

	ev = e.Evaluate(pos, Snapshot{Price: 99, CurrentDrawdownPct: 10})
	if ev.Close == nil || ev.Result.Position.ExitReason != models.ExitDrawdown {
		t.Fatalf("drawdown at limit did not close: %+v", ev)
	}
}

func TestLiquidationRule(t *testing.T) {
	tests := []struct {
		name      string
		side      models.Side
		market    models.MarketType
		price     float64
		liq       float64
		wantClose bool
		wantWarn  bool
	}{
		{"safe", models.SideBuy, models.MarketFutures, 100, 90, false, false},
		{"warning band", models.SideBuy, models.MarketFutures, 100, 97, false, true},
		{"inside margin", models.SideBuy, models.MarketFutures, 100, 98.5, true, false},
		{"through liquidation", models.SideBuy, models.MarketFutures, 100, 101, true, false},
		{"short inside margin", models.SideSell, models.MarketFutures, 100, 101, true, false},
		{"short safe", models.SideSell, models.MarketFutures, 100, 110, false, false},
		{"spot ignored", models.SideBuy, models.MarketSpot, 100, 99.9, false, false},
	}
	rule := LiquidationRule{MarginPct: 2}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos := futuresPosition(tc.side, 100, tc.liq)
			pos.MarketType = tc.market
			d := rule.Check(pos, Snapshot{Price: tc.price})
			gotClose := d != nil && d.ShouldClose
			gotWarn := d != nil && d.Warning
			if gotClose != tc.wantClose || gotWarn != tc.wantWarn {
				t.Errorf("close=%v warn=%v, want close=%v warn=%v", gotClose, gotWarn, tc.wantClose, tc.wantWarn)
			}
		})
	}
}

func TestDailyLossRule(t *testing.T) {
	tests := []struct {
		name      string
		rule      DailyLossRule
		pnl       float64
		capital   float64
		wantClose bool
	}{
		{"usd cap", DailyLossRule{LimitUsd: 500}, -500, 10000, true},
		{"under usd cap", DailyLossRule{LimitUsd: 500}, -300, 10000, false},
		{"pct cap tighter", DailyLossRule{LimitUsd: 500, LimitPct: 2}, -200, 10000, true},
		{"profit day", DailyLossRule{LimitUsd: 500}, 800, 10000, false},
		{"disabled", DailyLossRule{}, -5000, 10000, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.rule.Check(nil, Snapshot{DailyPnlUsd: tc.pnl, CapitalUsd: tc.capital})
			if got := d != nil && d.ShouldClose; got != tc.wantClose {
				t.Errorf("close = %v, want %v", got, tc.wantClose)
			}
		})
	}
}

func TestFirstWarningWins(t *testing.T) {
	e := newEvaluator(Config{MaxDrawdownPct: 10, DailyLossLimitUsd: 100})
	pos := futuresPosition(models.SideBuy, 100, 0)
	ev := e.Check(pos, Snapshot{Price: 100, CurrentDrawdownPct: 9, DailyPnlUsd: -90})
	if ev.Warning == nil || ev.Warning.Rule != "drawdown" {
		t.Fatalf("warning = %+v, want drawdown", ev.Warning)
	}
}

func TestNothingTriggered(t *testing.T) {
	e := newEvaluator(Config{MaxDrawdownPct: 10})
	ev := e.Evaluate(futuresPosition(models.SideBuy, 100, 50), Snapshot{Price: 100})
	if ev.Close != nil || ev.Warning != nil || ev.Result.Executed {
		t.Fatalf("got %+v", ev)
	}
}
