package trading

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"TradeCore/internal/handlers"
	"TradeCore/internal/models"
	"TradeCore/internal/operations/autoclose"
	"TradeCore/internal/operations/position"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func tick(price float64, minute int) models.Tick {
	return models.Tick{Symbol: "BTCUSDT", Price: price, Time: t0.Add(time.Duration(minute) * time.Minute)}
}

type memTrades struct {
	mu      sync.Mutex
	records []models.TradeRecord
}

func (m *memTrades) Create(_ context.Context, trade *models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *trade)
	return nil
}

// flakyCancels rejects every cancel.
type flakyCancels struct {
	*PaperGateway
	cancels int
}

func (f *flakyCancels) Cancel(context.Context, models.OrderRef) error {
	f.cancels++
	return errors.New("unknown order")
}

func monitorConfig() MonitorConfig {
	return MonitorConfig{
		SessionID:      "session",
		InitialBalance: 20000,
		Position: position.Settings{
			PositionSizeUsd: 5000,
			TickSize:        0.01,
			DCALevels:       1,
			DCAStepPct:      2,
			TPLadder:        []position.TPRung{{OffsetPct: 2, Percentage: 50}},
			StopLossPct:     5,
		},
	}
}

func newTestMonitor(t *testing.T, cfg MonitorConfig, gateway OrderGateway, trades TradeRecorder) *Monitor {
	t.Helper()
	m, err := NewMonitor(cfg, handlers.NewKeyedLocker(), gateway, trades, nil)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m
}

func TestMonitorLifecycle(t *testing.T) {
	gw := NewPaperGateway(nil)
	trades := &memTrades{}
	m := newTestMonitor(t, monitorConfig(), gw, trades)
	ctx := context.Background()

	pos, err := m.Open(ctx, models.Signal{Side: models.SideBuy}, tick(50000, 0))
	if err != nil || pos == nil {
		t.Fatalf("Open: %+v, %v", pos, err)
	}
	if got := len(gw.Submitted()); got != 2 {
		t.Fatalf("submitted after open = %d, want entry plus the resting dca rung", got)
	}

	again, err := m.Open(ctx, models.Signal{Side: models.SideBuy}, tick(50100, 1))
	if err != nil || again != nil {
		t.Fatalf("second entry without pyramiding: %+v, %v", again, err)
	}

	out, err := m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(49000, 2)})
	if err != nil {
		t.Fatalf("Evaluate dca: %v", err)
	}
	if len(out.Actions) != 1 || math.Abs(out.Position.PositionQty-0.2) > 1e-9 || math.Abs(out.Position.AvgEntryPrice-49500) > 1e-6 {
		t.Fatalf("after dca: actions=%v qty=%v avg=%v", out.Actions, out.Position.PositionQty, out.Position.AvgEntryPrice)
	}

	out, err = m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(51000, 3)})
	if err != nil {
		t.Fatalf("Evaluate tp: %v", err)
	}
	if out.Closed || math.Abs(out.Position.PositionQty-0.1) > 1e-9 {
		t.Fatalf("after tp: closed=%v qty=%v", out.Closed, out.Position.PositionQty)
	}
	submitted := gw.Submitted()
	if len(submitted) != 3 {
		t.Fatalf("submitted = %d orders, want the dca fill kept resting and one tp", len(submitted))
	}
	if tp := submitted[2]; tp.Metadata.Role != models.OrderRoleTP || math.Abs(tp.Quantity-0.1) > 1e-9 {
		t.Errorf("tp order = %+v, want half of the averaged 0.2", tp)
	}

	out, err = m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(47000, 4)})
	if err != nil {
		t.Fatalf("Evaluate sl: %v", err)
	}
	if !out.Closed || out.ExitReason != models.ExitStopLoss {
		t.Fatalf("after sl: closed=%v reason=%s", out.Closed, out.ExitReason)
	}
	submitted = gw.Submitted()
	if len(submitted) != 4 || submitted[3].Metadata.Role != models.OrderRoleSL {
		t.Fatalf("close order not handed off: %+v", submitted)
	}
	if len(trades.records) != 1 || trades.records[0].ExitReason != models.ExitStopLoss.String() {
		t.Errorf("trade records = %+v", trades.records)
	}

	if _, err := m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(47000, 5)}); !errors.Is(err, models.ErrPositionNotFound) && !errors.Is(err, models.ErrPositionClosed) {
		t.Errorf("closed position err = %v", err)
	}
	if len(m.OpenPositions()) != 0 {
		t.Error("closed position still open")
	}
}

func TestMonitorKillSwitchCancelsRestingOrders(t *testing.T) {
	gw := &flakyCancels{PaperGateway: NewPaperGateway(nil)}
	m := newTestMonitor(t, monitorConfig(), gw, nil)
	ctx := context.Background()

	pos, err := m.Open(ctx, models.Signal{Side: models.SideBuy}, tick(50000, 0))
	if err != nil || pos == nil {
		t.Fatalf("Open: %v", err)
	}

	m.SetKillSwitch(true)
	out, err := m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(50200, 1)})
	if err != nil {
		t.Fatalf("cancel failures must not fail the close: %v", err)
	}
	if !out.Closed || out.ExitReason != models.ExitKillSwitch {
		t.Fatalf("closed=%v reason=%s", out.Closed, out.ExitReason)
	}
	if gw.cancels != 1 {
		t.Errorf("cancels = %d, want the resting dca rung", gw.cancels)
	}
	submitted := gw.Submitted()
	last := submitted[len(submitted)-1]
	if last.Metadata.Role != models.OrderRoleSL || last.Metadata.Reason != models.ExitKillSwitch {
		t.Errorf("close order = %+v", last)
	}
}

func TestMonitorRejectsConcurrentEvaluation(t *testing.T) {
	locker := handlers.NewKeyedLocker()
	m, err := NewMonitor(monitorConfig(), locker, NewPaperGateway(nil), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	pos, _ := m.Open(ctx, models.Signal{Side: models.SideBuy}, tick(50000, 0))

	unlock, err := locker.Acquire(ctx, pos.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(47000, 1)}); !errors.Is(err, models.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
	outcomes, err := m.EvaluateSymbol(ctx, Snapshot{Tick: tick(47000, 1)})
	if err != nil || len(outcomes) != 0 {
		t.Fatalf("busy position should be skipped: %v, %v", outcomes, err)
	}
	unlock()

	outcomes, err = m.EvaluateSymbol(ctx, Snapshot{Tick: tick(47000, 2)})
	if err != nil || len(outcomes) != 1 || !outcomes[0].Closed {
		t.Fatalf("outcomes = %+v, err = %v", outcomes, err)
	}
}

func TestMonitorUnknownPosition(t *testing.T) {
	m := newTestMonitor(t, monitorConfig(), NewPaperGateway(nil), nil)
	if _, err := m.Evaluate(context.Background(), "missing", Snapshot{Tick: tick(1, 0)}); !errors.Is(err, models.ErrPositionNotFound) {
		t.Errorf("err = %v, want ErrPositionNotFound", err)
	}
}

func TestNewMonitorValidates(t *testing.T) {
	cfg := monitorConfig()
	cfg.InitialBalance = 0
	if _, err := NewMonitor(cfg, handlers.NewKeyedLocker(), NewPaperGateway(nil), nil, nil); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("err = %v", err)
	}
	if _, err := NewMonitor(monitorConfig(), nil, NewPaperGateway(nil), nil, nil); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("nil locker err = %v", err)
	}
}

func riskConfig(ac autoclose.Config) MonitorConfig {
	return MonitorConfig{
		SessionID:      "session",
		InitialBalance: 10000,
		Position: position.Settings{
			PositionSizeUsd: 5000,
			TPLadder:        []position.TPRung{{OffsetPct: 50, Percentage: 100}},
			StopLossPct:     30,
		},
		AutoClose: ac,
	}
}

func TestMonitorDrawdownCountsMarkedGains(t *testing.T) {
	m := newTestMonitor(t, riskConfig(autoclose.Config{MaxDrawdownPct: 3}), NewPaperGateway(nil), nil)
	ctx := context.Background()
	pos, err := m.Open(ctx, models.Signal{Side: models.SideBuy}, tick(100, 0))
	if err != nil || pos == nil {
		t.Fatalf("Open: %v", err)
	}

	out, err := m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(120, 1)})
	if err != nil || out.Closed {
		t.Fatalf("at the high: closed=%v err=%v", out.Closed, err)
	}
	// 11000 -> 10600 is a 3.6% fall while equity is still above capital
	out, err = m.Evaluate(ctx, pos.ID, Snapshot{Tick: tick(112, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Closed || out.ExitReason != models.ExitDrawdown {
		t.Fatalf("closed=%v reason=%s, want drawdown close", out.Closed, out.ExitReason)
	}
}

func TestMonitorDailyLossResetsEachDay(t *testing.T) {
	m := newTestMonitor(t, riskConfig(autoclose.Config{DailyLossLimitUsd: 500}), NewPaperGateway(nil), nil)
	ctx := context.Background()
	at := func(price float64, day int) models.Tick {
		return models.Tick{Symbol: "BTCUSDT", Price: price, Time: t0.Add(time.Duration(day)*24*time.Hour + time.Hour)}
	}
	pos, err := m.Open(ctx, models.Signal{Side: models.SideBuy}, at(100, 0))
	if err != nil || pos == nil {
		t.Fatalf("Open: %v", err)
	}

	// -400 on the first day
	out, err := m.Evaluate(ctx, pos.ID, Snapshot{Tick: at(92, 0)})
	if err != nil || out.Closed {
		t.Fatalf("day one: closed=%v err=%v", out.Closed, err)
	}
	// a further -200 two days later is 600 in total but only 200 that day
	out, err = m.Evaluate(ctx, pos.ID, Snapshot{Tick: at(88, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if out.Closed {
		t.Fatalf("closed with %s, daily loss must not accumulate across days", out.ExitReason)
	}

	// a further -500 the same day closes
	out, err = m.Evaluate(ctx, pos.ID, Snapshot{Tick: at(78, 2)})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Closed || out.ExitReason != models.ExitDailyLoss {
		t.Fatalf("closed=%v reason=%s, want daily loss close", out.Closed, out.ExitReason)
	}
}
