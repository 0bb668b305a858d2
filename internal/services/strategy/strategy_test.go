package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/services/indicators"
)

func bullish() map[string]float64 {
	return map[string]float64{
		indicators.KeyClose:       100,
		indicators.KeyEMAFast:     100.5,
		indicators.KeyEMASlow:     100,
		indicators.KeyEMAFastPrev: 99.8,
		indicators.KeyEMASlowPrev: 100,
		indicators.KeyRSI:         55,
		indicators.KeyMACDHist:    0.2,
		indicators.KeyVolumeRatio: 1.5,
	}
}

func bearish() map[string]float64 {
	v := bullish()
	v[indicators.KeyEMAFast] = 99.5
	v[indicators.KeyEMAFastPrev] = 100.2
	v[indicators.KeyMACDHist] = -0.2
	return v
}

func newManager(t *testing.T, cfg Config) *StrategyManager {
	t.Helper()
	m, err := NewStrategyManager(cfg, nil)
	if err != nil {
		t.Fatalf("NewStrategyManager: %v", err)
	}
	return m
}

func TestAnalyzePatternConfirmation(t *testing.T) {
	m := newManager(t, DefaultConfig())

	confirmed := bullish()
	confirmed[indicators.KeyPattern] = 0.5
	if got := m.Analyze(confirmed); math.Abs(got.Confidence-0.70) > 1e-9 {
		t.Errorf("confirmed confidence = %v, want 0.70", got.Confidence)
	}

	against := bullish()
	against[indicators.KeyPattern] = -0.8
	if got := m.Analyze(against); math.Abs(got.Confidence-0.65) > 1e-9 {
		t.Errorf("opposing pattern confidence = %v, want 0.65", got.Confidence)
	}
}

func TestAnalyzeCrossovers(t *testing.T) {
	m := newManager(t, DefaultConfig())

	long := m.Analyze(bullish())
	if !long.IsValid || long.Side != models.SideBuy {
		t.Fatalf("bullish = %+v", long)
	}
	if math.Abs(long.Confidence-0.65) > 1e-9 {
		t.Errorf("confidence = %v, want 0.65", long.Confidence)
	}
	if math.Abs(long.StopLoss-99.4) > 1e-9 || math.Abs(long.TakeProfit-101) > 1e-9 {
		t.Errorf("long stops = %v / %v", long.StopLoss, long.TakeProfit)
	}

	short := m.Analyze(bearish())
	if !short.IsValid || short.Side != models.SideSell {
		t.Fatalf("bearish = %+v", short)
	}
	if math.Abs(short.StopLoss-100.6) > 1e-9 || math.Abs(short.TakeProfit-99) > 1e-9 {
		t.Errorf("short stops = %v / %v", short.StopLoss, short.TakeProfit)
	}
}

func TestAnalyzeFilters(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		edit   func(map[string]float64)
		reason string
	}{
		{"missing rsi", DefaultConfig(), func(v map[string]float64) { delete(v, indicators.KeyRSI) }, "indicators not ready"},
		{"overbought", DefaultConfig(), func(v map[string]float64) { v[indicators.KeyRSI] = 80 }, "no valid setup found"},
		{"thin volume", DefaultConfig(), func(v map[string]float64) { v[indicators.KeyVolumeRatio] = 0.3 }, "no valid setup found"},
		{"no cross", DefaultConfig(), func(v map[string]float64) { v[indicators.KeyEMAFastPrev] = 100.1 }, "no valid setup found"},
		{"confidence floor", Config{MinConfidence: 0.9, RSILow: 25, RSIHigh: 75}, func(map[string]float64) {}, "no valid setup found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := bullish()
			tt.edit(v)
			got := newManager(t, tt.cfg).Analyze(v)
			if got.IsValid || got.Reason != tt.reason {
				t.Errorf("got %+v, want invalid %q", got, tt.reason)
			}
		})
	}
}

func TestGenerateSignal(t *testing.T) {
	m := newManager(t, DefaultConfig())

	sig, err := m.GenerateSignal(context.Background(), models.SignalContext{Symbol: "BTCUSDT", Indicators: bullish()})
	if err != nil || sig == nil {
		t.Fatalf("signal = %+v, err = %v", sig, err)
	}
	if sig.Side != models.SideBuy || sig.PriceAtSignal != 100 || sig.StopLossPrice == 0 {
		t.Errorf("signal = %+v", sig)
	}

	none, err := m.GenerateSignal(context.Background(), models.SignalContext{Indicators: map[string]float64{}})
	if err != nil || none != nil {
		t.Errorf("empty indicators: %+v, %v", none, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.GenerateSignal(ctx, models.SignalContext{Indicators: bullish()}); err == nil {
		t.Error("canceled context should fail")
	}
}

func TestNewStrategyManagerValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RSILow = 80
	if _, err := NewStrategyManager(cfg, nil); err == nil {
		t.Error("inverted rsi band should be rejected")
	}
}

func TestSignalsOverReversal(t *testing.T) {
	provider, err := indicators.NewProvider(indicators.DefaultPeriods())
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	m := newManager(t, DefaultConfig())

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var history []models.Price
	price := 200.0
	for i := 0; i < 80; i++ {
		if i < 40 {
			price--
		} else {
			price++
		}
		history = append(history, models.Price{OpenTime: at.Add(time.Duration(i) * time.Hour), Close: price, Volume: 10})
	}

	buys, sells := 0, 0
	for n := 1; n <= len(history); n++ {
		values, err := provider.Compute(history[:n])
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		sig, err := m.GenerateSignal(context.Background(), models.SignalContext{Indicators: values})
		if err != nil {
			t.Fatalf("GenerateSignal: %v", err)
		}
		if sig == nil {
			continue
		}
		if sig.Side == models.SideBuy {
			buys++
		} else {
			sells++
		}
	}
	if buys == 0 || sells != 0 {
		t.Errorf("buys = %d sells = %d, want a buy on the turn and no sells", buys, sells)
	}
}
