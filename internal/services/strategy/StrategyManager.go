package strategy

import (
	"context"
	"log/slog"

	"TradeCore/internal/models"
	"TradeCore/internal/services/indicators"
)

// StrategyManager turns indicator values into entry signals by running the
// long and short strategies and keeping the more confident one.
type StrategyManager struct {
	long   *LongStrategy
	short  *ShortStrategy
	logger *slog.Logger
}

func NewStrategyManager(cfg Config, logger *slog.Logger) (*StrategyManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StrategyManager{
		long:   NewLongStrategy(cfg),
		short:  NewShortStrategy(cfg),
		logger: logger.With(slog.String("component", "strategy")),
	}, nil
}

// GenerateSignal returns nil when there is no valid setup.
func (m *StrategyManager) GenerateSignal(ctx context.Context, sc models.SignalContext) (*models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := m.Analyze(sc.Indicators)
	if !result.IsValid {
		return nil, nil
	}

	m.logger.Debug("signal",
		slog.String("symbol", sc.Symbol),
		slog.String("side", string(result.Side)),
		slog.Float64("confidence", result.Confidence),
		slog.Float64("price", result.EntryPrice),
	)
	return &models.Signal{
		Side:            result.Side,
		PriceAtSignal:   result.EntryPrice,
		Confidence:      result.Confidence,
		StopLossPrice:   result.StopLoss,
		TakeProfitPrice: result.TakeProfit,
		Reason:          "ema crossover",
	}, nil
}

func (m *StrategyManager) Analyze(values map[string]float64) *StrategyResult {
	snap, ok := readSnapshot(values)
	if !ok {
		return newInvalidResult("indicators not ready")
	}

	longResult := m.long.analyze(snap)
	shortResult := m.short.analyze(snap)

	switch {
	case longResult.IsValid && shortResult.IsValid:
		if longResult.Confidence > shortResult.Confidence {
			return longResult
		}
		return shortResult
	case longResult.IsValid:
		return longResult
	case shortResult.IsValid:
		return shortResult
	}
	return newInvalidResult("no valid setup found")
}

func readSnapshot(values map[string]float64) (snapshot, bool) {
	var snap snapshot
	required := []struct {
		key string
		dst *float64
	}{
		{indicators.KeyClose, &snap.close},
		{indicators.KeyEMAFast, &snap.fast},
		{indicators.KeyEMASlow, &snap.slow},
		{indicators.KeyEMAFastPrev, &snap.fastPrev},
		{indicators.KeyEMASlowPrev, &snap.slowPrev},
		{indicators.KeyRSI, &snap.rsi},
	}
	for _, r := range required {
		v, ok := values[r.key]
		if !ok {
			return snapshot{}, false
		}
		*r.dst = v
	}
	snap.macdHist = values[indicators.KeyMACDHist]
	snap.volumeRatio, snap.hasVolume = values[indicators.KeyVolumeRatio]
	snap.pattern = values[indicators.KeyPattern]
	return snap, true
}
