package strategy

import (
	"math"

	"TradeCore/internal/models"
	"TradeCore/internal/services/indicators"
)

type ShortStrategy struct {
	cfg Config
	ema *indicators.EMAService
}

func NewShortStrategy(cfg Config) *ShortStrategy {
	return &ShortStrategy{cfg: cfg, ema: indicators.NewEMAService()}
}

func (s *ShortStrategy) analyze(snap snapshot) *StrategyResult {
	cross := s.ema.CheckCrossover(snap.fastPrev, snap.slowPrev, snap.fast, snap.slow)
	if !cross.Crossed || cross.Direction != -1 {
		return newInvalidResult("no bearish crossover")
	}
	if !s.validateShortSetup(snap) {
		return newInvalidResult("conditions not met")
	}

	confidence := s.calculateConfidence(snap, cross)
	if confidence < s.cfg.MinConfidence {
		return newInvalidResult("low confidence")
	}

	result := &StrategyResult{
		IsValid:    true,
		Side:       models.SideSell,
		EntryPrice: snap.close,
		Confidence: confidence,
	}
	if s.cfg.StopLossPct > 0 {
		result.StopLoss = snap.close * (1 + s.cfg.StopLossPct/100)
	}
	if s.cfg.TakeProfitPct > 0 {
		result.TakeProfit = snap.close * (1 - s.cfg.TakeProfitPct/100)
	}
	return result
}

// Validate short setup conditions
func (s *ShortStrategy) validateShortSetup(snap snapshot) bool {
	technicalValid := snap.rsi > s.cfg.RSILow && snap.rsi < s.cfg.RSIHigh
	volumeValid := !snap.hasVolume || snap.volumeRatio > s.cfg.MinVolumeRatio
	return technicalValid && volumeValid
}

// Calculate overall confidence score
func (s *ShortStrategy) calculateConfidence(snap snapshot, cross indicators.CrossSignal) float64 {
	confidence := 0.3

	if snap.hasVolume && snap.volumeRatio > 1.0 {
		confidence += 0.1
	}
	if snap.macdHist < 0 {
		confidence += 0.1
	}
	if snap.rsi > 40 && snap.rsi < 60 {
		confidence += 0.1
	}
	confidence += math.Min(cross.Strength*10, 0.2)
	if snap.pattern < 0 {
		confidence += math.Min(math.Abs(snap.pattern), 1) * 0.1
	}

	return math.Min(confidence, 1.0)
}
