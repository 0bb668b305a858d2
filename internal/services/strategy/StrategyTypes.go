package strategy

import (
	"fmt"

	"TradeCore/internal/models"
)

// StrategyResult represents the output of a strategy analysis
type StrategyResult struct {
	IsValid bool
	Side    models.Side
	Reason  string // If invalid, explains why

	// Price levels
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64

	Confidence float64
}

// Config holds the entry filters shared by the long and short strategies.
// Percentages are in percent units.
type Config struct {
	TakeProfitPct  float64
	StopLossPct    float64
	MinConfidence  float64
	RSILow         float64
	RSIHigh        float64
	MinVolumeRatio float64
}

func DefaultConfig() Config {
	return Config{
		TakeProfitPct:  1.0,
		StopLossPct:    0.6,
		MinConfidence:  0.3,
		RSILow:         25,
		RSIHigh:        75,
		MinVolumeRatio: 0.45,
	}
}

func (c Config) Validate() error {
	if c.TakeProfitPct < 0 || c.StopLossPct < 0 || c.StopLossPct >= 100 {
		return fmt.Errorf("strategy stop/target %.2f/%.2f: %w", c.StopLossPct, c.TakeProfitPct, models.ErrInvalidConfig)
	}
	if c.RSILow >= c.RSIHigh {
		return fmt.Errorf("strategy rsi band %.0f-%.0f: %w", c.RSILow, c.RSIHigh, models.ErrInvalidConfig)
	}
	return nil
}

// snapshot is the subset of indicator values the strategies read.
type snapshot struct {
	close       float64
	fast        float64
	slow        float64
	fastPrev    float64
	slowPrev    float64
	rsi         float64
	macdHist    float64
	volumeRatio float64
	hasVolume   bool
	pattern     float64
}

// Helper function for invalid results
func newInvalidResult(reason string) *StrategyResult {
	return &StrategyResult{
		IsValid: false,
		Reason:  reason,
	}
}
