package indicators

import "math"

// EMAService provides Exponential Moving Average calculations
type EMAService struct{}

// CrossSignal represents EMA crossover status
type CrossSignal struct {
	Crossed   bool    // Whether cross occurred
	Direction int     // 1 (bullish), -1 (bearish)
	Strength  float64 // Relative gap between the lines after the cross
}

// NewEMAService creates a new EMA service instance
func NewEMAService() *EMAService {
	return &EMAService{}
}

// Calculate computes EMA for the entire price series. The first period-1
// values are zero; the EMA is seeded with the SMA of the first period prices.
func (s *EMAService) Calculate(prices []float64, period int) []float64 {
	if !s.validateInputs(prices, period) {
		return nil
	}

	ema := make([]float64, len(prices))
	multiplier := s.getMultiplier(period)

	ema[period-1] = s.calculateInitialSMA(prices, period)
	for i := period; i < len(prices); i++ {
		ema[i] = s.calculatePoint(prices[i], ema[i-1], multiplier)
	}
	return ema
}

// CalculateOne advances an EMA by one price.
func (s *EMAService) CalculateOne(price, prevEMA float64, period int) float64 {
	if period <= 0 {
		return price
	}
	return s.calculatePoint(price, prevEMA, s.getMultiplier(period))
}

// CheckCrossover detects a crossover between the last two points of each line
func (s *EMAService) CheckCrossover(fastPrev, slowPrev, fast, slow float64) CrossSignal {
	bullishCross := fastPrev <= slowPrev && fast > slow
	bearishCross := fastPrev >= slowPrev && fast < slow

	if !bullishCross && !bearishCross {
		return CrossSignal{}
	}

	direction := 1
	if bearishCross {
		direction = -1
	}
	strength := 0.0
	if slow != 0 {
		strength = math.Abs((fast - slow) / slow)
	}
	return CrossSignal{Crossed: true, Direction: direction, Strength: strength}
}

func (s *EMAService) validateInputs(prices []float64, period int) bool {
	return period > 0 && len(prices) >= period
}

func (s *EMAService) getMultiplier(period int) float64 {
	return 2.0 / float64(period+1)
}

func (s *EMAService) calculateInitialSMA(prices []float64, period int) float64 {
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	return sum / float64(period)
}

func (s *EMAService) calculatePoint(price, prevEMA, multiplier float64) float64 {
	return (price-prevEMA)*multiplier + prevEMA
}
