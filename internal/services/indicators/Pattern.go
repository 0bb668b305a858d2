package indicators

import (
	"math"

	"TradeCore/internal/models"
)

type PatternType string

const (
	PatternHigherLows       PatternType = "higher_lows"
	PatternLowerHighs       PatternType = "lower_highs"
	PatternBullishEngulfing PatternType = "bullish_engulfing"
	PatternBearishEngulfing PatternType = "bearish_engulfing"
	PatternBullishPinbar    PatternType = "bullish_pinbar"
	PatternBearishPinbar    PatternType = "bearish_pinbar"
)

// Pattern is a candlestick formation on the latest candles. Direction is 1
// for bullish and -1 for bearish; Strength is in [0, 1].
type Pattern struct {
	Type      PatternType
	Direction int
	Strength  float64
}

// Score folds direction and strength into one value in [-1, 1].
func (p Pattern) Score() float64 {
	return float64(p.Direction) * p.Strength
}

type PatternService struct {
	// minRange is the smallest candle range, as a fraction of its close,
	// that can form a pattern.
	minRange float64
}

func NewPatternService() *PatternService {
	return &PatternService{minRange: 0.0005}
}

// Detect checks three-bar, then two-bar, then single-bar formations on the
// last three candles.
func (s *PatternService) Detect(candles []models.Price) (Pattern, bool) {
	if len(candles) < 3 {
		return Pattern{}, false
	}
	c2 := candles[len(candles)-3]
	c1 := candles[len(candles)-2]
	c0 := candles[len(candles)-1]

	if p, ok := s.threeBar(c2, c1, c0); ok {
		return p, true
	}
	if p, ok := s.engulfing(c1, c0); ok {
		return p, true
	}
	return s.pinbar(c0)
}

func (s *PatternService) threeBar(c2, c1, c0 models.Price) (Pattern, bool) {
	if c0.Low > c1.Low && c1.Low > c2.Low && c2.Low > 0 {
		return Pattern{
			Type:      PatternHigherLows,
			Direction: 1,
			Strength:  math.Min((c0.Low-c2.Low)/c2.Low*10, 1),
		}, true
	}
	if c0.High < c1.High && c1.High < c2.High && c2.High > 0 {
		return Pattern{
			Type:      PatternLowerHighs,
			Direction: -1,
			Strength:  math.Min((c2.High-c0.High)/c2.High*10, 1),
		}, true
	}
	return Pattern{}, false
}

func (s *PatternService) engulfing(prev, curr models.Price) (Pattern, bool) {
	prevBody := math.Abs(prev.Close - prev.Open)
	currBody := math.Abs(curr.Close - curr.Open)
	if currBody < curr.Close*s.minRange || currBody <= prevBody {
		return Pattern{}, false
	}
	strength := 1.0
	if currBody > 0 {
		strength = math.Min((currBody-prevBody)/currBody*2, 1)
	}

	if prev.Close < prev.Open && curr.Open <= prev.Close && curr.Close > prev.Open {
		return Pattern{Type: PatternBullishEngulfing, Direction: 1, Strength: strength}, true
	}
	if prev.Close > prev.Open && curr.Open >= prev.Close && curr.Close < prev.Open {
		return Pattern{Type: PatternBearishEngulfing, Direction: -1, Strength: strength}, true
	}
	return Pattern{}, false
}

func (s *PatternService) pinbar(c models.Price) (Pattern, bool) {
	total := c.High - c.Low
	if total <= 0 || total < c.Close*s.minRange {
		return Pattern{}, false
	}
	body := math.Abs(c.Close - c.Open)
	upper := c.High - math.Max(c.Open, c.Close)
	lower := math.Min(c.Open, c.Close) - c.Low

	if body >= total*0.3 {
		return Pattern{}, false
	}
	if lower > total*0.6 {
		return Pattern{Type: PatternBullishPinbar, Direction: 1, Strength: lower / total}, true
	}
	if upper > total*0.6 {
		return Pattern{Type: PatternBearishPinbar, Direction: -1, Strength: upper / total}, true
	}
	return Pattern{}, false
}
