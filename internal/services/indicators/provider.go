package indicators

import (
	"fmt"

	"TradeCore/internal/models"
)

// Keys of the map returned by Provider.Compute. A key is absent when the
// history is too short for its indicator.
const (
	KeyClose       = "close"
	KeyEMAFast     = "ema_fast"
	KeyEMASlow     = "ema_slow"
	KeyEMAFastPrev = "ema_fast_prev"
	KeyEMASlowPrev = "ema_slow_prev"
	KeyRSI         = "rsi"
	KeyMACD        = "macd"
	KeyMACDSignal  = "macd_signal"
	KeyMACDHist    = "macd_hist"
	KeyBBUpper     = "bb_upper"
	KeyBBMiddle    = "bb_middle"
	KeyBBLower     = "bb_lower"
	KeyBBWidth     = "bb_width"
	KeyVolumeRatio = "volume_ratio"
	// KeyPattern is Pattern.Score of the latest formation, 0 when none.
	KeyPattern = "pattern"
)

type Periods struct {
	EMAFast      int
	EMASlow      int
	RSI          int
	MACDFast     int
	MACDSlow     int
	MACDSignal   int
	BBands       int
	BBDeviations float64
	Volume       int
}

func DefaultPeriods() Periods {
	return Periods{
		EMAFast:      9,
		EMASlow:      21,
		RSI:          14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		BBands:       20,
		BBDeviations: 2,
		Volume:       20,
	}
}

// Provider computes the latest indicator values over a candle history.
type Provider struct {
	periods Periods
	ema     *EMAService
	rsi     *RSIService
	macd    *MACDService
	bbands  *BBandsService
	pattern *PatternService
}

func NewProvider(periods Periods) (*Provider, error) {
	if periods.EMAFast <= 0 || periods.EMASlow <= periods.EMAFast {
		return nil, fmt.Errorf("ema periods %d/%d: %w", periods.EMAFast, periods.EMASlow, models.ErrInvalidConfig)
	}
	if periods.RSI <= 0 || periods.BBands <= 0 || periods.Volume <= 0 {
		return nil, fmt.Errorf("indicator periods must be positive: %w", models.ErrInvalidConfig)
	}
	if periods.MACDFast <= 0 || periods.MACDSlow <= periods.MACDFast || periods.MACDSignal <= 0 {
		return nil, fmt.Errorf("macd periods %d/%d/%d: %w", periods.MACDFast, periods.MACDSlow, periods.MACDSignal, models.ErrInvalidConfig)
	}
	return &Provider{
		periods: periods,
		ema:     NewEMAService(),
		rsi:     NewRSIService(),
		macd:    NewMACDService(),
		bbands:  NewBBandsService(),
		pattern: NewPatternService(),
	}, nil
}

// MinHistory is the number of candles needed before every key is present.
func (p *Provider) MinHistory() int {
	n := p.periods.EMASlow + 1
	for _, m := range []int{p.periods.RSI + 1, p.macd.MinLength(p.periods.MACDSlow, p.periods.MACDSignal), p.periods.BBands, p.periods.Volume} {
		if m > n {
			n = m
		}
	}
	return n
}

func (p *Provider) Compute(prices []models.Price) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(prices) == 0 {
		return out, nil
	}
	closes := make([]float64, len(prices))
	for i, c := range prices {
		closes[i] = c.Close
	}
	last := len(closes) - 1
	out[KeyClose] = closes[last]

	if len(closes) > p.periods.EMASlow {
		fast := p.ema.Calculate(closes, p.periods.EMAFast)
		slow := p.ema.Calculate(closes, p.periods.EMASlow)
		out[KeyEMAFast] = fast[last]
		out[KeyEMASlow] = slow[last]
		out[KeyEMAFastPrev] = fast[last-1]
		out[KeyEMASlowPrev] = slow[last-1]
	}

	if rsi := p.rsi.Calculate(closes, p.periods.RSI); rsi != nil {
		out[KeyRSI] = rsi[last]
	}

	if series, ok := p.macd.Calculate(closes, p.periods.MACDFast, p.periods.MACDSlow, p.periods.MACDSignal); ok {
		point := series.Last()
		out[KeyMACD] = point.MACD
		out[KeyMACDSignal] = point.Signal
		out[KeyMACDHist] = point.Histogram
	}

	if bands, ok := p.bbands.CalculateOne(closes, p.periods.BBands, p.periods.BBDeviations); ok {
		out[KeyBBUpper] = bands.Upper
		out[KeyBBMiddle] = bands.Middle
		out[KeyBBLower] = bands.Lower
		out[KeyBBWidth] = bands.Width
	}

	if len(prices) >= p.periods.Volume {
		sum := 0.0
		for _, c := range prices[len(prices)-p.periods.Volume:] {
			sum += c.Volume
		}
		if avg := sum / float64(p.periods.Volume); avg > 0 {
			out[KeyVolumeRatio] = prices[last].Volume / avg
		}
	}
	if len(prices) >= 3 {
		out[KeyPattern] = 0
		if pat, ok := p.pattern.Detect(prices); ok {
			out[KeyPattern] = pat.Score()
		}
	}
	return out, nil
}
