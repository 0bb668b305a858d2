package indicators

import "math"

type RSIService struct{}

func NewRSIService() *RSIService {
	return &RSIService{}
}

// Calculate returns Wilder's RSI for every price. Values before index
// period are zero. A window without losses reads 100.
func (s *RSIService) Calculate(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}

	rsi := make([]float64, len(prices))
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(prices[i] - prices[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	rsi[period] = s.value(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		gain, loss := split(prices[i] - prices[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi[i] = s.value(avgGain, avgLoss)
	}
	return rsi
}

// Strength maps RSI to 0-1 by distance from the neutral 50.
func (s *RSIService) Strength(rsi float64) float64 {
	return math.Abs(rsi-50) / 50
}

func (s *RSIService) value(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}
