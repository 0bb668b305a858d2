package indicators

type MACDService struct {
	ema *EMAService
}

// MACDPoint is one fully defined MACD reading.
type MACDPoint struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACDSeries holds readings from the first candle where the signal line is
// defined through the last candle. Points[len-1] lines up with the last price.
type MACDSeries struct {
	Points []MACDPoint
}

func (s MACDSeries) Last() MACDPoint {
	return s.Points[len(s.Points)-1]
}

func NewMACDService() *MACDService {
	return &MACDService{ema: NewEMAService()}
}

// MinLength is the number of prices before the first full reading.
func (s *MACDService) MinLength(slowPeriod, signalPeriod int) int {
	return slowPeriod + signalPeriod - 1
}

// Calculate streams the fast and slow EMAs once over prices. The signal line
// is seeded with the SMA of the first signalPeriod MACD values. Returns
// false when the periods are invalid or the series is too short.
func (s *MACDService) Calculate(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (MACDSeries, bool) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 {
		return MACDSeries{}, false
	}
	if len(prices) < s.MinLength(slowPeriod, signalPeriod) {
		return MACDSeries{}, false
	}

	fast := s.ema.Calculate(prices, fastPeriod)
	slow := s.ema.Calculate(prices, slowPeriod)

	start := slowPeriod - 1
	line := make([]float64, 0, len(prices)-start)
	for i := start; i < len(prices); i++ {
		line = append(line, fast[i]-slow[i])
	}

	var seed float64
	for _, v := range line[:signalPeriod] {
		seed += v
	}
	signal := seed / float64(signalPeriod)

	points := make([]MACDPoint, 0, len(line)-signalPeriod+1)
	points = append(points, MACDPoint{MACD: line[signalPeriod-1], Signal: signal, Histogram: line[signalPeriod-1] - signal})
	for _, v := range line[signalPeriod:] {
		signal = s.ema.CalculateOne(v, signal, signalPeriod)
		points = append(points, MACDPoint{MACD: v, Signal: signal, Histogram: v - signal})
	}
	return MACDSeries{Points: points}, true
}
