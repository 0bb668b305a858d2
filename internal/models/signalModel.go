package models

// Signal is an entry decision produced by a strategy.
type Signal struct {
	Side            Side
	PriceAtSignal   float64
	Confidence      float64
	StopLossPrice   float64
	TakeProfitPrice float64
	Reason          string
}

// SignalContext is everything a strategy sees when asked for a signal.
type SignalContext struct {
	Symbol           string
	TimeFrame        string
	Prices           []Price
	Indicators       map[string]float64
	OpenPositions    int
	ExposureUsd      float64
	AvailableBalance float64
	Equity           float64
	DrawdownPct      float64
}
