package backtest

import (
	"math"
	"time"

	"TradeCore/internal/models"
)

// profitFactorNoLosses stands in for an infinite profit factor.
const profitFactorNoLosses = 999

func calculateResults(cfg Config, finalEquity float64, trades []Trade, curve []models.EquityPoint) Metrics {
	m := Metrics{
		FinalEquity:    finalEquity,
		MaxDrawdownPct: maxDrawdownPct(cfg.InitialBalance, curve),
		SharpeRatio:    sharpeRatio(curve, periodsPerYear(cfg.TimeFrame)),
	}
	if cfg.InitialBalance > 0 {
		m.TotalReturnPct = (finalEquity - cfg.InitialBalance) / cfg.InitialBalance * 100
	}
	if len(trades) == 0 {
		return m
	}

	var winningPnL, losingPnL float64
	var held time.Duration
	for _, trade := range trades {
		if trade.PnL > 0 {
			m.WinningTrades++
			winningPnL += trade.PnL
		} else {
			m.LosingTrades++
			losingPnL += math.Abs(trade.PnL)
		}
		m.TotalPnl += trade.PnL
		m.FeesPaid += trade.Fees
		held += trade.Duration()
	}

	m.TotalTrades = len(trades)
	m.WinRate = 100 * float64(m.WinningTrades) / float64(m.TotalTrades)
	m.AvgTradeDurationHours = held.Hours() / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = winningPnL / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = losingPnL / float64(m.LosingTrades)
	}
	switch {
	case losingPnL > 0:
		m.ProfitFactor = winningPnL / losingPnL
	case winningPnL > 0:
		m.ProfitFactor = profitFactorNoLosses
	}
	return m
}

func maxDrawdownPct(initial float64, curve []models.EquityPoint) float64 {
	maxDrawdown := 0.0
	peak := initial
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - point.Equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown * 100
}

func periodsPerYear(timeFrame string) float64 {
	step, err := models.TimeFrameDuration(timeFrame)
	if err != nil || step <= 0 {
		return 365
	}
	return float64(365*24*time.Hour) / float64(step)
}

// sharpeRatio annualizes the per-candle returns of the equity curve.
func sharpeRatio(curve []models.EquityPoint, periods float64) float64 {
	if len(curve) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	avgReturn := 0.0
	for _, r := range returns {
		avgReturn += r
	}
	avgReturn /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-avgReturn, 2)
	}
	variance /= float64(len(returns) - 1) // Use n-1 for sample variance
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}
	return avgReturn * periods / (stdDev * math.Sqrt(periods))
}
