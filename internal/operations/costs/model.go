package costs

import (
	"TradeCore/internal/models"

	"github.com/shopspring/decimal"
)

// Model bundles the fee schedule and slippage bound applied to every
// simulated fill.
type Model struct {
	Fees           FeeConfig
	MaxSlippagePct float64
	OrderType      models.OrderType
}

// Fill is a theoretical price turned into an executable one.
type Fill struct {
	Price    float64
	Quantity float64
	Notional float64
	Fee      float64
}

// Fill applies slippage for (tick time, symbol, role) and charges the fee.
func (m Model) Fill(tick models.Tick, side models.Side, qty float64, role string) Fill {
	price := ApplySlippage(tick.Price, side, tick.UnixMilli(), tick.Symbol, role, m.MaxSlippagePct)
	notional := price * qty
	orderType := m.OrderType
	if orderType == "" {
		orderType = models.OrderTypeTaker
	}
	return Fill{
		Price:    price,
		Quantity: qty,
		Notional: notional,
		Fee:      Fee(notional, orderType, m.Fees),
	}
}

// RoundQuantity floors qty to a multiple of step. A zero step leaves qty as is.
func RoundQuantity(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(qty).Div(s).Floor().Mul(s).InexactFloat64()
}

// RoundPrice rounds price to the nearest multiple of tick.
func RoundPrice(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).InexactFloat64()
}

// FormatQuantity renders qty the way exchange order endpoints expect.
func FormatQuantity(qty, step float64) string {
	return decimal.NewFromFloat(RoundQuantity(qty, step)).String()
}
