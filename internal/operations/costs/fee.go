package costs

import "TradeCore/internal/models"

// FeeConfig holds maker and taker fees in percent of notional.
type FeeConfig struct {
	MakerPct float64
	TakerPct float64
}

// Fee returns notional * pct / 100 for the schedule matching orderType.
func Fee(notional float64, orderType models.OrderType, cfg FeeConfig) float64 {
	pct := cfg.TakerPct
	if orderType == models.OrderTypeMaker {
		pct = cfg.MakerPct
	}
	return notional * pct / 100
}
