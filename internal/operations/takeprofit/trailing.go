package takeprofit

import "TradeCore/internal/models"

// UpdateTrailing ratchets the trailing stop toward price. Before activation
// nothing moves; after it the stop follows the best price seen at
// DistancePct and is never moved back. It returns the updated clone and
// whether anything changed.
func UpdateTrailing(pos *models.Position, currentPrice float64) (*models.Position, bool) {
	tr := pos.Risk.Trailing
	if tr == nil || !tr.Enabled || !pos.IsOpen() {
		return pos, false
	}

	buy := pos.Side != models.SideSell
	if !tr.Activated {
		reached := currentPrice >= tr.ActivationPrice
		if !buy {
			reached = tr.ActivationPrice <= 0 || currentPrice <= tr.ActivationPrice
		}
		if !reached {
			return pos, false
		}
	}

	next := pos.Clone()
	t := next.Risk.Trailing
	changed := false
	if !t.Activated {
		t.Activated = true
		t.ExtremePrice = currentPrice
		changed = true
	}

	if buy {
		if currentPrice > t.ExtremePrice {
			t.ExtremePrice = currentPrice
			changed = true
		}
		candidate := t.ExtremePrice * (1 - t.DistancePct/100)
		if candidate > t.CurrentStopPrice {
			t.CurrentStopPrice = candidate
			changed = true
		}
	} else {
		if currentPrice < t.ExtremePrice {
			t.ExtremePrice = currentPrice
			changed = true
		}
		candidate := t.ExtremePrice * (1 + t.DistancePct/100)
		if t.CurrentStopPrice == 0 || candidate < t.CurrentStopPrice {
			t.CurrentStopPrice = candidate
			changed = true
		}
	}

	if !changed {
		return pos, false
	}
	return next, true
}
