package dca

import (
	"fmt"

	"TradeCore/internal/models"
)

// SizingPolicy decides how much a DCA rung buys (or sells).
type SizingPolicy interface {
	Quantity(pos *models.Position, level models.DCALevel) float64
}

// WeightedSizing scales the entry quantity by 1 + (level-1)*Step, so with
// the default step of 0.5 rungs weigh 1x, 1.5x, 2x and so on.
type WeightedSizing struct {
	Step float64
}

func (w WeightedSizing) Quantity(pos *models.Position, level models.DCALevel) float64 {
	if level.Level < 1 {
		return 0
	}
	return pos.EntryQty * (1 + float64(level.Level-1)*w.Step)
}

// DistributionSizing spends Percentages[level-1] percent of BudgetUsd at the
// rung's target price.
type DistributionSizing struct {
	BudgetUsd   float64
	Percentages []float64
}

func NewDistributionSizing(budgetUsd float64, percentages []float64) (DistributionSizing, error) {
	var total float64
	for _, p := range percentages {
		if p < 0 {
			return DistributionSizing{}, fmt.Errorf("negative distribution %v: %w", p, models.ErrInvalidConfig)
		}
		total += p
	}
	if total > 100+1e-9 {
		return DistributionSizing{}, fmt.Errorf("distribution sums to %.2f%%: %w", total, models.ErrInvalidConfig)
	}
	return DistributionSizing{BudgetUsd: budgetUsd, Percentages: percentages}, nil
}

func (d DistributionSizing) Quantity(_ *models.Position, level models.DCALevel) float64 {
	if level.Level < 1 || level.Level > len(d.Percentages) || level.TargetPrice <= 0 {
		return 0
	}
	return d.BudgetUsd * d.Percentages[level.Level-1] / 100 / level.TargetPrice
}
