package models

type LevelStatus string

const (
	LevelPending   LevelStatus = "pending"
	LevelFilled    LevelStatus = "filled"
	LevelCancelled LevelStatus = "cancelled"
)

// DCALevel is one averaging rung. Quantity overrides the sizing policy when set.
type DCALevel struct {
	Level       int
	TargetPrice float64
	Quantity    float64
	Status      LevelStatus
	OrderID     string
}

// TPLevel is one profit-taking rung closing Percentage of the open quantity.
type TPLevel struct {
	Level      int
	Price      float64
	Percentage float64
	Status     LevelStatus
	OrderID    string
}

type TrailingStop struct {
	Enabled          bool
	ActivationPrice  float64
	DistancePct      float64
	CurrentStopPrice float64
	// ExtremePrice is the best price seen since activation: the high for
	// buys, the low for sells.
	ExtremePrice float64
	Activated    bool
}

type BreakEven struct {
	Enabled      bool
	TriggerPrice float64
	Activated    bool
}

type PartialTakeProfit struct {
	Levels []TPLevel
}

type RiskState struct {
	StopLossPrice   float64
	TakeProfitPrice float64
	Trailing        *TrailingStop
	BreakEven       *BreakEven
	PartialTP       *PartialTakeProfit
}

func (r RiskState) clone() RiskState {
	out := r
	if r.Trailing != nil {
		t := *r.Trailing
		out.Trailing = &t
	}
	if r.BreakEven != nil {
		b := *r.BreakEven
		out.BreakEven = &b
	}
	if r.PartialTP != nil {
		out.PartialTP = &PartialTakeProfit{Levels: append([]TPLevel(nil), r.PartialTP.Levels...)}
	}
	return out
}

// TPLevels returns the configured profit-taking ladder, or nil.
func (r RiskState) TPLevels() []TPLevel {
	if r.PartialTP == nil {
		return nil
	}
	return r.PartialTP.Levels
}
