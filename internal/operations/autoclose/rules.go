package autoclose

import (
	"fmt"
	"math"
	"time"

	"TradeCore/internal/models"
)

const (
	DefaultLiquidationMarginPct = 2
	DefaultWarnRatio            = 0.8
)

// Snapshot is the market and account state one evaluation runs against.
type Snapshot struct {
	Time               time.Time
	Price              float64
	KillSwitch         bool
	CurrentDrawdownPct float64
	DailyPnlUsd        float64
	CapitalUsd         float64
	// LiquidationPrice overrides the position's own estimate when set.
	LiquidationPrice float64
}

type Config struct {
	MaxDrawdownPct       float64
	DailyLossLimitUsd    float64
	DailyLossLimitPct    float64
	LiquidationMarginPct float64
	WarnRatio            float64
}

func (c Config) withDefaults() Config {
	if c.LiquidationMarginPct <= 0 {
		c.LiquidationMarginPct = DefaultLiquidationMarginPct
	}
	if c.WarnRatio <= 0 || c.WarnRatio >= 1 {
		c.WarnRatio = DefaultWarnRatio
	}
	return c
}

// Decision is the outcome of one rule. A warning never closes.
type Decision struct {
	Rule        string
	ShouldClose bool
	Warning     bool
	Reason      models.ExitReason
	Priority    int
	Message     string
}

// Rule is one independent auto-close check. Check returns nil when the rule
// has nothing to say.
type Rule interface {
	Name() string
	Priority() int
	Check(pos *models.Position, snap Snapshot) *Decision
}

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules(cfg Config) []Rule {
	cfg = cfg.withDefaults()
	return []Rule{
		KillSwitchRule{},
		LiquidationRule{MarginPct: cfg.LiquidationMarginPct},
		DrawdownRule{MaxPct: cfg.MaxDrawdownPct, WarnRatio: cfg.WarnRatio},
		DailyLossRule{LimitUsd: cfg.DailyLossLimitUsd, LimitPct: cfg.DailyLossLimitPct, WarnRatio: cfg.WarnRatio},
	}
}

type KillSwitchRule struct{}

func (KillSwitchRule) Name() string  { return "kill_switch" }
func (KillSwitchRule) Priority() int { return 10 }

func (r KillSwitchRule) Check(_ *models.Position, snap Snapshot) *Decision {
	if !snap.KillSwitch {
		return nil
	}
	return &Decision{
		Rule:        r.Name(),
		ShouldClose: true,
		Reason:      models.ExitKillSwitch,
		Priority:    r.Priority(),
		Message:     "kill switch engaged",
	}
}

// LiquidationRule closes futures positions whose mark price is within
// MarginPct of the liquidation price and warns at twice that distance.
type LiquidationRule struct {
	MarginPct float64
}

func (LiquidationRule) Name() string  { return "liquidation" }
func (LiquidationRule) Priority() int { return 10 }

func (r LiquidationRule) Check(pos *models.Position, snap Snapshot) *Decision {
	if pos.MarketType != models.MarketFutures || snap.Price <= 0 {
		return nil
	}
	liq := snap.LiquidationPrice
	if liq <= 0 {
		liq = pos.LiquidationPrice
	}
	if liq <= 0 {
		return nil
	}
	// positive while price is still on the safe side of liq
	distancePct := (snap.Price - liq) / snap.Price * 100 * pos.Side.Sign()
	d := &Decision{Rule: r.Name(), Reason: models.ExitLiquidation, Priority: r.Priority()}
	switch {
	case distancePct <= r.MarginPct:
		d.ShouldClose = true
		d.Message = fmt.Sprintf("price %.8f within %.2f%% of liquidation %.8f", snap.Price, math.Max(distancePct, 0), liq)
	case distancePct <= 2*r.MarginPct:
		d.Warning = true
		d.Message = fmt.Sprintf("price %.8f approaching liquidation %.8f (%.2f%%)", snap.Price, liq, distancePct)
	default:
		return nil
	}
	return d
}

type DrawdownRule struct {
	MaxPct    float64
	WarnRatio float64
}

func (DrawdownRule) Name() string  { return "drawdown" }
func (DrawdownRule) Priority() int { return 9 }

func (r DrawdownRule) Check(_ *models.Position, snap Snapshot) *Decision {
	if r.MaxPct <= 0 {
		return nil
	}
	d := &Decision{Rule: r.Name(), Reason: models.ExitDrawdown, Priority: r.Priority()}
	switch {
	case snap.CurrentDrawdownPct >= r.MaxPct:
		d.ShouldClose = true
		d.Message = fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%", snap.CurrentDrawdownPct, r.MaxPct)
	case r.WarnRatio > 0 && snap.CurrentDrawdownPct >= r.MaxPct*r.WarnRatio:
		d.Warning = true
		d.Message = fmt.Sprintf("drawdown %.2f%% near limit %.2f%%", snap.CurrentDrawdownPct, r.MaxPct)
	default:
		return nil
	}
	return d
}

// DailyLossRule closes when the day's realized plus unrealized loss breaches
// either the absolute cap or the percentage-of-capital cap.
type DailyLossRule struct {
	LimitUsd  float64
	LimitPct  float64
	WarnRatio float64
}

func (DailyLossRule) Name() string  { return "daily_loss" }
func (DailyLossRule) Priority() int { return 8 }

func (r DailyLossRule) Check(_ *models.Position, snap Snapshot) *Decision {
	limit := r.limit(snap.CapitalUsd)
	if limit <= 0 {
		return nil
	}
	loss := -snap.DailyPnlUsd
	d := &Decision{Rule: r.Name(), Reason: models.ExitDailyLoss, Priority: r.Priority()}
	switch {
	case loss >= limit:
		d.ShouldClose = true
		d.Message = fmt.Sprintf("daily loss %.2f reached limit %.2f", loss, limit)
	case r.WarnRatio > 0 && loss >= limit*r.WarnRatio:
		d.Warning = true
		d.Message = fmt.Sprintf("daily loss %.2f near limit %.2f", loss, limit)
	default:
		return nil
	}
	return d
}

// limit is the tighter of the two caps that are configured.
func (r DailyLossRule) limit(capital float64) float64 {
	limit := r.LimitUsd
	if r.LimitPct > 0 && capital > 0 {
		pctLimit := capital * r.LimitPct / 100
		if limit <= 0 || pctLimit < limit {
			limit = pctLimit
		}
	}
	return limit
}
