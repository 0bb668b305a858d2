package config

import (
	"fmt"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/autoclose"
	"TradeCore/internal/operations/backtest"
	"TradeCore/internal/operations/costs"
	"TradeCore/internal/operations/dca"
	"TradeCore/internal/operations/position"
	"TradeCore/internal/services/trading"
)

func (c *Config) PositionSettings() position.Settings {
	b := c.Backtest
	ladder := make([]position.TPRung, 0, len(b.TPLadder))
	for _, r := range b.TPLadder {
		ladder = append(ladder, position.TPRung{OffsetPct: r.OffsetPct, Percentage: r.Percentage})
	}
	return position.Settings{
		Exchange:              c.Exchange.Name,
		MarketType:            models.MarketFutures,
		Leverage:              b.Leverage,
		PositionSizeUsd:       b.PositionSizeUsd,
		RiskPerTrade:          b.RiskPerTrade,
		LotStep:               b.LotStep,
		TickSize:              b.TickSize,
		DCALevels:             b.DCALevels,
		DCAStepPct:            b.DCAStepPct,
		TPLadder:              ladder,
		StopLossPct:           b.StopLossPct,
		TrailingActivationPct: b.TrailingActivationPct,
		TrailingDistancePct:   b.TrailingDistancePct,
		BreakEvenTriggerPct:   b.BreakEvenTriggerPct,
	}
}

func (c *Config) CostModel() costs.Model {
	return costs.Model{
		Fees:           costs.FeeConfig{MakerPct: c.Costs.MakerFeePct, TakerPct: c.Costs.TakerFeePct},
		MaxSlippagePct: c.Costs.MaxSlippagePct,
		OrderType:      models.OrderType(c.Costs.OrderType),
	}
}

func (c *Config) DCASizing() (dca.SizingPolicy, error) {
	b := c.Backtest
	switch b.DCASizing {
	case "", "weighted":
		return dca.WeightedSizing{Step: b.DCAWeightStep}, nil
	case "distribution":
		budget := b.DCABudgetUsd
		if budget <= 0 {
			budget = b.InitialBalance
		}
		return dca.NewDistributionSizing(budget, b.DCADistribution)
	default:
		return nil, fmt.Errorf("dca sizing %q: %w", b.DCASizing, models.ErrInvalidConfig)
	}
}

func (c *Config) AutoCloseConfig() autoclose.Config {
	return autoclose.Config{
		MaxDrawdownPct:       c.Risk.MaxDrawdownPct,
		DailyLossLimitUsd:    c.Risk.DailyLossLimitUsd,
		DailyLossLimitPct:    c.Risk.DailyLossLimitPct,
		LiquidationMarginPct: c.Risk.LiquidationMarginPct,
	}
}

// BacktestConfigs returns one run per configured symbol.
func (c *Config) BacktestConfigs() ([]backtest.Config, error) {
	sizing, err := c.DCASizing()
	if err != nil {
		return nil, err
	}
	cfgs := make([]backtest.Config, 0, len(c.Symbols))
	for _, symbol := range c.Symbols {
		cfg := backtest.NewConfig()
		cfg.Exchange = c.Exchange.Name
		cfg.Symbol = symbol
		cfg.TimeFrame = c.Backtest.TimeFrame
		cfg.StartTime = c.Backtest.StartTime
		cfg.EndTime = c.Backtest.EndTime
		cfg.InitialBalance = c.Backtest.InitialBalance
		cfg.WarmupCandles = c.Backtest.WarmupCandles
		cfg.MaxRange = c.Backtest.MaxRange.Duration
		cfg.AllowPyramiding = c.Backtest.AllowPyramiding
		cfg.KillSwitch = c.Risk.KillSwitch
		cfg.Position = c.PositionSettings()
		cfg.Costs = c.CostModel()
		cfg.DCASizing = sizing
		cfg.AutoClose = c.AutoCloseConfig()
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func (c *Config) TradingMonitorConfig(sessionID string) (trading.MonitorConfig, error) {
	sizing, err := c.DCASizing()
	if err != nil {
		return trading.MonitorConfig{}, err
	}
	return trading.MonitorConfig{
		SessionID:       sessionID,
		InitialBalance:  c.Backtest.InitialBalance,
		KillSwitch:      c.Risk.KillSwitch,
		AllowPyramiding: c.Backtest.AllowPyramiding,
		Position:        c.PositionSettings(),
		Costs:           c.CostModel(),
		DCASizing:       sizing,
		AutoClose:       c.AutoCloseConfig(),
	}, nil
}

func (c *Config) PaperTraderConfig() trading.PaperTraderConfig {
	return trading.PaperTraderConfig{
		Exchange:  c.Exchange.Name,
		Symbols:   c.Symbols,
		TimeFrame: c.Backtest.TimeFrame,
		Lookback:  c.Monitor.Lookback,
		Interval:  c.Monitor.Interval.Duration,
	}
}
