package backtest

import (
	"context"
	"fmt"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/autoclose"
	"TradeCore/internal/operations/costs"
	"TradeCore/internal/operations/dca"
	"TradeCore/internal/operations/position"
)

type Status string

const (
	StatusInitializing Status = "initializing"
	StatusLoading      Status = "loading"
	StatusRunning      Status = "running"
	StatusClosing      Status = "closing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// CandleSource returns candles sorted ascending by open time.
type CandleSource interface {
	GetHistoricalCandles(ctx context.Context, exchange, symbol, timeFrame string, start, end time.Time) ([]models.Price, error)
}

// SignalSource returns nil when there is nothing to do.
type SignalSource interface {
	GenerateSignal(ctx context.Context, sc models.SignalContext) (*models.Signal, error)
}

type IndicatorProvider interface {
	Compute(prices []models.Price) (map[string]float64, error)
}

type Progress struct {
	Current int
	Total   int
	Message string
}

type ProgressFunc func(Progress)

// Trade is a closed position as reported by a run.
type Trade struct {
	PositionID    string
	Symbol        string
	Side          models.Side
	Leverage      float64
	EntryTime     time.Time
	ExitTime      time.Time
	EntryQty      float64
	AvgEntryPrice float64
	ExitPrice     float64
	PnL           float64
	Fees          float64
	DCAFills      int
	TPFills       int
	ExitReason    models.ExitReason
	Position      *models.Position `json:"-"`
}

func (t Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

type Metrics struct {
	TotalPnl              float64
	TotalReturnPct        float64
	MaxDrawdownPct        float64
	WinRate               float64
	ProfitFactor          float64
	AverageWin            float64
	AverageLoss           float64
	AvgTradeDurationHours float64
	SharpeRatio           float64
	TotalTrades           int
	WinningTrades         int
	LosingTrades          int
	FinalEquity           float64
	FeesPaid              float64
}

type Metadata struct {
	CandlesProcessed int
	SignalsGenerated int
	ExecutionTimeMs  int64
	StartedAt        time.Time
	FinishedAt       time.Time
}

// BacktestResults is returned for every run, failed ones included. A failed
// run keeps the equity curve recorded up to the failure.
type BacktestResults struct {
	RunID       string
	Symbol      string
	TimeFrame   string
	Status      Status
	Error       string
	Trades      []Trade
	EquityCurve []models.EquityPoint
	Metrics     Metrics
	Metadata    Metadata
	Config      Config `json:"-"`
}

const (
	InitialBalance = 10000.0
	Leverage       = 1
	RiskPerTrade   = 0.02
	WarmupCandles  = 50
	MaxRange       = 365 * 24 * time.Hour
)

// Config drives a single run over one symbol and timeframe.
type Config struct {
	RunID     string
	Exchange  string
	Symbol    string
	TimeFrame string
	StartTime time.Time
	EndTime   time.Time

	InitialBalance float64
	WarmupCandles  int
	MaxRange       time.Duration
	// AllowPyramiding lets a new signal open a second position on a symbol
	// that already has one.
	AllowPyramiding bool
	KillSwitch      bool

	Position  position.Settings
	Costs     costs.Model
	DCASizing dca.SizingPolicy
	AutoClose autoclose.Config

	Progress      ProgressFunc
	ProgressEvery int
}

// NewConfig creates default config
func NewConfig() Config {
	return Config{
		Exchange:       "binance",
		TimeFrame:      models.PriceTimeFrame1h,
		InitialBalance: InitialBalance,
		WarmupCandles:  WarmupCandles,
		MaxRange:       MaxRange,
		Position: position.Settings{
			Leverage:     Leverage,
			RiskPerTrade: RiskPerTrade,
		},
		Costs: costs.Model{
			Fees:           costs.FeeConfig{MakerPct: 0.02, TakerPct: 0.05},
			MaxSlippagePct: 0.05,
			OrderType:      models.OrderTypeTaker,
		},
		DCASizing: dca.WeightedSizing{Step: 0.5},
		AutoClose: autoclose.Config{
			LiquidationMarginPct: autoclose.DefaultLiquidationMarginPct,
			WarnRatio:            autoclose.DefaultWarnRatio,
		},
	}
}

// Validate checks the parts of the config that do not need market data.
// Time range checks happen while loading.
func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required: %w", models.ErrInvalidConfig)
	}
	if _, err := models.TimeFrameDuration(c.TimeFrame); err != nil {
		return err
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("initial balance %.2f must be positive: %w", c.InitialBalance, models.ErrInvalidConfig)
	}
	if c.WarmupCandles < 0 {
		return fmt.Errorf("warm-up %d must not be negative: %w", c.WarmupCandles, models.ErrInvalidConfig)
	}
	if c.Position.Leverage < 0 {
		return fmt.Errorf("leverage %.2f must not be negative: %w", c.Position.Leverage, models.ErrInvalidConfig)
	}
	if c.Costs.MaxSlippagePct < 0 || c.Costs.Fees.MakerPct < 0 || c.Costs.Fees.TakerPct < 0 {
		return fmt.Errorf("fees and slippage must not be negative: %w", models.ErrInvalidConfig)
	}
	var ladder float64
	for _, rung := range c.Position.TPLadder {
		if rung.Percentage <= 0 || rung.OffsetPct <= 0 {
			return fmt.Errorf("tp rung %+v must have positive offset and percentage: %w", rung, models.ErrInvalidConfig)
		}
		ladder += rung.Percentage
	}
	if ladder > 100+1e-9 {
		return fmt.Errorf("tp ladder closes %.2f%%: %w", ladder, models.ErrInvalidConfig)
	}
	return nil
}
