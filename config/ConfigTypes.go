package config

import (
	"fmt"
	"time"
)

// Config is the root configuration. Values come from Defaults, then the
// optional TOML file, then the environment.
type Config struct {
	Mode     string   `toml:"mode"`
	LogLevel string   `toml:"log_level"`
	Symbols  []string `toml:"symbols"`

	Exchange ExchangeConfig `toml:"exchange"`
	Database DatabaseConfig `toml:"database"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Backtest BacktestConfig `toml:"backtest"`
	Costs    CostsConfig    `toml:"costs"`
	Risk     RiskConfig     `toml:"risk"`
	Monitor  MonitorConfig  `toml:"monitor"`
}

type ExchangeConfig struct {
	Name      string `toml:"name"`
	APIKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
	// Live sends orders to the exchange. Otherwise orders go to the paper gateway.
	Live bool `toml:"live"`
}

// DatabaseConfig enables postgres persistence when Host is set.
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
}

func (d DatabaseConfig) Enabled() bool { return d.Host != "" }

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode)
}

// SQLiteConfig is the local candle cache. An empty Path disables it.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig enables distributed position locks when Addr is set.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	LockTTL  duration `toml:"lock_ttl"`
}

// S3Config enables report archiving when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

type TPRung struct {
	OffsetPct  float64 `toml:"offset_pct"`
	Percentage float64 `toml:"percentage"`
}

type BacktestConfig struct {
	TimeFrame      string    `toml:"timeframe"`
	StartTime      time.Time `toml:"start_time"`
	EndTime        time.Time `toml:"end_time"`
	InitialBalance float64   `toml:"initial_balance"`
	WarmupCandles  int       `toml:"warmup_candles"`
	MaxRange       duration  `toml:"max_range"`
	Concurrency    int       `toml:"concurrency"`
	OutputDir      string    `toml:"output_dir"`

	Leverage        float64 `toml:"leverage"`
	PositionSizeUsd float64 `toml:"position_size_usd"`
	RiskPerTrade    float64 `toml:"risk_per_trade"`
	AllowPyramiding bool    `toml:"allow_pyramiding"`
	LotStep         float64 `toml:"lot_step"`
	TickSize        float64 `toml:"tick_size"`

	DCALevels  int     `toml:"dca_levels"`
	DCAStepPct float64 `toml:"dca_step_pct"`
	// DCASizing is "weighted" or "distribution".
	DCASizing       string    `toml:"dca_sizing"`
	DCAWeightStep   float64   `toml:"dca_weight_step"`
	DCABudgetUsd    float64   `toml:"dca_budget_usd"`
	DCADistribution []float64 `toml:"dca_distribution"`

	TPLadder              []TPRung `toml:"tp_ladder"`
	StopLossPct           float64  `toml:"stop_loss_pct"`
	TrailingActivationPct float64  `toml:"trailing_activation_pct"`
	TrailingDistancePct   float64  `toml:"trailing_distance_pct"`
	BreakEvenTriggerPct   float64  `toml:"break_even_trigger_pct"`
}

// CostsConfig holds percentages of notional.
type CostsConfig struct {
	MakerFeePct    float64 `toml:"maker_fee_pct"`
	TakerFeePct    float64 `toml:"taker_fee_pct"`
	MaxSlippagePct float64 `toml:"max_slippage_pct"`
	OrderType      string  `toml:"order_type"`
}

type RiskConfig struct {
	KillSwitch           bool    `toml:"kill_switch"`
	MaxDrawdownPct       float64 `toml:"max_drawdown_pct"`
	DailyLossLimitUsd    float64 `toml:"daily_loss_limit_usd"`
	DailyLossLimitPct    float64 `toml:"daily_loss_limit_pct"`
	LiquidationMarginPct float64 `toml:"liquidation_margin_pct"`
}

type MonitorConfig struct {
	Interval   duration `toml:"interval"`
	Lookback   int      `toml:"lookback"`
	Backfill   duration `toml:"backfill"`
	Timeframes []string `toml:"timeframes"`
}

// duration wraps time.Duration so TOML strings like "15s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
