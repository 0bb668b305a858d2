package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/autoclose"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	ModeBacktest = "backtest"
	ModeMonitor  = "monitor"
)

// Defaults returns a configuration that runs a one-month backtest on the
// default symbols without any external store.
func Defaults() Config {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	return Config{
		Mode:     ModeBacktest,
		LogLevel: "info",
		Symbols:  []string{"BTCUSDT", "ETHUSDT"},
		Exchange: ExchangeConfig{Name: "binance"},
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		SQLite:   SQLiteConfig{Path: "data/candles.db"},
		Redis:    RedisConfig{LockTTL: duration{30 * time.Second}},
		S3:       S3Config{Region: "us-east-1", UseSSL: true, Prefix: "backtests"},
		Backtest: BacktestConfig{
			TimeFrame:      models.PriceTimeFrame1h,
			StartTime:      end.AddDate(0, -1, 0),
			EndTime:        end,
			InitialBalance: 10000,
			WarmupCandles:  50,
			MaxRange:       duration{365 * 24 * time.Hour},
			Concurrency:    2,
			OutputDir:      "results",
			Leverage:       1,
			RiskPerTrade:   0.02,
			DCALevels:      3,
			DCAStepPct:     2,
			DCASizing:      "weighted",
			DCAWeightStep:  0.5,
			TPLadder: []TPRung{
				{OffsetPct: 1, Percentage: 50},
				{OffsetPct: 2, Percentage: 50},
			},
			StopLossPct:           5,
			TrailingActivationPct: 1.5,
			TrailingDistancePct:   0.5,
			BreakEvenTriggerPct:   1,
		},
		Costs: CostsConfig{
			MakerFeePct:    0.02,
			TakerFeePct:    0.05,
			MaxSlippagePct: 0.05,
			OrderType:      string(models.OrderTypeTaker),
		},
		Risk: RiskConfig{
			LiquidationMarginPct: autoclose.DefaultLiquidationMarginPct,
		},
		Monitor: MonitorConfig{
			Interval:   duration{15 * time.Second},
			Lookback:   100,
			Backfill:   duration{7 * 24 * time.Hour},
			Timeframes: []string{models.PriceTimeFrame1m, models.PriceTimeFrame1h},
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// any), a .env file (if present) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "TRADECORE_MODE")
	setStr(&cfg.LogLevel, "TRADECORE_LOG_LEVEL")
	setStringSlice(&cfg.Symbols, "TRADING_SYMBOLS")

	setStr(&cfg.Exchange.APIKey, "BINANCE_API_KEY")
	setStr(&cfg.Exchange.SecretKey, "BINANCE_SECRET_KEY")
	setBool(&cfg.Exchange.Live, "TRADECORE_LIVE")

	setStr(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setStr(&cfg.Database.User, "DB_USER")
	setStr(&cfg.Database.Password, "DB_PASSWORD")
	setStr(&cfg.Database.DBName, "DB_NAME")
	setStr(&cfg.Database.SSLMode, "DB_SSLMODE")

	setStr(&cfg.SQLite.Path, "TRADECORE_SQLITE_PATH")

	setStr(&cfg.Redis.Addr, "TRADECORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADECORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADECORE_REDIS_DB")
	setDuration(&cfg.Redis.LockTTL, "TRADECORE_REDIS_LOCK_TTL")

	setStr(&cfg.S3.Endpoint, "TRADECORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADECORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADECORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADECORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADECORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADECORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADECORE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "TRADECORE_S3_PREFIX")

	setStr(&cfg.Backtest.TimeFrame, "TRADECORE_BACKTEST_TIMEFRAME")
	setTime(&cfg.Backtest.StartTime, "TRADECORE_BACKTEST_START")
	setTime(&cfg.Backtest.EndTime, "TRADECORE_BACKTEST_END")
	setFloat64(&cfg.Backtest.InitialBalance, "TRADECORE_BACKTEST_INITIAL_BALANCE")
	setInt(&cfg.Backtest.WarmupCandles, "TRADECORE_BACKTEST_WARMUP")
	setInt(&cfg.Backtest.Concurrency, "TRADECORE_BACKTEST_CONCURRENCY")
	setStr(&cfg.Backtest.OutputDir, "TRADECORE_BACKTEST_OUTPUT_DIR")
	setFloat64(&cfg.Backtest.Leverage, "TRADECORE_BACKTEST_LEVERAGE")
	setFloat64(&cfg.Backtest.PositionSizeUsd, "TRADECORE_BACKTEST_POSITION_SIZE_USD")
	setFloat64(&cfg.Backtest.RiskPerTrade, "TRADECORE_BACKTEST_RISK_PER_TRADE")
	setBool(&cfg.Backtest.AllowPyramiding, "TRADECORE_BACKTEST_ALLOW_PYRAMIDING")
	setInt(&cfg.Backtest.DCALevels, "TRADECORE_BACKTEST_DCA_LEVELS")
	setFloat64(&cfg.Backtest.DCAStepPct, "TRADECORE_BACKTEST_DCA_STEP_PCT")
	setStr(&cfg.Backtest.DCASizing, "TRADECORE_BACKTEST_DCA_SIZING")
	setFloat64(&cfg.Backtest.StopLossPct, "TRADECORE_BACKTEST_STOP_LOSS_PCT")

	setFloat64(&cfg.Costs.MakerFeePct, "TRADECORE_MAKER_FEE_PCT")
	setFloat64(&cfg.Costs.TakerFeePct, "TRADECORE_TAKER_FEE_PCT")
	setFloat64(&cfg.Costs.MaxSlippagePct, "TRADECORE_MAX_SLIPPAGE_PCT")
	setStr(&cfg.Costs.OrderType, "TRADECORE_ORDER_TYPE")

	setBool(&cfg.Risk.KillSwitch, "TRADECORE_KILL_SWITCH")
	setFloat64(&cfg.Risk.MaxDrawdownPct, "TRADECORE_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Risk.DailyLossLimitUsd, "TRADECORE_DAILY_LOSS_LIMIT_USD")
	setFloat64(&cfg.Risk.DailyLossLimitPct, "TRADECORE_DAILY_LOSS_LIMIT_PCT")

	setDuration(&cfg.Monitor.Interval, "TRADECORE_MONITOR_INTERVAL")
	setInt(&cfg.Monitor.Lookback, "TRADECORE_MONITOR_LOOKBACK")
	setDuration(&cfg.Monitor.Backfill, "TRADECORE_MONITOR_BACKFILL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setTime accepts RFC 3339 or a plain date.
func setTime(dst *time.Time, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			*dst = t.UTC()
			return
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.ToUpper(strings.TrimSpace(p))
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Mode {
	case ModeBacktest, ModeMonitor:
	default:
		errs = append(errs, fmt.Sprintf("mode must be %q or %q, got %q", ModeBacktest, ModeMonitor, c.Mode))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols must not be empty")
	}

	if c.Database.Enabled() && (c.Database.Port <= 0 || c.Database.Port > 65535) {
		errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be > 0")
	}

	b := c.Backtest
	if _, err := models.TimeFrameDuration(b.TimeFrame); err != nil {
		errs = append(errs, fmt.Sprintf("backtest: %v", err))
	}
	if c.Mode == ModeBacktest && !b.EndTime.After(b.StartTime) {
		errs = append(errs, "backtest: end_time must be after start_time")
	}
	if b.InitialBalance <= 0 {
		errs = append(errs, "backtest: initial_balance must be > 0")
	}
	if b.WarmupCandles < 0 {
		errs = append(errs, "backtest: warmup_candles must be >= 0")
	}
	if b.Concurrency < 1 {
		errs = append(errs, "backtest: concurrency must be >= 1")
	}
	if b.Leverage < 1 {
		errs = append(errs, "backtest: leverage must be >= 1")
	}
	if b.PositionSizeUsd <= 0 && (b.RiskPerTrade <= 0 || b.RiskPerTrade > 1) {
		errs = append(errs, "backtest: risk_per_trade must be in (0, 1] when position_size_usd is unset")
	}
	if b.DCALevels < 0 || b.DCAStepPct < 0 {
		errs = append(errs, "backtest: dca_levels and dca_step_pct must be >= 0")
	}
	switch b.DCASizing {
	case "weighted":
	case "distribution":
		if len(b.DCADistribution) < b.DCALevels {
			errs = append(errs, "backtest: dca_distribution needs one percentage per dca level")
		}
	default:
		errs = append(errs, fmt.Sprintf("backtest: dca_sizing must be weighted or distribution, got %q", b.DCASizing))
	}
	if b.StopLossPct < 0 || b.TrailingActivationPct < 0 || b.TrailingDistancePct < 0 || b.BreakEvenTriggerPct < 0 {
		errs = append(errs, "backtest: stop and trailing percentages must be >= 0")
	}

	if c.Costs.MakerFeePct < 0 || c.Costs.TakerFeePct < 0 || c.Costs.MaxSlippagePct < 0 {
		errs = append(errs, "costs: fees and slippage must be >= 0")
	}
	switch models.OrderType(c.Costs.OrderType) {
	case models.OrderTypeMaker, models.OrderTypeTaker:
	default:
		errs = append(errs, fmt.Sprintf("costs: order_type must be maker or taker, got %q", c.Costs.OrderType))
	}

	if c.Risk.MaxDrawdownPct < 0 || c.Risk.DailyLossLimitUsd < 0 || c.Risk.DailyLossLimitPct < 0 {
		errs = append(errs, "risk: limits must be >= 0")
	}

	if c.Mode == ModeMonitor {
		if c.Monitor.Interval.Duration <= 0 {
			errs = append(errs, "monitor: interval must be > 0")
		}
		if c.Monitor.Lookback < 1 {
			errs = append(errs, "monitor: lookback must be >= 1")
		}
		if c.Exchange.Live && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
			errs = append(errs, "exchange: api_key and secret_key are required for live trading")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s: %w", strings.Join(errs, "\n  - "), models.ErrInvalidConfig)
	}
	return nil
}
