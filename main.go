package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"TradeCore/config"
	"TradeCore/internal/handlers"
	"TradeCore/internal/models"
	"TradeCore/internal/operations/backtest"
	"TradeCore/internal/operations/binance"
	"TradeCore/internal/operations/price"
	"TradeCore/internal/repositories"
	"TradeCore/internal/services/indicators"
	"TradeCore/internal/services/strategy"
	"TradeCore/internal/services/trading"
	"TradeCore/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", *configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("starting tradecore",
		slog.String("mode", cfg.Mode),
		slog.String("symbols", strings.Join(cfg.Symbols, ",")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case config.ModeBacktest:
		err = runBacktests(ctx, cfg, logger)
	case config.ModeMonitor:
		err = runMonitor(ctx, cfg, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tradecore stopped with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// deps are the optional stores shared by both modes.
type deps struct {
	client  *binance.BinanceClient
	candles price.CandleSource
	store   price.CandleStore
	cache   *price.SQLiteCache
	db      *gorm.DB
}

func (d *deps) Close() {
	if d.cache != nil {
		_ = d.cache.Close()
	}
	if d.db != nil {
		if sqlDB, err := d.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func setupDeps(cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{client: binance.NewBinanceClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, logger)}
	d.candles = price.NewPriceFetcher(d.client, logger)

	if cfg.Database.Enabled() {
		db, err := setupDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		d.db = db
		d.store = repositories.NewPriceRepository(db, logger)
	}

	if cfg.SQLite.Path != "" {
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				d.Close()
				return nil, fmt.Errorf("create cache dir: %w", err)
			}
		}
		cache, err := price.OpenSQLiteCache(cfg.SQLite.Path, d.candles, logger)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.cache = cache
		d.candles = cache
		if d.store == nil {
			d.store = cache
		}
	}
	return d, nil
}

func setupDatabase(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dbConfig.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := repositories.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newSignalStack(logger *slog.Logger) (*indicators.Provider, *strategy.StrategyManager, error) {
	provider, err := indicators.NewProvider(indicators.DefaultPeriods())
	if err != nil {
		return nil, nil, err
	}
	manager, err := strategy.NewStrategyManager(strategy.DefaultConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	return provider, manager, nil
}

func runBacktests(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	d, err := setupDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	provider, signals, err := newSignalStack(logger)
	if err != nil {
		return err
	}

	runs, err := cfg.BacktestConfigs()
	if err != nil {
		return err
	}
	for i := range runs {
		symbol := runs[i].Symbol
		runs[i].ProgressEvery = 500
		runs[i].Progress = func(p backtest.Progress) {
			logger.Debug("backtest progress",
				slog.String("symbol", symbol),
				slog.Int("current", p.Current),
				slog.Int("total", p.Total),
				slog.String("message", p.Message),
			)
		}
	}

	var archiver *storage.ReportArchiver
	if cfg.S3.Bucket != "" {
		client, err := storage.NewS3Client(ctx, storage.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		archiver = storage.NewReportArchiver(client, cfg.S3.Bucket, cfg.S3.Prefix, logger)
	}

	var runRepo *repositories.RunRepository
	if d.db != nil {
		runRepo = repositories.NewRunRepository(d.db)
	}

	engine := backtest.NewEngine(d.candles, provider, signals, logger)
	results, runErr := engine.RunMany(ctx, runs, cfg.Backtest.Concurrency)

	if cfg.Backtest.OutputDir != "" {
		if err := os.MkdirAll(cfg.Backtest.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		logResults(logger, res)

		if cfg.Backtest.OutputDir != "" && len(res.Trades) > 0 {
			path := filepath.Join(cfg.Backtest.OutputDir, fmt.Sprintf("%s_%s_%s.csv", res.Symbol, res.TimeFrame, res.RunID))
			if err := backtest.WriteCSV(res.Trades, path); err != nil {
				logger.Warn("failed to write trades csv", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
		if runRepo != nil {
			if err := runRepo.SaveResults(ctx, res); err != nil {
				logger.Warn("failed to save run", slog.String("run_id", res.RunID), slog.String("error", err.Error()))
			}
		}
		if archiver != nil {
			if key, err := archiver.Archive(ctx, res); err != nil {
				logger.Warn("failed to archive run", slog.String("run_id", res.RunID), slog.String("error", err.Error()))
			} else {
				logger.Info("run archived", slog.String("run_id", res.RunID), slog.String("key", key))
			}
		}
	}
	return runErr
}

func logResults(logger *slog.Logger, res *backtest.BacktestResults) {
	m := res.Metrics
	logger.Info("backtest finished",
		slog.String("run_id", res.RunID),
		slog.String("symbol", res.Symbol),
		slog.String("status", string(res.Status)),
		slog.String("error", res.Error),
		slog.Int("trades", m.TotalTrades),
		slog.Float64("win_rate_pct", m.WinRate),
		slog.Float64("total_pnl", m.TotalPnl),
		slog.Float64("total_return_pct", m.TotalReturnPct),
		slog.Float64("max_drawdown_pct", m.MaxDrawdownPct),
		slog.Float64("profit_factor", m.ProfitFactor),
		slog.Float64("sharpe", m.SharpeRatio),
		slog.Float64("final_equity", m.FinalEquity),
		slog.Int("candles", res.Metadata.CandlesProcessed),
		slog.Int64("execution_ms", res.Metadata.ExecutionTimeMs),
	)
}

func runMonitor(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	d, err := setupDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	provider, signals, err := newSignalStack(logger)
	if err != nil {
		return err
	}

	var locker trading.Locker = handlers.NewKeyedLocker()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: ping: %w", err)
		}
		locker = handlers.NewRedisLocker(rdb, cfg.Redis.LockTTL.Duration)
	}

	var gateway trading.OrderGateway = trading.NewPaperGateway(logger)
	if cfg.Exchange.Live {
		gateway = binance.NewOrderGateway(d.client, cfg.Backtest.LotStep, cfg.Backtest.TickSize)
	}

	var trades trading.TradeRecorder
	if d.db != nil {
		trades = repositories.NewTradeRepository(d.db)
	}

	monitorCfg, err := cfg.TradingMonitorConfig(models.NewRunID())
	if err != nil {
		return err
	}
	monitor, err := trading.NewMonitor(monitorCfg, locker, gateway, trades, logger)
	if err != nil {
		return err
	}

	if d.store != nil {
		recorder := price.NewPriceRecorder(d.client, d.store, cfg.Exchange.Name, cfg.Symbols, cfg.Monitor.Timeframes, logger)
		priceHandler := handlers.NewPriceHandler(d.candles, d.store, recorder, cfg.Exchange.Name,
			cfg.Symbols, cfg.Monitor.Timeframes, cfg.Monitor.Backfill.Duration, logger)
		if err := priceHandler.Start(ctx); err != nil {
			return fmt.Errorf("start price handler: %w", err)
		}
	}

	trader := trading.NewPaperTrader(cfg.PaperTraderConfig(), monitor, d.client, d.candles, provider, signals, logger)
	logger.Info("monitoring positions", slog.Bool("live", cfg.Exchange.Live))
	trader.MonitorPositions(ctx)
	return ctx.Err()
}
