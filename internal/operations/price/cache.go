package price

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"TradeCore/internal/models"

	_ "modernc.org/sqlite"
)

const cacheDDL = `
CREATE TABLE IF NOT EXISTS candles (
	exchange    TEXT    NOT NULL,
	symbol      TEXT    NOT NULL,
	timeframe   TEXT    NOT NULL,
	open_time   INTEGER NOT NULL,
	close_time  INTEGER NOT NULL,
	open        REAL    NOT NULL,
	high        REAL    NOT NULL,
	low         REAL    NOT NULL,
	close       REAL    NOT NULL,
	volume      REAL    NOT NULL DEFAULT 0,
	trade_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (exchange, symbol, timeframe, open_time)
);
`

// SQLiteCache keeps candles in a local SQLite file in front of an upstream
// source. A range is served locally only when the cached candles cover it
// without gaps.
type SQLiteCache struct {
	db       *sql.DB
	upstream CandleSource
	logger   *slog.Logger
}

func OpenSQLiteCache(path string, upstream CandleSource, logger *slog.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening candle cache: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(cacheDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &SQLiteCache{
		db:       db,
		upstream: upstream,
		logger:   logger.With(slog.String("component", "candle_cache")),
	}, nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) GetHistoricalCandles(ctx context.Context, exchange, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	step, err := models.TimeFrameDuration(timeFrame)
	if err != nil {
		return nil, err
	}
	cached, err := c.Load(ctx, exchange, symbol, timeFrame, start, end)
	if err != nil {
		return nil, err
	}
	if covers(cached, start, end, step) || c.upstream == nil {
		c.logger.Debug("candle cache hit", slog.String("symbol", symbol), slog.Int("count", len(cached)))
		return cached, nil
	}

	fetched, err := c.upstream.GetHistoricalCandles(ctx, exchange, symbol, timeFrame, start, end)
	if err != nil {
		return nil, err
	}
	if err := c.SaveCandles(ctx, fetched); err != nil {
		c.logger.Warn("candle cache write failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
	}
	return fetched, nil
}

// covers reports whether candles span [start, end] with one candle per step.
func covers(candles []models.Price, start, end time.Time, step time.Duration) bool {
	if len(candles) == 0 {
		return false
	}
	first, last := candles[0].OpenTime, candles[len(candles)-1].OpenTime
	if first.Sub(start) >= step || end.Sub(last) >= step {
		return false
	}
	return int(last.Sub(first)/step)+1 == len(candles)
}

// Load returns the cached candles opening in [start, end].
func (c *SQLiteCache) Load(ctx context.Context, exchange, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume, trade_count
		FROM candles
		WHERE exchange = ? AND symbol = ? AND timeframe = ? AND open_time BETWEEN ? AND ?
		ORDER BY open_time`,
		exchange, symbol, timeFrame, start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Price
	for rows.Next() {
		var openMs, closeMs int64
		p := models.Price{Exchange: exchange, Symbol: symbol, TimeFrame: timeFrame}
		if err := rows.Scan(&openMs, &closeMs, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume, &p.TradeCount); err != nil {
			return nil, err
		}
		p.OpenTime = time.UnixMilli(openMs).UTC()
		p.CloseTime = time.UnixMilli(closeMs).UTC()
		results = append(results, p)
	}
	return results, rows.Err()
}

// SaveCandles upserts candles in one transaction.
func (c *SQLiteCache) SaveCandles(ctx context.Context, prices []models.Price) error {
	if len(prices) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (exchange, symbol, timeframe, open_time, close_time,
			open, high, low, close, volume, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange, symbol, timeframe, open_time) DO UPDATE SET
			close_time = excluded.close_time,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			trade_count = excluded.trade_count`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.ExecContext(ctx,
			p.Exchange, p.Symbol, p.TimeFrame, p.OpenTime.UnixMilli(), p.CloseTime.UnixMilli(),
			p.Open, p.High, p.Low, p.Close, p.Volume, p.TradeCount,
		); err != nil {
			return fmt.Errorf("save candle %s %s at %s: %w", p.Symbol, p.TimeFrame, p.OpenTime.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}
