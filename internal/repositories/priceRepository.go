package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"TradeCore/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// saveBatchSize bounds the rows per INSERT when storing candles.
const saveBatchSize = 500

type PriceRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewPriceRepository creates a new instance of PriceRepository
func NewPriceRepository(db *gorm.DB, logger *slog.Logger) *PriceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceRepository{db: db, logger: logger.With(slog.String("component", "price_repository"))}
}

// Create adds a new Price record to the database
func (r *PriceRepository) Create(price *models.Price) error {
	if price == nil {
		return errors.New("price cannot be nil")
	}
	return r.db.Create(price).Error
}

// SaveCandles upserts candles keyed by exchange, symbol, timeframe and open time.
func (r *PriceRepository) SaveCandles(ctx context.Context, prices []models.Price) error {
	if len(prices) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "exchange"}, {Name: "symbol"}, {Name: "time_frame"}, {Name: "open_time"}},
			DoUpdates: clause.AssignmentColumns([]string{"close_time", "open", "high", "low", "close", "volume", "trade_count"}),
		}).
		CreateInBatches(prices, saveBatchSize).Error
}

// GetHistoricalCandles gets stored candles for a series within a time range
func (r *PriceRepository) GetHistoricalCandles(ctx context.Context, exchange, symbol, timeFrame string, start, end time.Time) ([]models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%s %s: %w", symbol, timeFrame, models.ErrInvalidTimeRange)
	}

	var prices []models.Price
	err := r.db.WithContext(ctx).
		Where("exchange = ? AND symbol = ? AND time_frame = ? AND open_time BETWEEN ? AND ?",
			exchange, symbol, timeFrame, start, end).
		Order("open_time ASC").
		Find(&prices).Error
	if err != nil {
		return nil, err
	}

	r.logger.Debug("loaded candles",
		slog.String("symbol", symbol),
		slog.String("timeframe", timeFrame),
		slog.Int("count", len(prices)),
		slog.Time("from", start),
		slog.Time("to", end),
	)
	return prices, nil
}

// GetLatestPriceByTimeFrame gets the most recent candle for a symbol and timeframe
func (r *PriceRepository) GetLatestPriceByTimeFrame(ctx context.Context, symbol, timeFrame string) (*models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	var price models.Price
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND time_frame = ?", symbol, timeFrame).
		Order("open_time DESC").
		First(&price).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &price, err
}
