package repositories

import (
	"context"
	"errors"
	"time"

	"TradeCore/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new instance of TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create stores a closed trade and its orders
func (r *TradeRepository) Create(ctx context.Context, trade *models.TradeRecord) error {
	if trade == nil {
		return errors.New("trade cannot be nil")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(trade).Error
}

// FindByID retrieves a trade with its orders
func (r *TradeRepository) FindByID(ctx context.Context, id string) (*models.TradeRecord, error) {
	if id == "" {
		return nil, errors.New("invalid id")
	}
	var trade models.TradeRecord
	err := r.db.WithContext(ctx).Preload("Orders").First(&trade, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &trade, err
}

// FindByRun retrieves the trades of a backtest run in close order
func (r *TradeRepository) FindByRun(ctx context.Context, runID string) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	err := r.db.WithContext(ctx).Preload("Orders").
		Where("run_id = ?", runID).
		Order("close_time ASC").
		Find(&trades).Error
	return trades, err
}

// FindBySymbol retrieves all trades for a symbol
func (r *TradeRepository) FindBySymbol(ctx context.Context, symbol string) ([]models.TradeRecord, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	var trades []models.TradeRecord
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).Find(&trades).Error
	return trades, err
}

// GetTotalPnL sums the realized PnL of trades closed within a time range
func (r *TradeRepository) GetTotalPnL(ctx context.Context, start, end time.Time) (float64, error) {
	var totalPnL float64
	err := r.db.WithContext(ctx).Model(&models.TradeRecord{}).
		Where("close_time BETWEEN ? AND ?", start, end).
		Select("COALESCE(SUM(pnl), 0)").
		Scan(&totalPnL).Error
	return totalPnL, err
}
