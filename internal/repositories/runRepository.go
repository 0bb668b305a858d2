package repositories

import (
	"context"
	"errors"
	"fmt"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/backtest"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new instance of RunRepository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveResults stores the run summary, its closed trades with their orders and
// the equity curve in one transaction. Saving the same run twice replaces it.
func (r *RunRepository) SaveResults(ctx context.Context, results *backtest.BacktestResults) error {
	if results == nil {
		return errors.New("results cannot be nil")
	}
	run := results.RunRecord()
	trades := results.TradeRecords()
	curve := results.EquityRecords()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&run).Error; err != nil {
			return fmt.Errorf("save run %s: %w", run.ID, err)
		}
		if err := deleteRunChildren(tx, run.ID); err != nil {
			return err
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, saveBatchSize).Error; err != nil {
				return fmt.Errorf("save trades of run %s: %w", run.ID, err)
			}
		}
		if len(curve) > 0 {
			if err := tx.CreateInBatches(curve, saveBatchSize).Error; err != nil {
				return fmt.Errorf("save equity curve of run %s: %w", run.ID, err)
			}
		}
		return nil
	})
}

func deleteRunChildren(tx *gorm.DB, runID string) error {
	tradeIDs := tx.Model(&models.TradeRecord{}).Select("id").Where("run_id = ?", runID)
	if err := tx.Where("position_id IN (?)", tradeIDs).Delete(&models.OrderRecord{}).Error; err != nil {
		return err
	}
	if err := tx.Where("run_id = ?", runID).Delete(&models.TradeRecord{}).Error; err != nil {
		return err
	}
	return tx.Where("run_id = ?", runID).Delete(&models.EquityRecord{}).Error
}

// FindByID retrieves a run summary by its ID
func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.BacktestRun, error) {
	if id == "" {
		return nil, errors.New("invalid id")
	}
	var run models.BacktestRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &run, err
}

// FindBySymbol lists runs for a symbol, newest first
func (r *RunRepository) FindBySymbol(ctx context.Context, symbol string) ([]models.BacktestRun, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	var runs []models.BacktestRun
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).Order("created_at DESC").Find(&runs).Error
	return runs, err
}

// EquityCurve returns the stored curve of a run in time order
func (r *RunRepository) EquityCurve(ctx context.Context, runID string) ([]models.EquityRecord, error) {
	var points []models.EquityRecord
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("time ASC").Find(&points).Error
	return points, err
}
