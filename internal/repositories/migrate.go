package repositories

import (
	"TradeCore/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table the repositories use.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Price{},
		&models.BacktestRun{},
		&models.TradeRecord{},
		&models.OrderRecord{},
		&models.EquityRecord{},
	)
}
