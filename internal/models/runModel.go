package models

import (
	"time"
)

// BacktestRun is the persisted summary of one backtest.
type BacktestRun struct {
	ID             string `gorm:"primaryKey;size:36"`
	Exchange       string `gorm:"not null"`
	Symbol         string `gorm:"index;not null"`
	TimeFrame      string `gorm:"not null"`
	Status         string `gorm:"index;not null"`
	Error          string
	StartTime      time.Time `gorm:"not null"`
	EndTime        time.Time `gorm:"not null"`
	InitialCapital float64   `gorm:"type:decimal(20,8);not null"`
	FinalEquity    float64   `gorm:"type:decimal(20,8)"`
	TotalReturnPct float64   `gorm:"type:decimal(20,8)"`
	MaxDrawdownPct float64   `gorm:"type:decimal(20,8)"`
	WinRate        float64   `gorm:"type:decimal(20,8)"`
	ProfitFactor   float64   `gorm:"type:decimal(20,8)"`
	SharpeRatio    float64   `gorm:"type:decimal(20,8)"`
	TotalTrades    int
	Candles        int
	Signals        int
	ExecutionMs    int64

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
