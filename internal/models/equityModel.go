package models

import "time"

// EquityPoint is one sample of account value, taken once per processed candle.
type EquityPoint struct {
	Time          time.Time `json:"time"`
	Equity        float64   `json:"equity"`
	Balance       float64   `json:"balance"`
	RealizedPnl   float64   `json:"realized_pnl"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	DrawdownPct   float64   `json:"drawdown_pct"`
	OpenPositions int       `json:"open_positions"`
}

// EquityRecord is the persisted form of an EquityPoint.
type EquityRecord struct {
	ID            uint      `gorm:"primaryKey"`
	RunID         string    `gorm:"index:idx_equity_run,priority:1;size:36;not null"`
	Time          time.Time `gorm:"index:idx_equity_run,priority:2;not null"`
	Equity        float64   `gorm:"type:decimal(20,8)"`
	Balance       float64   `gorm:"type:decimal(20,8)"`
	RealizedPnl   float64   `gorm:"type:decimal(20,8)"`
	UnrealizedPnl float64   `gorm:"type:decimal(20,8)"`
	DrawdownPct   float64   `gorm:"type:decimal(20,8)"`
	OpenPositions int
}

func (EquityRecord) TableName() string {
	return "equity_points"
}
