package models

import (
	"fmt"
	"time"
)

// Price is one OHLCV candle.
type Price struct {
	ID         uint      `gorm:"primaryKey"`
	Exchange   string    `gorm:"uniqueIndex:idx_price_series,priority:1;not null;default:binance"`
	Symbol     string    `gorm:"uniqueIndex:idx_price_series,priority:2;not null"`
	TimeFrame  string    `gorm:"uniqueIndex:idx_price_series,priority:3;not null"`
	OpenTime   time.Time `gorm:"uniqueIndex:idx_price_series,priority:4;not null"`
	CloseTime  time.Time `gorm:"index"`
	Open       float64   `gorm:"type:decimal(20,8)"`
	Close      float64   `gorm:"type:decimal(20,8)"`
	High       float64   `gorm:"type:decimal(20,8)"`
	Low        float64   `gorm:"type:decimal(20,8)"`
	Volume     float64   `gorm:"type:decimal(20,8)"`
	TradeCount int64
}

const (
	PriceTimeFrame1m  = "1m"
	PriceTimeFrame5m  = "5m"
	PriceTimeFrame15m = "15m"
	PriceTimeFrame1h  = "1h"
	PriceTimeFrame4h  = "4h"
	PriceTimeFrame1d  = "1d"
)

var timeFrameDurations = map[string]time.Duration{
	PriceTimeFrame1m:  time.Minute,
	PriceTimeFrame5m:  5 * time.Minute,
	PriceTimeFrame15m: 15 * time.Minute,
	PriceTimeFrame1h:  time.Hour,
	PriceTimeFrame4h:  4 * time.Hour,
	PriceTimeFrame1d:  24 * time.Hour,
}

// TableName sets the table name for Price model
func (Price) TableName() string {
	return "prices"
}

// TimeFrameDuration returns the candle width for a timeframe string.
func TimeFrameDuration(timeFrame string) (time.Duration, error) {
	d, ok := timeFrameDurations[timeFrame]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe %q: %w", timeFrame, ErrInvalidConfig)
	}
	return d, nil
}

// AdverseExtreme is the candle price furthest against a position on side.
func (p Price) AdverseExtreme(side Side) float64 {
	if side == SideSell {
		return p.High
	}
	return p.Low
}

// FavorableExtreme is the candle price furthest in favour of a position on side.
func (p Price) FavorableExtreme(side Side) float64 {
	if side == SideSell {
		return p.Low
	}
	return p.High
}

// Tick is a single observed market price.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// UnixMilli is the tick timestamp used for deterministic seeds.
func (t Tick) UnixMilli() int64 {
	return t.Time.UnixMilli()
}
