package models

import "time"

// TradeRecord is the persisted form of a closed position.
type TradeRecord struct {
	ID            string  `gorm:"primaryKey;size:36"`
	RunID         string  `gorm:"index;size:36"`
	Symbol        string  `gorm:"index;not null"`
	Side          string  `gorm:"not null"`
	Leverage      float64 `gorm:"type:decimal(10,2);not null"`
	EntryQty      float64 `gorm:"type:decimal(20,8);not null"`
	AvgEntryPrice float64 `gorm:"type:decimal(20,8);not null"`
	ExitPrice     float64 `gorm:"type:decimal(20,8)"`
	PnL           float64 `gorm:"column:pnl;type:decimal(20,8)"`
	Fees          float64 `gorm:"type:decimal(20,8)"`
	DCAFills      int
	TPFills       int
	ExitReason    string    `gorm:"index"`
	OpenTime      time.Time `gorm:"index;not null"`
	CloseTime     time.Time `gorm:"index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`

	Orders []OrderRecord `gorm:"foreignKey:PositionID"`
}

// OrderRecord is the persisted form of an OrderRef.
type OrderRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	PositionID string `gorm:"index;size:36;not null"`
	Symbol     string `gorm:"not null"`
	Side       string `gorm:"not null"`
	Role       string `gorm:"index;not null"`
	Level      int
	Status     string  `gorm:"not null"`
	Price      float64 `gorm:"type:decimal(20,8)"`
	Quantity   float64 `gorm:"type:decimal(20,8)"`
	Fee        float64 `gorm:"type:decimal(20,8)"`
	EventTime  time.Time
}

// OrderRecords converts every order of a position, pending ones included.
func OrderRecords(p *Position) []OrderRecord {
	orders := p.allOrders()
	out := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		at := o.UpdatedAt
		if at.IsZero() {
			at = o.CreatedAt
		}
		out = append(out, OrderRecord{
			ID:         o.ID,
			PositionID: p.ID,
			Symbol:     o.Symbol,
			Side:       string(o.Side),
			Role:       string(o.Metadata.Role),
			Level:      o.Metadata.Level,
			Status:     string(o.Status),
			Price:      o.Price,
			Quantity:   o.Quantity,
			Fee:        o.Fee,
			EventTime:  at,
		})
	}
	return out
}

// NewTradeRecord converts a closed position with all of its orders.
func NewTradeRecord(runID string, p *Position) TradeRecord {
	rec := TradeRecord{
		ID:            p.ID,
		RunID:         runID,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		Leverage:      p.EffectiveLeverage(),
		EntryQty:      p.EntryQty,
		AvgEntryPrice: p.AvgEntryPrice,
		ExitPrice:     p.AverageExitPrice(),
		PnL:           p.RealizedPnlUsd,
		Fees:          p.FeesPaidUsd,
		ExitReason:    p.ExitReason.String(),
		OpenTime:      p.OpenedAt,
		Orders:        OrderRecords(p),
	}
	if p.ClosedAt != nil {
		rec.CloseTime = *p.ClosedAt
	}
	for _, o := range p.DCAOrders {
		if o.Status == OrderStatusFilled {
			rec.DCAFills++
		}
	}
	for _, o := range p.TPOrders {
		if o.Status == OrderStatusFilled {
			rec.TPFills++
		}
	}
	return rec
}
