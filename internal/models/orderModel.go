package models

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

type OrderRole string

const (
	OrderRoleEntry OrderRole = "ENTRY"
	OrderRoleDCA   OrderRole = "DCA"
	OrderRoleTP    OrderRole = "TP"
	OrderRoleSL    OrderRole = "SL"
)

// OrderMetadata tags the role an order plays in the position lifecycle.
type OrderMetadata struct {
	Role   OrderRole
	Level  int
	Reason ExitReason
}

// OrderRef is a record of an intended or filled order. Once FILLED or
// CANCELED it is never changed again; transitions return a new value.
type OrderRef struct {
	ID         string
	PositionID string
	Symbol     string
	Side       Side
	Type       OrderType
	Price      float64
	Quantity   float64
	Fee        float64
	Status     OrderStatus
	Metadata   OrderMetadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o OrderRef) Terminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCanceled
}

func (o OrderRef) Notional() float64 {
	return o.Price * o.Quantity
}

// Fill moves a NEW order to FILLED at the given execution values.
func (o OrderRef) Fill(price, qty, fee float64, at time.Time) (OrderRef, error) {
	if o.Terminal() {
		return o, fmt.Errorf("fill order %s: %w", o.ID, ErrOrderImmutable)
	}
	o.Price = price
	o.Quantity = qty
	o.Fee = fee
	o.Status = OrderStatusFilled
	o.UpdatedAt = at
	return o, nil
}

// Cancel moves a NEW order to CANCELED.
func (o OrderRef) Cancel(at time.Time) (OrderRef, error) {
	if o.Terminal() {
		return o, fmt.Errorf("cancel order %s: %w", o.ID, ErrOrderImmutable)
	}
	o.Status = OrderStatusCanceled
	o.UpdatedAt = at
	return o, nil
}
