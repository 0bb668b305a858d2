package models

import (
	"math"
	"time"
)

type PositionStatus string

const (
	PositionStatusOpen    PositionStatus = "open"
	PositionStatusClosing PositionStatus = "closing"
	PositionStatusClosed  PositionStatus = "closed"
)

// QuantityEpsilon is the residual below which an open quantity counts as flat.
const QuantityEpsilon = 1e-9

// Position is one trade from entry fill to terminal close. Lifecycle code
// never mutates a Position owned by someone else: it clones, applies the
// transition to the clone and hands the clone back.
type Position struct {
	ID         string
	UserID     string
	StrategyID string
	Exchange   string
	MarketType MarketType
	Symbol     string
	Side       Side

	AvgEntryPrice    float64
	PositionQty      float64
	EntryQty         float64
	ClosedQty        float64
	RealizedPnlUsd   float64
	UnrealizedPnlUsd float64
	Leverage         float64
	LiquidationPrice float64
	LastPrice        float64

	// MarginUsd is the balance reserved by the open quantity. OpenFeesUsd
	// holds entry and DCA fees not yet realized by a closing fill.
	MarginUsd   float64
	OpenFeesUsd float64
	FeesPaidUsd float64

	EntryOrders []OrderRef
	DCAOrders   []OrderRef
	TPOrders    []OrderRef
	SLOrders    []OrderRef

	DCALevels []DCALevel
	Risk      RiskState

	Status     PositionStatus
	ExitReason ExitReason
	OpenedAt   time.Time
	ClosedAt   *time.Time
}

// ClosingFill is the accounting effect of one closing order.
type ClosingFill struct {
	Quantity     float64
	GrossPnl     float64
	RealizedPnl  float64
	BalanceDelta float64
}

func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.EntryOrders = append([]OrderRef(nil), p.EntryOrders...)
	out.DCAOrders = append([]OrderRef(nil), p.DCAOrders...)
	out.TPOrders = append([]OrderRef(nil), p.TPOrders...)
	out.SLOrders = append([]OrderRef(nil), p.SLOrders...)
	out.DCALevels = append([]DCALevel(nil), p.DCALevels...)
	out.Risk = p.Risk.clone()
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return &out
}

func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen || p.Status == PositionStatusClosing
}

func (p *Position) EffectiveLeverage() float64 {
	if p.Leverage <= 0 {
		return 1
	}
	return p.Leverage
}

// GrossPnl is ((exit - avgEntry) * qty * sideSign) * leverage, before fees.
func (p *Position) GrossPnl(exitPrice, qty float64) float64 {
	move := (exitPrice - p.AvgEntryPrice) * qty * p.Side.Sign()
	return move * p.EffectiveLeverage()
}

// EstimatedLiquidationPrice approximates the isolated-margin liquidation
// price, ignoring maintenance margin. Spot and unlevered positions cannot
// be liquidated and get zero.
func (p *Position) EstimatedLiquidationPrice() float64 {
	if p.MarketType != MarketFutures || p.Leverage <= 1 {
		return 0
	}
	return p.AvgEntryPrice * (1 - p.Side.Sign()/p.Leverage)
}

// Revalue marks the open quantity to price. Unrealized PnL carries the
// outstanding entry fees so equity always reflects every fee paid.
func (p *Position) Revalue(price float64) {
	p.LastPrice = price
	if !p.IsOpen() || p.PositionQty == 0 {
		p.UnrealizedPnlUsd = 0
		return
	}
	p.UnrealizedPnlUsd = p.GrossPnl(price, p.PositionQty) - p.OpenFeesUsd
}

// ApplyOpeningFill folds an ENTRY or DCA fill into the average entry price
// and returns the balance change it causes.
func (p *Position) ApplyOpeningFill(order OrderRef) float64 {
	newQty := p.PositionQty + order.Quantity
	if newQty > 0 {
		p.AvgEntryPrice = (p.AvgEntryPrice*p.PositionQty + order.Price*order.Quantity) / newQty
	}
	p.PositionQty = newQty
	notional := order.Notional()
	p.MarginUsd += notional
	p.OpenFeesUsd += order.Fee
	p.FeesPaidUsd += order.Fee

	switch order.Metadata.Role {
	case OrderRoleEntry:
		p.EntryQty += order.Quantity
		p.EntryOrders = upsertOrder(p.EntryOrders, order)
	case OrderRoleDCA:
		p.DCAOrders = upsertOrder(p.DCAOrders, order)
	}
	return -(notional + order.Fee)
}

// ApplyClosingFill realizes the slice of the position closed by order.
// The average entry price is left untouched.
func (p *Position) ApplyClosingFill(order OrderRef) (ClosingFill, error) {
	if !p.IsOpen() {
		return ClosingFill{}, ErrPositionClosed
	}
	tolerance := QuantityEpsilon * math.Max(1, p.PositionQty)
	if order.Quantity <= 0 || order.Quantity > p.PositionQty+tolerance {
		return ClosingFill{}, ErrQuantityOverflow
	}

	qty := math.Min(order.Quantity, p.PositionQty)
	frac := qty / p.PositionQty
	gross := p.GrossPnl(order.Price, qty)
	feeShare := p.OpenFeesUsd * frac
	released := p.MarginUsd * frac

	p.PositionQty -= qty
	p.ClosedQty += qty
	p.OpenFeesUsd -= feeShare
	p.MarginUsd -= released
	p.FeesPaidUsd += order.Fee

	if p.PositionQty <= QuantityEpsilon {
		// flush rounding residue so a flat position owns nothing
		feeShare += p.OpenFeesUsd
		released += p.MarginUsd
		p.PositionQty = 0
		p.OpenFeesUsd = 0
		p.MarginUsd = 0
	}

	realized := gross - order.Fee - feeShare
	p.RealizedPnlUsd += realized

	switch order.Metadata.Role {
	case OrderRoleTP:
		p.TPOrders = upsertOrder(p.TPOrders, order)
	default:
		p.SLOrders = upsertOrder(p.SLOrders, order)
	}

	return ClosingFill{
		Quantity:     qty,
		GrossPnl:     gross,
		RealizedPnl:  realized,
		BalanceDelta: released + gross - order.Fee,
	}, nil
}

// CancelPending cancels every NEW order and pending level and returns the
// orders that changed state.
func (p *Position) CancelPending(at time.Time) []OrderRef {
	var canceled []OrderRef
	for _, list := range []*[]OrderRef{&p.EntryOrders, &p.DCAOrders, &p.TPOrders, &p.SLOrders} {
		for i, o := range *list {
			if o.Terminal() {
				continue
			}
			c, err := o.Cancel(at)
			if err != nil {
				continue
			}
			(*list)[i] = c
			canceled = append(canceled, c)
		}
	}
	for i := range p.DCALevels {
		if p.DCALevels[i].Status == LevelPending {
			p.DCALevels[i].Status = LevelCancelled
		}
	}
	if p.Risk.PartialTP != nil {
		for i := range p.Risk.PartialTP.Levels {
			if p.Risk.PartialTP.Levels[i].Status == LevelPending {
				p.Risk.PartialTP.Levels[i].Status = LevelCancelled
			}
		}
	}
	return canceled
}

// BeginClose moves an open position to CLOSING and cancels its pending
// orders. Closing fills and MarkClosed complete the transition.
func (p *Position) BeginClose(at time.Time) ([]OrderRef, error) {
	if !p.IsOpen() {
		return nil, ErrPositionClosed
	}
	p.Status = PositionStatusClosing
	return p.CancelPending(at), nil
}

// MarkClosed moves the position to its terminal state.
func (p *Position) MarkClosed(reason ExitReason, at time.Time) []OrderRef {
	canceled := p.CancelPending(at)
	p.PositionQty = 0
	p.UnrealizedPnlUsd = 0
	p.Status = PositionStatusClosed
	p.ExitReason = reason
	closedAt := at
	p.ClosedAt = &closedAt
	return canceled
}

// FilledQuantity sums the quantity of every FILLED order with the given role.
func (p *Position) FilledQuantity(role OrderRole) float64 {
	var total float64
	for _, o := range p.allOrders() {
		if o.Status == OrderStatusFilled && o.Metadata.Role == role {
			total += o.Quantity
		}
	}
	return total
}

// AverageExitPrice is the quantity-weighted price of all closing fills.
func (p *Position) AverageExitPrice() float64 {
	var qty, notional float64
	for _, list := range [][]OrderRef{p.TPOrders, p.SLOrders} {
		for _, o := range list {
			if o.Status != OrderStatusFilled {
				continue
			}
			qty += o.Quantity
			notional += o.Notional()
		}
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// PendingOrders returns every order still in NEW state.
func (p *Position) PendingOrders() []OrderRef {
	var out []OrderRef
	for _, o := range p.allOrders() {
		if !o.Terminal() {
			out = append(out, o)
		}
	}
	return out
}

func (p *Position) allOrders() []OrderRef {
	out := make([]OrderRef, 0, len(p.EntryOrders)+len(p.DCAOrders)+len(p.TPOrders)+len(p.SLOrders))
	out = append(out, p.EntryOrders...)
	out = append(out, p.DCAOrders...)
	out = append(out, p.TPOrders...)
	out = append(out, p.SLOrders...)
	return out
}

// DCALevelIndex returns the index of the rung with the given number or -1.
func (p *Position) DCALevelIndex(level int) int {
	for i, l := range p.DCALevels {
		if l.Level == level {
			return i
		}
	}
	return -1
}

// TPLevelIndex returns the index of the profit rung with the given number or -1.
func (p *Position) TPLevelIndex(level int) int {
	for i, l := range p.Risk.TPLevels() {
		if l.Level == level {
			return i
		}
	}
	return -1
}

func upsertOrder(list []OrderRef, order OrderRef) []OrderRef {
	for i, o := range list {
		if o.ID == order.ID {
			list[i] = order
			return list
		}
	}
	return append(list, order)
}
