package portfolio

import (
	"fmt"
	"time"

	"TradeCore/internal/models"
)

// State owns every position of one run. It has a single writer: positions
// only change by applying an ExecutionResult, which replaces the stored
// entry. Callers get clones and never hold a live reference.
type State struct {
	initialCapital float64
	balance        float64

	open   map[string]*models.Position
	order  []string
	closed []*models.Position
	curve  []models.EquityPoint

	peak           float64
	day            time.Time
	dayStartEquity float64
	lastEquity     float64
	marked         bool
}

func NewState(initialCapital float64) *State {
	return &State{
		initialCapital: initialCapital,
		balance:        initialCapital,
		open:           make(map[string]*models.Position),
		peak:           initialCapital,
		dayStartEquity: initialCapital,
	}
}

func (s *State) InitialCapital() float64 { return s.initialCapital }

// AvailableBalance is the capital not reserved as margin by open positions.
func (s *State) AvailableBalance() float64 { return s.balance }

// Open adds a freshly opened position.
func (s *State) Open(res models.ExecutionResult) error {
	if res.Err != nil {
		return res.Err
	}
	if !res.Executed || res.Position == nil {
		return nil
	}
	pos := res.Position
	if _, ok := s.open[pos.ID]; ok {
		return fmt.Errorf("open %s: %w", pos.ID, models.ErrDuplicatePosition)
	}
	s.open[pos.ID] = pos.Clone()
	s.order = append(s.order, pos.ID)
	s.balance += res.BalanceDelta
	return nil
}

// Apply replaces a stored position with the one carried by res. Closed
// positions move off the book.
func (s *State) Apply(res models.ExecutionResult) error {
	if res.Err != nil {
		return res.Err
	}
	if !res.Executed || res.Position == nil {
		return nil
	}
	id := res.Position.ID
	if _, ok := s.open[id]; !ok {
		return fmt.Errorf("apply to %s: %w", id, models.ErrPositionNotFound)
	}
	s.balance += res.BalanceDelta
	next := res.Position.Clone()
	if next.IsOpen() {
		s.open[id] = next
		return nil
	}
	delete(s.open, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.closed = append(s.closed, next)
	return nil
}

func (s *State) Position(id string) (*models.Position, bool) {
	pos, ok := s.open[id]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// OpenPositions returns clones of the open positions in the order they were opened.
func (s *State) OpenPositions() []*models.Position {
	out := make([]*models.Position, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.open[id].Clone())
	}
	return out
}

func (s *State) HasOpen(symbol string) bool {
	for _, id := range s.order {
		if s.open[id].Symbol == symbol {
			return true
		}
	}
	return false
}

func (s *State) OpenCount() int { return len(s.order) }

// Closed returns the closed positions in close order.
func (s *State) Closed() []*models.Position {
	out := make([]*models.Position, len(s.closed))
	for i, p := range s.closed {
		out[i] = p.Clone()
	}
	return out
}

// Revalue marks every open position on symbol to price.
func (s *State) Revalue(symbol string, price float64) {
	for _, id := range s.order {
		if p := s.open[id]; p.Symbol == symbol {
			p.Revalue(price)
		}
	}
}

// RealizedPnl sums realized PnL over closed positions and the closed slices
// of open ones.
func (s *State) RealizedPnl() float64 {
	var total float64
	for _, p := range s.closed {
		total += p.RealizedPnlUsd
	}
	for _, id := range s.order {
		total += s.open[id].RealizedPnlUsd
	}
	return total
}

func (s *State) UnrealizedPnl() float64 {
	var total float64
	for _, id := range s.order {
		total += s.open[id].UnrealizedPnlUsd
	}
	return total
}

// ExposureUsd is the notional of open quantity at last mark.
func (s *State) ExposureUsd() float64 {
	var total float64
	for _, id := range s.order {
		p := s.open[id]
		price := p.LastPrice
		if price == 0 {
			price = p.AvgEntryPrice
		}
		total += p.PositionQty * price
	}
	return total
}

// Equity is initial capital plus realized and unrealized PnL.
func (s *State) Equity() float64 {
	return s.initialCapital + s.RealizedPnl() + s.UnrealizedPnl()
}

// CurrentDrawdownPct is the fall of current equity from its running peak.
func (s *State) CurrentDrawdownPct() float64 {
	peak := s.peak
	equity := s.Equity()
	if equity > peak {
		peak = equity
	}
	if peak <= 0 {
		return 0
	}
	return (peak - equity) / peak * 100
}

// DailyPnl is the change in equity since the start of the UTC day of at.
func (s *State) DailyPnl(at time.Time) float64 {
	return s.Equity() - s.dayBaseline(at)
}

func (s *State) dayBaseline(at time.Time) float64 {
	day := at.UTC().Truncate(24 * time.Hour)
	if s.day.IsZero() || day.Equal(s.day) {
		return s.dayStartEquity
	}
	if s.marked {
		return s.lastEquity
	}
	return s.dayStartEquity
}

// Mark rolls the daily baseline over to the UTC day of at and raises the
// drawdown peak to current equity, without adding a curve point. The
// baseline of a new day is the equity of the last mark before it.
func (s *State) Mark(at time.Time) float64 {
	day := at.UTC().Truncate(24 * time.Hour)
	if !day.Equal(s.day) {
		s.dayStartEquity = s.dayBaseline(at)
		s.day = day
	}
	equity := s.Equity()
	if equity > s.peak {
		s.peak = equity
	}
	s.lastEquity = equity
	s.marked = true
	return equity
}

// RecordEquity marks at and appends one curve point for it.
func (s *State) RecordEquity(at time.Time) models.EquityPoint {
	equity := s.Mark(at)
	var dd float64
	if s.peak > 0 {
		dd = (s.peak - equity) / s.peak * 100
	}
	point := models.EquityPoint{
		Time:          at,
		Equity:        equity,
		Balance:       s.balance,
		RealizedPnl:   s.RealizedPnl(),
		UnrealizedPnl: s.UnrealizedPnl(),
		DrawdownPct:   dd,
		OpenPositions: len(s.order),
	}
	s.curve = append(s.curve, point)
	return point
}

// RestateEquity records at again, replacing the last point when it was
// taken at the same time.
func (s *State) RestateEquity(at time.Time) models.EquityPoint {
	if n := len(s.curve); n > 0 && s.curve[n-1].Time.Equal(at) {
		s.curve = s.curve[:n-1]
	}
	return s.RecordEquity(at)
}

func (s *State) Curve() []models.EquityPoint {
	return append([]models.EquityPoint(nil), s.curve...)
}
