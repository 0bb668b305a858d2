package models

import "errors"

var (
	ErrEmptyCandles      = errors.New("no candles available")
	ErrInvalidTimeRange  = errors.New("invalid time range")
	ErrRangeTooLarge     = errors.New("time range exceeds configured maximum")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrPositionClosed    = errors.New("position is not open")
	ErrQuantityOverflow  = errors.New("close quantity exceeds open quantity")
	ErrOrderImmutable    = errors.New("order is already filled or canceled")
	ErrDuplicatePosition = errors.New("position already tracked")
	ErrPositionNotFound  = errors.New("position not found")
	ErrLockHeld          = errors.New("lock already held")
)
