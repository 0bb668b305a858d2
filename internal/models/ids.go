package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var positionNamespace = uuid.MustParse("6f1c3c1e-52a4-4e55-9d64-0d7f3a8e2b10")

// NewPositionID derives a stable id from the opening fill so replays of the
// same candles produce the same ids.
func NewPositionID(runID, symbol string, openedAt time.Time, seq int) string {
	key := fmt.Sprintf("%s|%s|%d|%d", runID, symbol, openedAt.UnixMilli(), seq)
	return uuid.NewSHA1(positionNamespace, []byte(key)).String()
}

// NewOrderID derives an order id scoped to its position.
func NewOrderID(positionID string, role OrderRole, level, seq int) string {
	ns, err := uuid.Parse(positionID)
	if err != nil {
		ns = uuid.NewSHA1(positionNamespace, []byte(positionID))
	}
	return uuid.NewSHA1(ns, []byte(fmt.Sprintf("%s|%d|%d", role, level, seq))).String()
}

// NewRunID returns a random id for a backtest or monitor session.
func NewRunID() string {
	return uuid.NewString()
}
