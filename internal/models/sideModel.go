package models

import (
	"fmt"
	"strings"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Sign is +1 for buy and -1 for sell.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == SideSell {
		return SideBuy
	}
	return SideSell
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide accepts buy/sell as well as the long/short spelling used by strategies.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return SideBuy, nil
	case "sell", "short":
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// OrderType selects the fee schedule for a fill.
type OrderType string

const (
	OrderTypeMaker OrderType = "maker"
	OrderTypeTaker OrderType = "taker"
)
