package costs

import (
	"strconv"

	"TradeCore/internal/models"
)

const (
	lcgMultiplier uint32 = 1664525
	lcgIncrement  uint32 = 1013904223
	twoPow32             = 4294967296.0
)

// Seed hashes (timestamp, symbol[, role]) into a 32-bit seed with the
// classic h*31+c string hash.
func Seed(timestampMs int64, symbol, role string) uint32 {
	key := strconv.FormatInt(timestampMs, 10) + symbol
	if role != "" {
		key += "-" + role
	}
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return h
}

// NextLCG advances the generator: seed*1664525 + 1013904223 mod 2^32.
func NextLCG(seed uint32) uint32 {
	return seed*lcgMultiplier + lcgIncrement
}

// Uniform maps the next generator state into [0, 1).
func Uniform(seed uint32) float64 {
	return float64(NextLCG(seed)) / twoPow32
}

// SlippagePct draws slip% in [0, maxPct) for the given inputs.
func SlippagePct(timestampMs int64, symbol, role string, maxPct float64) float64 {
	if maxPct <= 0 {
		return 0
	}
	u := Uniform(Seed(timestampMs, symbol, role))
	return u * maxPct
}

// ApplySlippage perturbs price against the trader: buys pay more, sells
// receive less.
func ApplySlippage(price float64, side models.Side, timestampMs int64, symbol, role string, maxPct float64) float64 {
	slip := SlippagePct(timestampMs, symbol, role, maxPct) / 100
	if side == models.SideSell {
		return price * (1 - slip)
	}
	return price * (1 + slip)
}
