package models

import "fmt"

// ExitReason is the closed set of reasons a position can leave the book.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitTakeProfit
	ExitStopLoss
	ExitTrailingStop
	ExitTimeout
	ExitKillSwitch
	ExitDrawdown
	ExitDailyLoss
	ExitLiquidation
)

var exitReasonNames = map[ExitReason]string{
	ExitNone:         "none",
	ExitTakeProfit:   "tp",
	ExitStopLoss:     "sl",
	ExitTrailingStop: "trailing_stop",
	ExitTimeout:      "timeout",
	ExitKillSwitch:   "kill_switch",
	ExitDrawdown:     "drawdown",
	ExitDailyLoss:    "daily_loss",
	ExitLiquidation:  "liquidation",
}

func (r ExitReason) String() string {
	if name, ok := exitReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("exit_reason(%d)", int(r))
}

// AutoClose reports whether the reason comes from the auto-close rule set.
func (r ExitReason) AutoClose() bool {
	switch r {
	case ExitKillSwitch, ExitDrawdown, ExitDailyLoss, ExitLiquidation:
		return true
	}
	return false
}

func (r ExitReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ExitReason) UnmarshalText(text []byte) error {
	parsed, err := ParseExitReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func ParseExitReason(s string) (ExitReason, error) {
	for reason, name := range exitReasonNames {
		if name == s {
			return reason, nil
		}
	}
	return ExitNone, fmt.Errorf("unknown exit reason %q", s)
}
