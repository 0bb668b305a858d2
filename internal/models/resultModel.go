package models

// ExecutionResult is what every lifecycle operation returns. Not-executed
// outcomes (trigger not met, level consumed, insufficient balance) carry a
// Reason and no error; Err is reserved for invariant violations.
type ExecutionResult struct {
	Executed     bool
	Reason       string
	Err          error
	Position     *Position
	Fills        []OrderRef
	Canceled     []OrderRef
	RealizedPnl  float64
	BalanceDelta float64
}

func NotExecuted(reason string) ExecutionResult {
	return ExecutionResult{Reason: reason}
}

func Failed(err error) ExecutionResult {
	return ExecutionResult{Reason: err.Error(), Err: err}
}
