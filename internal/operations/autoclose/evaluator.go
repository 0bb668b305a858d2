package autoclose

import (
	"log/slog"
	"sort"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/stoploss"
)

// Evaluation is the folded outcome of the rule list. Close is the first
// closing decision, Warning the first non-closing one seen before it.
type Evaluation struct {
	Close   *Decision
	Warning *Decision
	Result  models.ExecutionResult
}

type Evaluator struct {
	rules  []Rule
	closer *stoploss.Manager
	logger *slog.Logger
}

// NewEvaluator orders rules by descending priority. Rules sharing a
// priority keep the order they were passed in.
func NewEvaluator(closer *stoploss.Manager, logger *slog.Logger, rules ...Rule) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	ordered := append([]Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})
	return &Evaluator{
		rules:  ordered,
		closer: closer,
		logger: logger.With(slog.String("component", "autoclose")),
	}
}

func (e *Evaluator) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Check folds the rules without touching the position.
func (e *Evaluator) Check(pos *models.Position, snap Snapshot) Evaluation {
	var ev Evaluation
	for _, rule := range e.rules {
		d := rule.Check(pos, snap)
		if d == nil {
			continue
		}
		if d.ShouldClose {
			ev.Close = d
			return ev
		}
		if d.Warning && ev.Warning == nil {
			ev.Warning = d
		}
	}
	return ev
}

// Evaluate applies the rule set once. When a rule closes, the position is
// closed at snap.Price after its pending orders are canceled.
func (e *Evaluator) Evaluate(pos *models.Position, snap Snapshot) Evaluation {
	if !pos.IsOpen() {
		return Evaluation{Result: models.NotExecuted("position not open")}
	}
	ev := e.Check(pos, snap)
	if ev.Close == nil {
		if ev.Warning != nil {
			e.logger.Warn("auto-close warning",
				slog.String("position_id", pos.ID),
				slog.String("rule", ev.Warning.Rule),
				slog.String("message", ev.Warning.Message),
			)
			ev.Result = models.NotExecuted(ev.Warning.Message)
			return ev
		}
		ev.Result = models.NotExecuted("no auto-close rule triggered")
		return ev
	}

	e.logger.Info("auto-close triggered",
		slog.String("position_id", pos.ID),
		slog.String("rule", ev.Close.Rule),
		slog.Int("priority", ev.Close.Priority),
		slog.String("message", ev.Close.Message),
	)
	tick := models.Tick{Symbol: pos.Symbol, Price: snap.Price, Time: snap.Time}
	ev.Result = e.closer.Close(pos, tick, ev.Close.Reason)
	return ev
}
