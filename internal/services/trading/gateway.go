package trading

import (
	"context"
	"log/slog"
	"sync"

	"TradeCore/internal/models"
)

// PaperGateway accepts every order without touching an exchange.
type PaperGateway struct {
	mu        sync.Mutex
	submitted []models.OrderRef
	canceled  []models.OrderRef
	logger    *slog.Logger
}

func NewPaperGateway(logger *slog.Logger) *PaperGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperGateway{logger: logger.With(slog.String("component", "paper_gateway"))}
}

func (g *PaperGateway) Submit(_ context.Context, order models.OrderRef) (string, error) {
	g.mu.Lock()
	g.submitted = append(g.submitted, order)
	g.mu.Unlock()

	g.logger.Info("paper order",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("role", string(order.Metadata.Role)),
		slog.String("status", string(order.Status)),
		slog.Float64("price", order.Price),
		slog.Float64("qty", order.Quantity),
	)
	return "paper-" + order.ID, nil
}

func (g *PaperGateway) Cancel(_ context.Context, order models.OrderRef) error {
	g.mu.Lock()
	g.canceled = append(g.canceled, order)
	g.mu.Unlock()

	g.logger.Info("paper cancel", slog.String("order_id", order.ID), slog.String("symbol", order.Symbol))
	return nil
}

func (g *PaperGateway) Submitted() []models.OrderRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.OrderRef(nil), g.submitted...)
}

func (g *PaperGateway) Canceled() []models.OrderRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.OrderRef(nil), g.canceled...)
}
