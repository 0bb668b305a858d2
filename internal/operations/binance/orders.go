package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"TradeCore/internal/models"
	"TradeCore/internal/operations/costs"

	"github.com/adshao/go-binance/v2/futures"
)

// OrderGateway hands intended orders to Binance USDⓈ-M futures. Client order
// ids are the OrderRef ids, so a resubmitted order is rejected as a duplicate
// instead of filling twice.
type OrderGateway struct {
	client   *BinanceClient
	lotStep  float64
	tickSize float64
}

func NewOrderGateway(client *BinanceClient, lotStep, tickSize float64) *OrderGateway {
	return &OrderGateway{client: client, lotStep: lotStep, tickSize: tickSize}
}

// Submit places order. ENTRY, SL and triggered closes go out as market
// orders; resting DCA rungs as GTC limits. Exits are reduce-only.
func (g *OrderGateway) Submit(ctx context.Context, order models.OrderRef) (string, error) {
	qty := costs.FormatQuantity(order.Quantity, g.lotStep)
	if qty == "0" {
		return "", fmt.Errorf("order %s quantity %v below lot step: %w", order.ID, order.Quantity, models.ErrInvalidConfig)
	}

	svc := g.client.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(sideType(order.Side)).
		Quantity(qty).
		NewClientOrderID(order.ID)

	exit := order.Metadata.Role == models.OrderRoleTP || order.Metadata.Role == models.OrderRoleSL
	if exit {
		svc = svc.ReduceOnly(true)
	}
	resting := order.Status == models.OrderStatusNew && order.Metadata.Role == models.OrderRoleDCA && order.Price > 0
	if resting {
		price := strconv.FormatFloat(costs.RoundPrice(order.Price, g.tickSize), 'f', -1, 64)
		svc = svc.Type(futures.OrderTypeLimit).TimeInForce(futures.TimeInForceTypeGTC).Price(price)
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	var resp *futures.CreateOrderResponse
	err := g.client.withRetry(ctx, "create order "+order.ID, func() error {
		var err error
		resp, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	g.client.logger.Info("order submitted",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("role", string(order.Metadata.Role)),
		slog.Int64("exchange_id", resp.OrderID),
	)
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// Cancel cancels a resting order by its client order id.
func (g *OrderGateway) Cancel(ctx context.Context, order models.OrderRef) error {
	return g.client.withRetry(ctx, "cancel order "+order.ID, func() error {
		_, err := g.client.client.NewCancelOrderService().
			Symbol(order.Symbol).
			OrigClientOrderID(order.ID).
			Do(ctx)
		return err
	})
}

func sideType(side models.Side) futures.SideType {
	if side == models.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}
