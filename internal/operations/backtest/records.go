package backtest

import "TradeCore/internal/models"

// RunRecord is the persisted summary of the run.
func (r *BacktestResults) RunRecord() models.BacktestRun {
	return models.BacktestRun{
		ID:             r.RunID,
		Exchange:       r.Config.Exchange,
		Symbol:         r.Symbol,
		TimeFrame:      r.TimeFrame,
		Status:         string(r.Status),
		Error:          r.Error,
		StartTime:      r.Config.StartTime,
		EndTime:        r.Config.EndTime,
		InitialCapital: r.Config.InitialBalance,
		FinalEquity:    r.Metrics.FinalEquity,
		TotalReturnPct: r.Metrics.TotalReturnPct,
		MaxDrawdownPct: r.Metrics.MaxDrawdownPct,
		WinRate:        r.Metrics.WinRate,
		ProfitFactor:   r.Metrics.ProfitFactor,
		SharpeRatio:    r.Metrics.SharpeRatio,
		TotalTrades:    r.Metrics.TotalTrades,
		Candles:        r.Metadata.CandlesProcessed,
		Signals:        r.Metadata.SignalsGenerated,
		ExecutionMs:    r.Metadata.ExecutionTimeMs,
	}
}

// TradeRecords flattens closed trades and their orders for storage.
func (r *BacktestResults) TradeRecords() []models.TradeRecord {
	out := make([]models.TradeRecord, 0, len(r.Trades))
	for _, t := range r.Trades {
		if t.Position != nil {
			out = append(out, models.NewTradeRecord(r.RunID, t.Position))
			continue
		}
		out = append(out, models.TradeRecord{
			ID:            t.PositionID,
			RunID:         r.RunID,
			Symbol:        t.Symbol,
			Side:          string(t.Side),
			Leverage:      t.Leverage,
			EntryQty:      t.EntryQty,
			AvgEntryPrice: t.AvgEntryPrice,
			ExitPrice:     t.ExitPrice,
			PnL:           t.PnL,
			Fees:          t.Fees,
			DCAFills:      t.DCAFills,
			TPFills:       t.TPFills,
			ExitReason:    t.ExitReason.String(),
			OpenTime:      t.EntryTime,
			CloseTime:     t.ExitTime,
		})
	}
	return out
}

// EquityRecords tags every curve point with the run id.
func (r *BacktestResults) EquityRecords() []models.EquityRecord {
	out := make([]models.EquityRecord, 0, len(r.EquityCurve))
	for _, p := range r.EquityCurve {
		out = append(out, models.EquityRecord{
			RunID:         r.RunID,
			Time:          p.Time,
			Equity:        p.Equity,
			Balance:       p.Balance,
			RealizedPnl:   p.RealizedPnl,
			UnrealizedPnl: p.UnrealizedPnl,
			DrawdownPct:   p.DrawdownPct,
			OpenPositions: p.OpenPositions,
		})
	}
	return out
}
