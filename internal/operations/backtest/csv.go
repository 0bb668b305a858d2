package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

// WriteCSV writes one row per closed trade to path.
func WriteCSV(trades []Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteTrades(f, trades); err != nil {
		return err
	}
	return f.Close()
}

// WriteTrades writes the CSV header and one row per trade to out.
func WriteTrades(out io.Writer, trades []Trade) error {
	w := csv.NewWriter(out)
	_ = w.Write([]string{
		"position_id", "symbol", "side", "leverage", "entry_time", "exit_time", "entry_qty",
		"avg_entry", "exit", "pnl", "fees", "dca_fills", "tp_fills", "exit_reason",
	})
	for _, t := range trades {
		_ = w.Write([]string{
			t.PositionID, t.Symbol, string(t.Side), formatF(t.Leverage),
			t.EntryTime.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339),
			formatF(t.EntryQty), formatF(t.AvgEntryPrice), formatF(t.ExitPrice),
			formatF(t.PnL), formatF(t.Fees),
			strconv.Itoa(t.DCAFills), strconv.Itoa(t.TPFills), t.ExitReason.String(),
		})
	}
	w.Flush()
	return w.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
