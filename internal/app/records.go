package app

import (
	"context"

	"perp-basis-alerts/internal/report"
)

// ListRecords prints every alert record in the configured store.
func (a *App) ListRecords(ctx context.Context) error {
	h, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer h.close()

	report.NewPrinter(a.Out).Records(h.store.Records())
	return nil
}

// ClearRecords empties the configured store so every token alerts again.
func (a *App) ClearRecords(ctx context.Context) (int, error) {
	h, err := a.openStore(ctx, true)
	if err != nil {
		return 0, err
	}
	defer h.close()

	cleared := h.store.Len()
	if err := h.store.Clear(ctx); err != nil {
		return 0, err
	}
	a.Logger.Info().Int("cleared", cleared).Msg("alert records cleared")
	return cleared, nil
}
