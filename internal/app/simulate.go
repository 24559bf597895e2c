package app

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"perp-basis-alerts/internal/dedup"
	"perp-basis-alerts/internal/engine"
	"perp-basis-alerts/internal/fetcher"
	"perp-basis-alerts/internal/registry"
	"perp-basis-alerts/internal/report"
	"perp-basis-alerts/internal/service"
)

func (a *App) detectOptions() engine.Options {
	quote := a.Config.Detection.QuoteSuffix
	if quote == "" {
		quote = engine.DefaultQuoteSuffix
	}
	return engine.Options{
		DeviationThreshold: decimal.NewFromFloat(a.Config.Detection.DeviationThresholdPct),
		QuoteSuffix:        quote,
	}
}

// SimulateAlert 用一条合成行情跑一次完整周期并触发告警。记录只保存在内存中。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) (service.CycleResult, error) {
	if !a.Config.Alerting.Enabled {
		return service.CycleResult{}, errors.New("alerting 未启用")
	}
	if strings.TrimSpace(opts.Symbol) == "" || strings.TrimSpace(opts.Platform) == "" {
		return service.CycleResult{}, errors.New("--symbol 与 --platform 不能为空")
	}

	token, _ := engine.SplitSymbol(opts.Symbol, a.detectOptions().QuoteSuffix)
	idx, err := registry.Build([]registry.Descriptor{
		{Platform: opts.Platform, Type: opts.VenueType, Pairs: []string{token}},
	})
	if err != nil {
		return service.CycleResult{}, err
	}

	store, err := dedup.Open(ctx, &dedup.Memory{}, dedup.Options{})
	if err != nil {
		return service.CycleResult{}, err
	}

	svc := service.New(a.Config, service.Deps{
		Fetcher: fetcher.Static{Tickers: []engine.Ticker{{
			Symbol:      strings.ToUpper(opts.Symbol),
			MarkPrice:   engine.Number(opts.MarkPrice),
			IndexPrice:  engine.Number(opts.IndexPrice),
			FundingRate: engine.Number(opts.FundingRate),
		}}},
		Index:    idx,
		Store:    store,
		Notifier: a.newNotifier(),
		Printer:  report.NewPrinter(a.Out),
	}, a.Logger)

	return svc.RunCycle(ctx)
}
