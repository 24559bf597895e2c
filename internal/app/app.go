package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"perp-basis-alerts/internal/alerting"
	"perp-basis-alerts/internal/config"
	"perp-basis-alerts/internal/dedup"
	"perp-basis-alerts/internal/fetcher"
	"perp-basis-alerts/internal/metrics"
	"perp-basis-alerts/internal/registry"
	"perp-basis-alerts/internal/report"
	"perp-basis-alerts/internal/scheduler"
	"perp-basis-alerts/internal/service"
	"perp-basis-alerts/internal/storage"
	"perp-basis-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFetcher() fetcher.TickerFetcher {
	ua := a.Config.Bybit.UserAgent
	if ua == "" {
		ua = version.UserAgent(a.Config.App.Name)
	}
	return fetcher.NewBybit(fetcher.BybitOptions{
		BaseURL:      a.Config.Bybit.BaseURL,
		Category:     a.Config.Bybit.Category,
		Timeout:      a.Config.Bybit.RequestTimeout,
		RateLimitRPS: a.Config.Bybit.RateLimitRPS,
		UserAgent:    ua,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	var notifiers []alerting.Notifier
	if cfg.Console {
		notifiers = append(notifiers, alerting.NewConsoleNotifier(a.Out))
	}
	if cfg.Speech {
		notifiers = append(notifiers, alerting.NewSpeechNotifier(a.Logger))
	}
	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg.Discord.Enabled {
		notifiers = append(notifiers, alerting.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Timeout, a.Logger))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewMulti(notifiers...)
}

// loadRegistry never fails: a broken registry file yields an empty index so
// detection and the raw tables keep working.
func (a *App) loadRegistry() registry.Index {
	idx, err := registry.Load(a.Config.Registry.Path)
	if err != nil {
		var cfgErr *registry.ConfigError
		if errors.As(err, &cfgErr) {
			a.Logger.Error().Err(cfgErr.Err).Str("file", cfgErr.Path).Msg("venue registry unusable; continuing without venues")
		} else {
			a.Logger.Error().Err(err).Msg("venue registry unusable; continuing without venues")
		}
		return registry.Index{}
	}
	a.Logger.Info().Int("tokens", len(idx)).Str("file", a.Config.Registry.Path).Msg("venue registry loaded")
	return idx
}

// storeHandle bundles an opened record store with its optional lock and closer.
type storeHandle struct {
	store  *dedup.Store
	locker storage.AdvisoryLocker
	close  func()
}

func (a *App) backend(ctx context.Context) (dedup.Backend, storage.AdvisoryLocker, func(), error) {
	switch a.Config.Dedup.Backend {
	case "postgres":
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		pg := storage.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("could not ensure alert_records schema")
		}
		return pg, pg, pg.Close, nil
	case "redis":
		rdb, err := storage.NewRedisClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return storage.NewRedis(rdb, a.Config.Dedup.RedisKey), nil, func() { _ = rdb.Close() }, nil
	default:
		return dedup.NewFile(a.Config.Dedup.Path), nil, func() {}, nil
	}
}

func (a *App) openStore(ctx context.Context, persist bool) (*storeHandle, error) {
	backend, locker, closer, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}

	store, err := dedup.Open(ctx, backend, dedup.Options{Persist: persist})
	if err != nil {
		a.Logger.Warn().Err(err).Str("backend", backend.Name()).Msg("alert records unreadable; starting empty")
	}
	if !persist {
		a.Logger.Debug().Str("backend", backend.Name()).Msg("alert record persistence disabled")
	}
	return &storeHandle{store: store, locker: locker, close: closer}, nil
}

func (a *App) newService(h *storeHandle, sched *scheduler.Scheduler, m *metrics.Metrics) *service.Service {
	return service.New(a.Config, service.Deps{
		Scheduler: sched,
		Fetcher:   a.newFetcher(),
		Index:     a.loadRegistry(),
		Store:     h.store,
		Notifier:  a.newNotifier(),
		Printer:   report.NewPrinter(a.Out),
		Metrics:   m,
		Locker:    h.locker,
	}, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := a.openStore(ctx, a.Config.Dedup.Persist)
	if err != nil {
		return err
	}
	defer h.close()

	var m *metrics.Metrics
	if a.Config.Metrics.Enabled {
		m = metrics.New()
	}

	printer := report.NewPrinter(a.Out)
	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		MinSleep:     a.Config.Scheduler.MinSleep,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		OnSleep:      printer.NextCheck,
	}, a.Logger)

	svc := a.newService(h, sched, m)

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Str("version", version.Version).
		Bool("persist", a.Config.Dedup.Persist).
		Msg("starting monitoring service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return svc.Run(gctx)
	})
	if m != nil {
		g.Go(func() error {
			return metrics.Serve(gctx, a.Config.Metrics.Addr, m, a.Logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ScanOptions configure a single polling cycle.
type ScanOptions struct {
	NoNotify bool
	Timeout  time.Duration
}

// Scan runs exactly one polling cycle.
func (a *App) Scan(ctx context.Context, opts ScanOptions) (service.CycleResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	h, err := a.openStore(ctx, a.Config.Dedup.Persist)
	if err != nil {
		return service.CycleResult{}, err
	}
	defer h.close()

	svc := a.newService(h, nil, nil)
	if opts.NoNotify {
		svc.DisableNotifications()
	}
	return svc.RunCycle(ctx)
}

// ExportOptions hold parameters for exporting the current candidates.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	MaxRows int
	Upload  bool
}

// SimulateOptions describe a synthetic ticker fed through one cycle.
type SimulateOptions struct {
	Symbol      string
	MarkPrice   string
	IndexPrice  string
	FundingRate string
	Platform    string
	VenueType   string
}
