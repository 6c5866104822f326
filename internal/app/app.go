package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"itn-reports/internal/alerting"
	"itn-reports/internal/api"
	"itn-reports/internal/config"
	"itn-reports/internal/indexer"
	"itn-reports/internal/metrics"
	"itn-reports/internal/scheduler"
	"itn-reports/internal/service"
	"itn-reports/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Registry
	// Out receives command output.
	Out     io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Metrics: metrics.New(),
		Out:     os.Stdout,
	}
}

func (a *App) newSource() (indexer.Source, func()) {
	cfg := a.Config.Indexer
	observer := indexer.CallObserver(a.Metrics.ObserveIndexerCall)

	if cfg.Transport == "rpc" {
		src := indexer.NewRPCSource(indexer.RPCOptions{
			URL:      cfg.RPCURL,
			Timeout:  cfg.RequestTimeout,
			Observer: observer,
		}, a.Logger)
		return src, src.Close
	}

	return indexer.NewHTTPSource(indexer.HTTPOptions{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.RequestTimeout,
		RateLimit:   cfg.RateLimit,
		UserAgent:   cfg.UserAgent,
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
		Observer:    observer,
	}, a.Logger), func() {}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (storage.ObservationStore, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open observation store: %w", err)
	}
	return store, store.Close, nil
}

// newService opens the store and source and wires them into a service.
// The returned closer releases both.
func (a *App) newService(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler, notifier alerting.Notifier) (*service.Service, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	source, closeSource := a.newSource()

	svc := service.New(cfg, sched, store, source, notifier, a.Metrics, a.Logger)
	closer := func() {
		closeSource()
		closeStore()
	}
	return svc, closer, nil
}

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closer, err := a.newService(ctx, a.Config, nil, nil)
	if err != nil {
		return err
	}
	defer closer()

	srvCfg := a.Config.Server
	server := api.NewServer(api.Options{
		ListenAddr:      srvCfg.ListenAddr,
		ReadTimeout:     srvCfg.ReadTimeout,
		WriteTimeout:    srvCfg.WriteTimeout,
		RequestTimeout:  srvCfg.RequestTimeout,
		AllowedOrigins:  srvCfg.AllowedOrigins,
		DefaultStart:    a.Config.Report.DefaultStart,
		DefaultEnd:      a.Config.Report.DefaultEnd,
		DefaultMinStake: a.Config.Indexer.MinStake,
	}, svc, a.Metrics, a.Logger)

	a.Logger.Info().Str("database", a.Config.Database.Driver).Str("indexer", a.Config.Indexer.Transport).Msg("starting api")
	if err := server.ListenAndServe(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("api terminated with error")
		return err
	}
	a.Logger.Info().Msg("api stopped")
	return nil
}

// Watch executes the long-running scheduled reporting service.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToBucket:  a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if a.Config.Alerting.Enabled && notifier == nil {
		a.Logger.Warn().Msg("alerting enabled but no channel configured; alerts disabled")
	}

	svc, closer, err := a.newService(ctx, a.Config, sched, notifier)
	if err != nil {
		return err
	}
	defer closer()

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting report watcher")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("report watcher stopped")
	return nil
}

// ReportOptions configure the report command.
type ReportOptions struct {
	Start   string
	End     string
	CSVPath string
	PNGPath string
	Quiet   bool
}

// HoldersOptions configure the holders command.
type HoldersOptions struct {
	MinStake  *int64
	LicenseNo string
	Sort      string
	CSVPath   string
	JSON      bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From    string
	To      string
	DryRun  bool
	Workers int
}
