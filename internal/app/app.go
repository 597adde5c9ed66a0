package app

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-cat/internal/data/db"
	"github.com/yungbote/neurobridge-cat/internal/observability"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services

	closers       []func() error
	otelShutdown  func(context.Context) error
	cancelMetrics context.CancelFunc
}

// New loads the bank, plan, norms and forms named by cfg and wires the
// runner with its ledger and recorder.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*App, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)

	if cfg.Persistent() {
		svc, err := db.Open(db.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Verbose: cfg.DBDebug}, log)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "init database")
		}
		a.closers = append(a.closers, svc.Close)
		if err := svc.AutoMigrateAll(); err != nil {
			a.Close()
			return nil, errors.Wrap(err, "database automigrate")
		}
		a.DB = svc.DB()
	}
	a.Repos = wireRepos(a.DB, log)

	services, closers, err := wireServices(ctx, cfg, a.Repos, log)
	a.closers = append(a.closers, closers...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = services
	return a, nil
}

// Start serves /metrics when metrics are enabled and an address is set.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancelMetrics != nil || a.Services.Metrics == nil || a.Cfg.MetricsAddr == "" {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancelMetrics = cancel
	a.Services.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancelMetrics != nil {
		a.cancelMetrics()
		a.cancelMetrics = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
		a.otelShutdown = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	a.Log.Sync()
}
