package app

import (
	"context"
	"strings"

	"github.com/yungbote/neurobridge-cat/internal/assessment/bank"
	"github.com/yungbote/neurobridge-cat/internal/assessment/exposure"
	"github.com/yungbote/neurobridge-cat/internal/assessment/runner"
	"github.com/yungbote/neurobridge-cat/internal/assessment/scoring"
	"github.com/yungbote/neurobridge-cat/internal/clients/redis"
	assessmentrepo "github.com/yungbote/neurobridge-cat/internal/data/repos/assessment"
	"github.com/yungbote/neurobridge-cat/internal/observability"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

type Services struct {
	Bank    *bank.Bank
	Forms   *bank.FormSet
	Plan    *runner.Plan
	Scorer  *scoring.Scorer
	Ledger  *exposure.Tracker
	Runner  *runner.Runner
	Metrics *observability.Metrics
}

func wireServices(ctx context.Context, cfg Config, reposet Repos, log *logger.Logger) (Services, []func() error, error) {
	log.Info("Wiring services...")
	var closers []func() error

	b, err := bank.Load(cfg.BankPath)
	if err != nil {
		return Services{}, closers, err
	}
	log.Info("item bank loaded", "items", b.Len(), "summary", b.Summary())

	var forms *bank.FormSet
	if strings.TrimSpace(cfg.FormsPath) != "" {
		if forms, err = bank.LoadForms(cfg.FormsPath); err != nil {
			return Services{}, closers, err
		}
		if err := forms.Validate(b); err != nil {
			return Services{}, closers, err
		}
		log.Info("forms loaded", "forms", forms.IDs())
	}

	plan, err := runner.LoadPlan(cfg.PlanPath)
	if err != nil {
		return Services{}, closers, err
	}
	if err := plan.Validate(b); err != nil {
		return Services{}, closers, err
	}

	var pack *scoring.NormPack
	if strings.TrimSpace(cfg.NormPackPath) != "" {
		if pack, err = scoring.LoadNormPack(cfg.NormPackPath); err != nil {
			return Services{}, closers, err
		}
		log.Info("norm pack loaded", "version", pack.Version)
	} else {
		log.Warn("no norm pack configured; scoring with the baseline mapping")
	}
	scorer := scoring.NewScorer(pack, cfg.CompositeDefaultSEM, log)

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	store, closeStore, err := wireLedger(cfg, reposet, log)
	if err != nil {
		return Services{}, closers, err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	tracker := exposure.NewTracker(store, log, metrics)
	tracker.Warm(ctx)

	deps := runner.Deps{
		Bank:    b,
		Forms:   forms,
		Ledger:  tracker,
		Scorer:  scorer,
		Metrics: metrics,
		Log:     log,
	}
	if reposet.Session != nil {
		deps.Recorder = assessmentrepo.NewSessionRecorder(reposet.Session)
	}
	if reposet.ItemExclusion != nil {
		deps.Exclusions = reposet.ItemExclusion
	}

	return Services{
		Bank:    b,
		Forms:   forms,
		Plan:    plan,
		Scorer:  scorer,
		Ledger:  tracker,
		Runner:  runner.New(deps),
		Metrics: metrics,
	}, closers, nil
}

func wireLedger(cfg Config, reposet Repos, log *logger.Logger) (exposure.Ledger, func() error, error) {
	switch cfg.Ledger {
	case LedgerDB:
		if reposet.ItemExposure == nil {
			return nil, nil, errors.Mark(errors.New("CAT_LEDGER=db requires a database"), errors.ErrConfig)
		}
		log.Info("exposure ledger: database")
		return assessmentrepo.NewExposureLedger(reposet.ItemExposure), nil, nil
	case LedgerRedis:
		l, err := redis.NewExposureLedger(redis.ExposureLedgerConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("exposure ledger: redis", "key", cfg.RedisKey)
		return l, l.Close, nil
	default:
		log.Info("exposure ledger: memory")
		return exposure.NewMemory(), nil, nil
	}
}
