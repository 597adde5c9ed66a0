package app

import (
	"strings"

	"github.com/yungbote/neurobridge-cat/internal/observability"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/envutil"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

const (
	LedgerMemory = "memory"
	LedgerDB     = "db"
	LedgerRedis  = "redis"
)

type Config struct {
	LogMode string

	DBDriver string
	DBDSN    string
	DBDebug  bool

	Ledger        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	BankPath     string
	PlanPath     string
	NormPackPath string
	FormsPath    string

	CompositeDefaultSEM float64

	MetricsEnabled bool
	MetricsAddr    string

	Otel observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:             envutil.String("LOG_MODE", "development"),
		DBDriver:            strings.ToLower(envutil.String("CAT_DB_DRIVER", "")),
		DBDSN:               envutil.String("CAT_DB_DSN", ""),
		DBDebug:             envutil.Bool("CAT_DB_DEBUG", false),
		Ledger:              strings.ToLower(envutil.String("CAT_LEDGER", LedgerMemory)),
		RedisAddr:           envutil.String("REDIS_ADDR", ""),
		RedisPassword:       envutil.String("REDIS_PASSWORD", ""),
		RedisDB:             envutil.Int("REDIS_DB", 0),
		RedisKey:            envutil.String("CAT_REDIS_KEY", "cat:exposure"),
		BankPath:            envutil.String("CAT_BANK_PATH", ""),
		PlanPath:            envutil.String("CAT_PLAN_PATH", ""),
		NormPackPath:        envutil.String("CAT_NORM_PACK_PATH", ""),
		FormsPath:           envutil.String("CAT_FORMS_PATH", ""),
		CompositeDefaultSEM: envutil.Float("CAT_COMPOSITE_DEFAULT_SEM", 0.3),
		MetricsEnabled:      envutil.Bool("METRICS_ENABLED", false),
		MetricsAddr:         envutil.String("METRICS_ADDR", ""),
		Otel:                observability.OtelConfigFromEnv(),
	}
	if log != nil {
		log.Debug("config loaded",
			"db_driver", cfg.DBDriver,
			"ledger", cfg.Ledger,
			"bank_path", cfg.BankPath,
			"plan_path", cfg.PlanPath,
			"metrics_enabled", cfg.MetricsEnabled,
			"otel_enabled", cfg.Otel.Enabled,
		)
	}
	return cfg
}

// Persistent reports whether sessions and exposure counts go to a database.
func (c Config) Persistent() bool {
	return c.DBDriver != "" || c.Ledger == LedgerDB
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BankPath) == "" {
		return errors.Mark(errors.New("CAT_BANK_PATH is required"), errors.ErrConfig)
	}
	switch c.Ledger {
	case LedgerMemory, LedgerDB:
	case LedgerRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.Mark(errors.New("CAT_LEDGER=redis requires REDIS_ADDR"), errors.ErrConfig)
		}
	default:
		return errors.Mark(errors.Newf("unknown CAT_LEDGER %q; expected memory, db or redis", c.Ledger), errors.ErrConfig)
	}
	if c.CompositeDefaultSEM <= 0 {
		return errors.Mark(errors.Newf("CAT_COMPOSITE_DEFAULT_SEM must be positive, got %v", c.CompositeDefaultSEM), errors.ErrConfig)
	}
	return nil
}
