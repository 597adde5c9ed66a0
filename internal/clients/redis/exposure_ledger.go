package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
	"github.com/yungbote/neurobridge-cat/internal/platform/logger"
)

const DefaultExposureKey = "cat:exposure"

type ExposureLedgerConfig struct {
	Addr     string
	Password string
	DB       int
	// Key names the hash holding one field per item id.
	Key string
}

// ExposureLedger keeps item exposure counts in a single Redis hash so that
// every engine process shares them. HINCRBY makes each bump atomic.
type ExposureLedger struct {
	log *logger.Logger
	rdb *goredis.Client
	key string
}

func NewExposureLedger(cfg ExposureLedgerConfig, log *logger.Logger) (*ExposureLedger, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.Mark(errors.New("missing REDIS_ADDR"), errors.ErrConfig)
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = DefaultExposureKey
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Mark(errors.Wrap(err, "redis ping"), errors.ErrPersistence)
	}

	return &ExposureLedger{
		log: log.With("service", "RedisExposureLedger", "key", key),
		rdb: rdb,
		key: key,
	}, nil
}

func (l *ExposureLedger) Count(ctx context.Context, itemID string) (uint32, error) {
	if l == nil || l.rdb == nil {
		return 0, errors.New("redis exposure ledger not initialized")
	}
	n, err := l.rdb.HGet(ctx, l.key, itemID).Uint64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "hget %s", itemID), errors.ErrPersistence)
	}
	return clampCount(n), nil
}

func (l *ExposureLedger) Bump(ctx context.Context, itemID string) error {
	if l == nil || l.rdb == nil {
		return errors.New("redis exposure ledger not initialized")
	}
	if err := l.rdb.HIncrBy(ctx, l.key, itemID, 1).Err(); err != nil {
		return errors.Mark(errors.Wrapf(err, "hincrby %s", itemID), errors.ErrPersistence)
	}
	return nil
}

func (l *ExposureLedger) Snapshot(ctx context.Context) (map[string]uint32, error) {
	if l == nil || l.rdb == nil {
		return nil, errors.New("redis exposure ledger not initialized")
	}
	raw, err := l.rdb.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "hgetall"), errors.ErrPersistence)
	}
	out := make(map[string]uint32, len(raw))
	for id, v := range raw {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			l.log.Warn("Skipping malformed exposure count", "item_id", id, "value", v)
			continue
		}
		out[id] = clampCount(n)
	}
	return out, nil
}

// Reset deletes the hash. Used between simulation batches and in tests.
func (l *ExposureLedger) Reset(ctx context.Context) error {
	return l.rdb.Del(ctx, l.key).Err()
}

func (l *ExposureLedger) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}

func clampCount(n uint64) uint32 {
	if n > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
