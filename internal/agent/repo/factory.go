package repo

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Chative-support-agent/server/internal/agent/model"
	logx "github.com/Chative-support-agent/server/pkg/logger"
	pkgredis "github.com/Chative-support-agent/server/pkg/redis"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// NewStore builds the conversation store selected by STORE_BACKEND. The returned
// close func releases the underlying connection.
func NewStore(ctx context.Context, cfg model.StoreConfig, redisCfg pkgredis.Config) (model.ConversationStore, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		logx.Warn().Msg("Using in-memory conversation store; records are lost on restart")
		return NewMemoryStore(), noop, nil

	case BackendRedis:
		rdb, err := redisCfg.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		logx.Info().Dur("ttl", cfg.TTL).Msg("Using Redis conversation store")
		return NewRedisStore(rdb, cfg.TTL), rdb.Close, nil

	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres: POSTGRES_DSN is empty")
		}
		db, err := OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewSQLStore(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		logx.Info().Msg("Using Postgres conversation store")
		return store, sqlDB.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
}

// OpenPostgres connects gorm to Postgres with warnings routed to the service logger.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return db, nil
}

func newGormLogger() gormLogger.Interface {
	return gormLogger.New(
		log.New(logx.With("gorm"), "", 0),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
