package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenPostgres connects to Postgres through gorm. Callers migrate their own
// models (see queue.NewGormStore and library.NewGormStore).
func OpenPostgres(ctx context.Context, dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return gdb, nil
}

// CheckPostgresHealth pings the pool behind gdb.
func CheckPostgresHealth(ctx context.Context, gdb *gorm.DB) (Health, error) {
	health := Health{Driver: "postgres", Location: gdb.Name(), SchemaVersion: SchemaVersion}
	sqlDB, err := gdb.DB()
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping postgres: %w", err)
	}
	health.Readable = true
	health.IntegrityCheck = true
	return health, nil
}
