// Package db wires the Postgres connection and migrations, grounded on
// the teacher's internal/db/postgres.go (same DSN-from-env shape, same
// gormLogger.Config tuned to ignore ErrRecordNotFound so a polling
// worker's constant "not found" lookups don't flood the log).
package db

import (
	stdlog "log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/domain"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens the Postgres connection described by POSTGRES_HOST/PORT/
// USER/PASSWORD/NAME (defaults: localhost/5432/postgres/""/pipeline).
func New(log *logger.Logger) (*Service, error) {
	svcLog := log.With("service", "PostgresService")

	host := envutil.String("POSTGRES_HOST", "localhost")
	port := envutil.String("POSTGRES_PORT", "5432")
	user := envutil.String("POSTGRES_USER", "postgres")
	password := envutil.String("POSTGRES_PASSWORD", "")
	name := envutil.String("POSTGRES_NAME", "pipeline")

	dsn := "postgres://" + user + ":" + password + "@" + host + ":" + port + "/" + name + "?sslmode=disable"

	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	svcLog.Info("connecting to postgres")
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLog,
	})
	if err != nil {
		svcLog.Error("failed to connect to postgres", "error", err)
		return nil, err
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`).Error; err != nil {
		svcLog.Error("failed to enable pgcrypto extension", "error", err)
		return nil, err
	}

	return &Service{db: conn, log: svcLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

// AutoMigrateAll runs GORM's schema migration for every domain model.
// RESTRICT foreign keys (spec.md §3 invariant 6: a Channel is never
// cascade-deleted out from under its historical Tasks) are declared
// explicitly after AutoMigrate, since GORM's struct tags default to no
// explicit ON DELETE behavior.
func (s *Service) AutoMigrateAll() error {
	if err := s.db.AutoMigrate(&domain.Channel{}, &domain.Task{}, &domain.CostEntry{}); err != nil {
		return err
	}
	return s.db.Exec(`
		ALTER TABLE task
			DROP CONSTRAINT IF EXISTS fk_task_channel,
			ADD CONSTRAINT fk_task_channel FOREIGN KEY (channel_id)
				REFERENCES channel(id) ON DELETE RESTRICT;
	`).Error
}
