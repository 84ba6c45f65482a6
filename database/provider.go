package database

import (
	"fmt"
	"strings"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type ModelsOption struct {
	models []any
}

func WithModels(models ...any) *ModelsOption {
	return &ModelsOption{models: models}
}

// Append returns a new option holding the models of both.
func (m *ModelsOption) Append(models ...any) *ModelsOption {
	if m == nil {
		return WithModels(models...)
	}
	merged := make([]any, 0, len(m.models)+len(models))
	merged = append(merged, m.models...)
	merged = append(merged, models...)
	return &ModelsOption{models: merged}
}

func ProvideDatabase(cfg config.Config, modelsOpt *ModelsOption, logger *logging.Service) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel(cfg.Log.Level)),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.Database.DSN)
	case "mysql":
		dialector = mysql.Open(mysqlDSN(cfg.Database.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Database.Driver)
	}

	if logger != nil {
		logger.Info("connecting to database", zap.String("driver", cfg.Database.Driver))
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		if logger != nil {
			logger.Error("failed to connect to database", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// each connection to an in-memory sqlite database sees its own empty database
	if cfg.Database.Driver == "sqlite" && strings.Contains(cfg.Database.DSN, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if cfg.Database.AutoMigrate && modelsOpt != nil && len(modelsOpt.models) > 0 {
		if err := db.AutoMigrate(modelsOpt.models...); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
		}
		if logger != nil {
			logger.Info("database migrated", zap.Int("models", len(modelsOpt.models)))
		}
	}

	return db, nil
}

// mysqlDSN makes sure DATETIME columns scan into time.Time.
func mysqlDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return gormlogger.Info
	case "warn":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}
