package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/axellelanca/funnelstats/internal/config"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/models"
)

// IsSQL reports whether driver is served through GORM.
func IsSQL(driver string) bool {
	return driver == "" || driver == "sqlite" || driver == "postgres"
}

// Open connects GORM to the SQLite file or Postgres DSN of the configuration.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.Database.Name)
	case "postgres":
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("database.dsn is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", customerrors.ErrUnsupportedDriver, cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// events may reference sessions and blogs that were never stored
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		Logger:                                   logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.Driver == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// Migrate creates or updates the analytics and content tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
