// Package app opens the backing store selected by database.driver.
package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/axellelanca/funnelstats/internal/config"
	"github.com/axellelanca/funnelstats/internal/database"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/logging"
	"github.com/axellelanca/funnelstats/internal/repository"
)

// Store bundles the repositories of one backing store.
type Store struct {
	Analytics repository.AnalyticsRepository
	// Tracking is nil on read-only stores (supabase, clickhouse).
	Tracking repository.TrackingRepository
	// DB is set for the SQL drivers only.
	DB *gorm.DB

	close func() error
}

// Close releases the connections of the store.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore connects to the store named by cfg.Database.Driver. SQL stores are
// migrated when migrate is set.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool) (*Store, error) {
	driver := cfg.Database.Driver
	log := logging.With("app")

	switch {
	case database.IsSQL(driver):
		db, err := database.Open(cfg)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(db); err != nil {
				database.Close(db)
				return nil, err
			}
		}
		log.Info().Str("driver", db.Dialector.Name()).Msg("SQL store opened")
		return &Store{
			Analytics: repository.NewAnalyticsRepository(db),
			Tracking:  repository.NewTrackingRepository(db),
			DB:        db,
			close:     func() error { return database.Close(db) },
		}, nil

	case driver == "supabase":
		client, err := repository.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.Key)
		if err != nil {
			return nil, err
		}
		log.Info().Str("url", cfg.Supabase.URL).Msg("Supabase store opened")
		return &Store{Analytics: repository.NewSupabaseAnalyticsRepository(client)}, nil

	case driver == "clickhouse":
		conn, err := repository.OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.ClickHouse.Addr).Msg("ClickHouse store opened")
		return &Store{
			Analytics: repository.NewClickHouseAnalyticsRepository(conn),
			close:     conn.Close,
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", customerrors.ErrUnsupportedDriver, driver)
}
