package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/axellelanca/funnelstats/internal/models"
)

// GormTrackingRepository est l'implémentation de l'interface TrackingRepository utilisant GORM.
type GormTrackingRepository struct {
	db *gorm.DB
}

// NewTrackingRepository crée et retourne une nouvelle instance de GormTrackingRepository.
func NewTrackingRepository(db *gorm.DB) *GormTrackingRepository {
	return &GormTrackingRepository{db: db}
}

// CreateSession insère une session; une session déjà connue n'est pas modifiée.
func (r *GormTrackingRepository) CreateSession(ctx context.Context, session *models.Session) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "session_id"}}, DoNothing: true}).
		Create(session)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create session %s: %w", session.SessionID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CreateEvent insère un nouvel événement dans la base de données.
func (r *GormTrackingRepository) CreateEvent(ctx context.Context, event *models.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}
