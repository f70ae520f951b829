package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/axellelanca/funnelstats/internal/analytics"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/models"
)

// GormAnalyticsRepository est l'implémentation de AnalyticsRepository utilisant GORM.
// Les filtres sont poussés vers SQL, y compris pour les événements sans session.
type GormAnalyticsRepository struct {
	db     *gorm.DB
	source string
}

// NewAnalyticsRepository crée et retourne une nouvelle instance de GormAnalyticsRepository.
func NewAnalyticsRepository(db *gorm.DB) *GormAnalyticsRepository {
	return &GormAnalyticsRepository{db: db, source: db.Dialector.Name()}
}

// Source retourne le nom du dialecte SQL (sqlite, postgres).
func (r *GormAnalyticsRepository) Source() string {
	return r.source
}

// Snapshot récupère les sessions et les événements correspondant aux filtres.
func (r *GormAnalyticsRepository) Snapshot(ctx context.Context, filters analytics.Filters) (Snapshot, error) {
	var sessions []models.Session
	q := withFilters(r.db.WithContext(ctx).Model(&models.Session{}), filters)
	if err := q.Order("analytics_sessions.created_at DESC").Find(&sessions).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to retrieve sessions: %w", err)
	}

	// LEFT JOIN: an event without session row sees NULL attributes, which
	// the COALESCE in withFilters turns into the defaults.
	var events []models.Event
	q = r.db.WithContext(ctx).
		Model(&models.Event{}).
		Select("analytics_events.*").
		Joins("LEFT JOIN analytics_sessions ON analytics_sessions.session_id = analytics_events.session_id")
	q = withFilters(q, filters)
	if err := q.Preload("Content").Preload("Search").
		Order("analytics_events.occurred_at ASC").
		Find(&events).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to retrieve events: %w", err)
	}

	out := Snapshot{
		Sessions: make([]analytics.Session, 0, len(sessions)),
		Events:   make([]analytics.RawEvent, 0, len(events)),
	}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, toAnalyticsSession(s))
	}
	for _, e := range events {
		out.Events = append(out.Events, toRawEvent(e))
	}
	return out, nil
}

// SessionEvents récupère tous les événements d'une session, du plus ancien au plus récent.
func (r *GormAnalyticsRepository) SessionEvents(ctx context.Context, sessionID string) ([]analytics.RawEvent, error) {
	var events []models.Event
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Preload("Content").Preload("Search").
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events for session %s: %w", sessionID, err)
	}

	out := make([]analytics.RawEvent, 0, len(events))
	for _, e := range events {
		out = append(out, toRawEvent(e))
	}
	return out, nil
}

// FindSession récupère une session par son identifiant public.
func (r *GormAnalyticsRepository) FindSession(ctx context.Context, sessionID string) (analytics.Session, error) {
	var s models.Session
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return analytics.Session{}, fmt.Errorf("%w: %s", customerrors.ErrSessionNotFound, sessionID)
		}
		return analytics.Session{}, fmt.Errorf("failed to retrieve session %s: %w", sessionID, err)
	}
	return toAnalyticsSession(s), nil
}

// withFilters compares against the defaulted attributes, like analytics.Filters.Match.
func withFilters(q *gorm.DB, filters analytics.Filters) *gorm.DB {
	if filters.Country != "" {
		q = q.Where("COALESCE(NULLIF(analytics_sessions.country, ''), ?) = ?", analytics.DefaultCountry, filters.Country)
	}
	if filters.Source != "" {
		q = q.Where("COALESCE(NULLIF(analytics_sessions.source, ''), ?) = ?", analytics.DefaultSource, filters.Source)
	}
	return q
}
