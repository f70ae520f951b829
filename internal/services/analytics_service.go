// Package services contains the business logic layer of the funnel analytics application
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/axellelanca/funnelstats/internal/analytics"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/logging"
	"github.com/axellelanca/funnelstats/internal/metrics"
	"github.com/axellelanca/funnelstats/internal/repository"
)

// Dashboard is everything the admin screen of one property shows for a filter pair.
type Dashboard struct {
	Property         string                  `json:"property"`
	Filters          analytics.Filters       `json:"filters"`
	Stats            analytics.GlobalStats   `json:"stats"`
	Sessions         []analytics.SessionView `json:"sessions"`
	ContentBreakdown []analytics.Breakdown   `json:"content_breakdown"`
	SearchBreakdown  []analytics.Breakdown   `json:"search_breakdown"`
	// SkippedEvents counts rows whose raw kind is outside the property vocabulary.
	SkippedEvents int `json:"skipped_events"`
	// Stale is set when the store could not be read and the last good dashboard is served.
	Stale       bool      `json:"stale"`
	Error       string    `json:"error,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AnalyticsOptions configures an AnalyticsService.
type AnalyticsOptions struct {
	// Property selects the raw event vocabulary.
	Property string
	// DetailTTL bounds how long an expanded session detail is memoized; 0 keeps it forever.
	DetailTTL time.Duration
	// StaleTTL bounds how long the last good dashboard is kept for fetch failures; 0 disables it.
	StaleTTL time.Duration
}

// AnalyticsService builds dashboards and session details from an AnalyticsRepository.
// It acts as an intermediary between the HTTP handlers and the backing store.
type AnalyticsService struct {
	repo     repository.AnalyticsRepository
	property analytics.Property
	board    *analytics.Board
	details  *analytics.DetailCache
	lastGood *cache.Cache
	now      func() time.Time
}

// NewAnalyticsService creates and returns a new instance of AnalyticsService.
func NewAnalyticsService(repo repository.AnalyticsRepository, opts AnalyticsOptions) (*AnalyticsService, error) {
	prop, ok := analytics.LookupProperty(opts.Property)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", customerrors.ErrUnknownProperty, opts.Property, analytics.PropertyNames())
	}

	s := &AnalyticsService{
		repo:     repo,
		property: prop,
		details:  analytics.NewDetailCache(opts.DetailTTL),
		now:      time.Now,
	}
	s.board = analytics.NewBoard(s.details)
	if opts.StaleTTL > 0 {
		s.lastGood = cache.New(opts.StaleTTL, 2*opts.StaleTTL)
	}
	return s, nil
}

// Property returns the property whose vocabulary the service decodes.
func (s *AnalyticsService) Property() analytics.Property {
	return s.property
}

// Dashboard builds the dashboard for filters. A store failure never fails the
// call: the last good dashboard for the same filters is returned marked stale,
// or a zero-state dashboard carrying the error message.
func (s *AnalyticsService) Dashboard(ctx context.Context, filters analytics.Filters) Dashboard {
	snap, err := s.repo.Snapshot(ctx, filters)
	if err != nil {
		metrics.RecordFetchFailure(s.repo.Source())
		logging.Error().Err(err).
			Str("source", s.repo.Source()).
			Str("filters", filters.Key()).
			Msg("Failed to fetch analytics data")
		return s.recover(filters, err)
	}

	events, skipped := s.property.DecodeAll(snap.Events)
	if skipped > 0 {
		metrics.RecordSkipped(s.property.Name, skipped)
		logging.Debug().Int("skipped", skipped).Str("property", s.property.Name).Msg("Skipped events outside the vocabulary")
	}

	views := analytics.BuildSessionViews(snap.Sessions, events, filters)
	content, search := analytics.MergeBreakdowns(views)
	d := Dashboard{
		Property:         s.property.Name,
		Filters:          filters,
		Stats:            analytics.RollUp(views),
		Sessions:         views,
		ContentBreakdown: content,
		SearchBreakdown:  search,
		SkippedEvents:    skipped,
		GeneratedAt:      s.now(),
	}
	if s.lastGood != nil {
		s.lastGood.SetDefault(filters.Key(), d)
	}
	return d
}

func (s *AnalyticsService) recover(filters analytics.Filters, cause error) Dashboard {
	if s.lastGood != nil {
		if v, ok := s.lastGood.Get(filters.Key()); ok {
			d := v.(Dashboard)
			d.Stale = true
			d.Error = cause.Error()
			metrics.StaleDashboards.Inc()
			return d
		}
	}
	return Dashboard{
		Property:         s.property.Name,
		Filters:          filters,
		Sessions:         []analytics.SessionView{},
		ContentBreakdown: []analytics.Breakdown{},
		SearchBreakdown:  []analytics.Breakdown{},
		Error:            cause.Error(),
		GeneratedAt:      s.now(),
	}
}

// Session returns the card of one session. A session id that only appears on
// events gets a synthesized card; an id with neither yields ErrSessionNotFound.
func (s *AnalyticsService) Session(ctx context.Context, sessionID string) (analytics.SessionView, error) {
	var sessions []analytics.Session
	sess, err := s.repo.FindSession(ctx, sessionID)
	switch {
	case err == nil:
		sessions = append(sessions, sess)
	case !errors.Is(err, customerrors.ErrSessionNotFound):
		metrics.RecordFetchFailure(s.repo.Source())
		return analytics.SessionView{}, err
	}

	events, err := s.decodedEvents(ctx, sessionID)
	if err != nil {
		return analytics.SessionView{}, err
	}
	if len(sessions) == 0 && len(events) == 0 {
		return analytics.SessionView{}, fmt.Errorf("%w: %s", customerrors.ErrSessionNotFound, sessionID)
	}

	views := analytics.BuildSessionViews(sessions, events, analytics.Filters{})
	return views[0], nil
}

// Expand opens the card of sessionID, loading its detail at most once.
func (s *AnalyticsService) Expand(ctx context.Context, sessionID string) (analytics.CardResult, error) {
	res, err := s.board.Expand(ctx, sessionID, s.fetcher(sessionID))
	return s.observe(res, err)
}

// Toggle applies one click on the card of sessionID.
func (s *AnalyticsService) Toggle(ctx context.Context, sessionID string) (analytics.CardResult, error) {
	res, err := s.board.Toggle(ctx, sessionID, s.fetcher(sessionID))
	return s.observe(res, err)
}

// Collapse closes the card of sessionID.
func (s *AnalyticsService) Collapse(sessionID string) analytics.CardResult {
	return s.board.Collapse(sessionID)
}

// CardState returns the current state of the card of sessionID.
func (s *AnalyticsService) CardState(sessionID string) analytics.CardState {
	return s.board.State(sessionID)
}

func (s *AnalyticsService) observe(res analytics.CardResult, err error) (analytics.CardResult, error) {
	if err != nil {
		logging.Warn().Err(err).Str("session_id", res.SessionID).Msg("Failed to load session detail")
		return res, err
	}
	if res.Detail != nil {
		metrics.RecordDetail(res.Cached, res.Shared)
	}
	return res, nil
}

func (s *AnalyticsService) fetcher(sessionID string) analytics.DetailFetcher {
	return func(ctx context.Context) ([]analytics.Event, error) {
		return s.decodedEvents(ctx, sessionID)
	}
}

func (s *AnalyticsService) decodedEvents(ctx context.Context, sessionID string) ([]analytics.Event, error) {
	raw, err := s.repo.SessionEvents(ctx, sessionID)
	if err != nil {
		metrics.RecordFetchFailure(s.repo.Source())
		return nil, err
	}
	events, skipped := s.property.DecodeAll(raw)
	metrics.RecordSkipped(s.property.Name, skipped)
	return events, nil
}
