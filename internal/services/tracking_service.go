package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/axellelanca/funnelstats/internal/analytics"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/logging"
	"github.com/axellelanca/funnelstats/internal/metrics"
	"github.com/axellelanca/funnelstats/internal/models"
	"github.com/axellelanca/funnelstats/internal/repository"
)

var (
	tabletUA        = regexp.MustCompile(`(?i)tablet|ipad|playbook|silk`)
	androidUA       = regexp.MustCompile(`(?i)android`)
	androidMobileUA = regexp.MustCompile(`(?i)android.*mobi`)
	mobileUA        = regexp.MustCompile(`Mobile|Android|iP(hone|od)|IEMobile|BlackBerry|Kindle|Silk-Accelerated|(hpw|web)OS|Opera M(obi|ini)`)
)

// ClassifyDevice derives the device class of a session from its user agent:
// tablet, mobile or desktop. Android without "mobi" counts as a tablet.
func ClassifyDevice(userAgent string) string {
	if tabletUA.MatchString(userAgent) ||
		(androidUA.MatchString(userAgent) && !androidMobileUA.MatchString(userAgent)) {
		return "tablet"
	}
	if mobileUA.MatchString(userAgent) {
		return "mobile"
	}
	return "desktop"
}

// SessionInput describes a visitor landing on the public funnel.
type SessionInput struct {
	// SessionID is optional; a ULID is generated when empty.
	SessionID string
	Source    string
	UserAgent string
	Country   string
	IPAddress string
}

// EventInput describes one tracked funnel event, with the property's raw kind.
type EventInput struct {
	SessionID  string
	Kind       string
	OccurredAt time.Time
	PageType   string
	PageID     string
	ContentID  string
	SearchID   string
	Title      string
	Payload    string
}

// TrackingService records sessions synchronously and queues events for the worker pool.
type TrackingService struct {
	repo     repository.TrackingRepository
	property analytics.Property
	events   chan<- models.EventRecord
	now      func() time.Time
}

// NewTrackingService creates and returns a new instance of TrackingService.
// events is the buffered channel drained by workers.StartEventWorkers.
func NewTrackingService(repo repository.TrackingRepository, property analytics.Property, events chan<- models.EventRecord) *TrackingService {
	return &TrackingService{
		repo:     repo,
		property: property,
		events:   events,
		now:      time.Now,
	}
}

// StartSession creates the session once. Calling it again with the same id
// leaves the stored session untouched and reports created=false.
func (s *TrackingService) StartSession(ctx context.Context, in SessionInput) (*models.Session, bool, error) {
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		id = ulid.Make().String()
	}
	if id == analytics.UnknownSessionID {
		return nil, false, fmt.Errorf("%w: %q", customerrors.ErrReservedSessionID, id)
	}

	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if country == "" {
		country = analytics.DefaultCountry
	}
	source := strings.ToLower(strings.TrimSpace(in.Source))
	if source == "" {
		source = analytics.DefaultSource
	}

	session := &models.Session{
		SessionID: id,
		IPAddress: in.IPAddress,
		Country:   country,
		Source:    source,
		Device:    ClassifyDevice(in.UserAgent),
		UserAgent: in.UserAgent,
		CreatedAt: s.now(),
	}

	created, err := s.repo.CreateSession(ctx, session)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start session: %w", err)
	}
	if created {
		logging.Debug().Str("session_id", id).Str("country", country).Str("source", source).Msg("Session started")
	}
	return session, created, nil
}

// Track validates the raw kind against the property vocabulary and queues the
// event. The send never blocks: when the buffer is full the event is dropped
// and ErrTrackingQueueFull is returned.
func (s *TrackingService) Track(in EventInput) (string, error) {
	if _, ok := s.property.Classify(in.Kind, in.Title); !ok {
		return "", fmt.Errorf("%w: %q for %s", customerrors.ErrUnknownEventKind, in.Kind, s.property.Name)
	}

	if strings.TrimSpace(in.SessionID) == analytics.UnknownSessionID {
		return "", fmt.Errorf("%w: %q", customerrors.ErrReservedSessionID, in.SessionID)
	}

	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	record := models.EventRecord{
		ID:         uuid.NewString(),
		SessionID:  strings.TrimSpace(in.SessionID),
		Kind:       strings.ToLower(strings.TrimSpace(in.Kind)),
		OccurredAt: occurred,
		PageType:   in.PageType,
		PageID:     in.PageID,
		ContentID:  in.ContentID,
		SearchID:   in.SearchID,
		ItemTitle:  in.Title,
		Payload:    in.Payload,
	}

	select {
	case s.events <- record:
		return record.ID, nil
	default:
		metrics.RecordTracked("dropped")
		logging.Warn().Str("session_id", record.SessionID).Str("kind", record.Kind).Msg("Tracking channel is full, event dropped")
		return "", customerrors.ErrTrackingQueueFull
	}
}
