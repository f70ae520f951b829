package repository

import (
	"context"

	"github.com/axellelanca/funnelstats/internal/analytics"
	"github.com/axellelanca/funnelstats/internal/models"
)

// Snapshot regroupe les sessions et les événements bruts lus pour un jeu de filtres.
//
// Contrat: si une session est exclue par les filtres, ses événements le sont
// aussi, afin qu'ils ne soient jamais pris pour des sessions orphelines.
type Snapshot struct {
	Sessions []analytics.Session
	Events   []analytics.RawEvent
}

// AnalyticsRepository est une interface qui définit les méthodes de lecture des données analytiques
type AnalyticsRepository interface {
	// Source nomme le backend dans les logs et les métriques.
	Source() string
	Snapshot(ctx context.Context, filters analytics.Filters) (Snapshot, error)
	SessionEvents(ctx context.Context, sessionID string) ([]analytics.RawEvent, error)
	FindSession(ctx context.Context, sessionID string) (analytics.Session, error)
}

// TrackingRepository est une interface qui définit les méthodes d'écriture du funnel public
type TrackingRepository interface {
	// CreateSession insère la session si elle n'existe pas encore; created indique si une ligne a été écrite.
	CreateSession(ctx context.Context, session *models.Session) (created bool, err error)
	CreateEvent(ctx context.Context, event *models.Event) error
}

// FilterSnapshot applique les filtres en mémoire, pour les backends qui ne
// peuvent pas les pousser vers le stockage tout en respectant le contrat de Snapshot.
func FilterSnapshot(s Snapshot, filters analytics.Filters) Snapshot {
	if filters.IsZero() {
		return s
	}

	kept := make(map[string]bool, len(s.Sessions))
	out := Snapshot{Sessions: make([]analytics.Session, 0, len(s.Sessions))}
	for _, sess := range s.Sessions {
		ok := filters.Match(sess)
		if _, seen := kept[sess.ID]; !seen {
			kept[sess.ID] = ok
		}
		if ok {
			out.Sessions = append(out.Sessions, sess)
		}
	}

	// orphan events are matched against the default session attributes
	orphanOK := filters.Match(analytics.Session{})
	out.Events = make([]analytics.RawEvent, 0, len(s.Events))
	for _, e := range s.Events {
		ok, known := kept[e.SessionID]
		if (known && ok) || (!known && orphanOK) {
			out.Events = append(out.Events, e)
		}
	}
	return out
}

func toAnalyticsSession(s models.Session) analytics.Session {
	out := analytics.Session{
		ID:        s.SessionID,
		IPAddress: s.IPAddress,
		Country:   s.Country,
		Source:    s.Source,
		Device:    s.Device,
		CreatedAt: s.CreatedAt,
	}
	if s.LastActive != nil {
		out.LastActive = *s.LastActive
	}
	return out
}

func toRawEvent(e models.Event) analytics.RawEvent {
	raw := analytics.RawEvent{
		SessionID: e.SessionID,
		Kind:      e.Kind,
		At:        e.OccurredAt,
		PageType:  e.PageType,
		PageID:    e.PageID,
		Title:     e.ItemTitle,
		Payload:   e.Payload,
	}
	if e.ContentID != nil {
		raw.Content = analytics.EntityRef{ID: *e.ContentID, Title: e.Content.Label()}
	}
	if e.SearchID != nil {
		raw.Phrase = analytics.EntityRef{ID: *e.SearchID, Title: e.Search.Label()}
	}
	return raw
}
