package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/axellelanca/funnelstats/internal/analytics"
	"github.com/axellelanca/funnelstats/internal/config"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
)

// ClickHouseQuerier est la partie de clickhouse.Conn utilisée par le repository.
type ClickHouseQuerier interface {
	Select(ctx context.Context, dest any, query string, args ...any) error
}

// ClickHouseAnalyticsRepository lit une copie des tables analytics répliquée dans ClickHouse.
// Le schéma suit celui des modèles GORM: analytics_sessions, analytics_events,
// blogs et related_searches.
type ClickHouseAnalyticsRepository struct {
	conn    ClickHouseQuerier
	breaker *gobreaker.CircuitBreaker[any]
}

// OpenClickHouse ouvre une connexion native vers ClickHouse et vérifie qu'elle répond.
func OpenClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("clickhouse.addr is required for the clickhouse driver")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return conn, nil
}

// NewClickHouseAnalyticsRepository crée et retourne une nouvelle instance de ClickHouseAnalyticsRepository.
func NewClickHouseAnalyticsRepository(conn ClickHouseQuerier) *ClickHouseAnalyticsRepository {
	return &ClickHouseAnalyticsRepository{conn: conn, breaker: newBreaker("clickhouse")}
}

// Source retourne "clickhouse".
func (r *ClickHouseAnalyticsRepository) Source() string {
	return "clickhouse"
}

// Snapshot récupère les sessions et les événements correspondant aux filtres.
func (r *ClickHouseAnalyticsRepository) Snapshot(ctx context.Context, filters analytics.Filters) (Snapshot, error) {
	var sessions []chSession
	query, args := sessionsQuery(filters, "")
	if err := r.selectRows(ctx, "analytics_sessions", &sessions, query, args); err != nil {
		return Snapshot{}, err
	}

	var events []chEvent
	query, args = eventsQuery(filters, "")
	if err := r.selectRows(ctx, "analytics_events", &events, query, args); err != nil {
		return Snapshot{}, err
	}

	out := Snapshot{
		Sessions: make([]analytics.Session, 0, len(sessions)),
		Events:   make([]analytics.RawEvent, 0, len(events)),
	}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, s.toSession())
	}
	for _, e := range events {
		out.Events = append(out.Events, e.toRawEvent())
	}
	return out, nil
}

// SessionEvents récupère tous les événements d'une session.
func (r *ClickHouseAnalyticsRepository) SessionEvents(ctx context.Context, sessionID string) ([]analytics.RawEvent, error) {
	var events []chEvent
	query, args := eventsQuery(analytics.Filters{}, sessionID)
	if err := r.selectRows(ctx, "analytics_events", &events, query, args); err != nil {
		return nil, err
	}
	out := make([]analytics.RawEvent, 0, len(events))
	for _, e := range events {
		out = append(out, e.toRawEvent())
	}
	return out, nil
}

// FindSession récupère une session par son identifiant public.
func (r *ClickHouseAnalyticsRepository) FindSession(ctx context.Context, sessionID string) (analytics.Session, error) {
	var sessions []chSession
	query, args := sessionsQuery(analytics.Filters{}, sessionID)
	if err := r.selectRows(ctx, "analytics_sessions", &sessions, query, args); err != nil {
		return analytics.Session{}, err
	}
	if len(sessions) == 0 {
		return analytics.Session{}, fmt.Errorf("%w: %s", customerrors.ErrSessionNotFound, sessionID)
	}
	return sessions[0].toSession(), nil
}

func (r *ClickHouseAnalyticsRepository) selectRows(ctx context.Context, table string, dest any, query string, args []any) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.conn.Select(ctx, dest, query, args...)
	})
	if err != nil {
		return customerrors.ErrFetchFailed{Source: table, Reason: err.Error()}
	}
	return nil
}

// sessionsQuery builds the session select. Unmatched LEFT JOIN rows carry
// empty strings in ClickHouse, so defaults are applied with if().
func sessionsQuery(filters analytics.Filters, sessionID string) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT s.session_id AS session_id, s.ip_address AS ip_address, s.country AS country,
	s.source AS source, s.device AS device, s.created_at AS created_at
FROM analytics_sessions AS s`)
	where, args := filterClauses(filters)
	if sessionID != "" {
		where = append(where, "s.session_id = ?")
		args = append(args, sessionID)
	}
	writeWhere(&b, where)
	b.WriteString("\nORDER BY s.created_at DESC")
	return b.String(), args
}

func eventsQuery(filters analytics.Filters, sessionID string) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT e.session_id AS session_id, e.kind AS kind, e.occurred_at AS occurred_at,
	e.page_type AS page_type, e.page_id AS page_id,
	e.content_id AS content_id, c.title AS content_title,
	e.search_id AS search_id, r.search_text AS search_text,
	e.item_title AS item_title, e.payload AS payload
FROM analytics_events AS e
LEFT JOIN analytics_sessions AS s ON s.session_id = e.session_id
LEFT JOIN blogs AS c ON c.id = e.content_id
LEFT JOIN related_searches AS r ON r.id = e.search_id`)
	where, args := filterClauses(filters)
	if sessionID != "" {
		where = append(where, "e.session_id = ?")
		args = append(args, sessionID)
	}
	writeWhere(&b, where)
	b.WriteString("\nORDER BY e.occurred_at ASC")
	return b.String(), args
}

func filterClauses(filters analytics.Filters) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if filters.Country != "" {
		where = append(where, "if(s.country = '', ?, s.country) = ?")
		args = append(args, analytics.DefaultCountry, filters.Country)
	}
	if filters.Source != "" {
		where = append(where, "if(s.source = '', ?, s.source) = ?")
		args = append(args, analytics.DefaultSource, filters.Source)
	}
	return where, args
}

func writeWhere(b *strings.Builder, where []string) {
	if len(where) == 0 {
		return
	}
	b.WriteString("\nWHERE ")
	b.WriteString(strings.Join(where, " AND "))
}

type chSession struct {
	SessionID string    `ch:"session_id"`
	IPAddress string    `ch:"ip_address"`
	Country   string    `ch:"country"`
	Source    string    `ch:"source"`
	Device    string    `ch:"device"`
	CreatedAt time.Time `ch:"created_at"`
}

func (s chSession) toSession() analytics.Session {
	return analytics.Session{
		ID:        s.SessionID,
		IPAddress: s.IPAddress,
		Country:   s.Country,
		Source:    s.Source,
		Device:    s.Device,
		CreatedAt: s.CreatedAt,
	}
}

type chEvent struct {
	SessionID    string    `ch:"session_id"`
	Kind         string    `ch:"kind"`
	OccurredAt   time.Time `ch:"occurred_at"`
	PageType     string    `ch:"page_type"`
	PageID       string    `ch:"page_id"`
	ContentID    string    `ch:"content_id"`
	ContentTitle string    `ch:"content_title"`
	SearchID     string    `ch:"search_id"`
	SearchText   string    `ch:"search_text"`
	ItemTitle    string    `ch:"item_title"`
	Payload      string    `ch:"payload"`
}

func (e chEvent) toRawEvent() analytics.RawEvent {
	return analytics.RawEvent{
		SessionID: e.SessionID,
		Kind:      e.Kind,
		At:        e.OccurredAt,
		PageType:  e.PageType,
		PageID:    e.PageID,
		Content:   analytics.EntityRef{ID: e.ContentID, Title: e.ContentTitle},
		Phrase:    analytics.EntityRef{ID: e.SearchID, Title: e.SearchText},
		Title:     e.ItemTitle,
		Payload:   e.Payload,
	}
}
