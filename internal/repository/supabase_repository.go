package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/axellelanca/funnelstats/internal/analytics"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/logging"
)

// Tables written by the hosted funnels, one per event kind.
const (
	tableSessions       = "analytics_sessions"
	tablePageViews      = "analytics_page_views"
	tableBlogClicks     = "analytics_blog_clicks"
	tableSearchClicks   = "analytics_related_search_clicks"
	tableVisitNowClicks = "analytics_visit_now_clicks"
)

// Querier est la partie du client PostgREST utilisée par le repository.
// *supabase.Client et *postgrest.Client la satisfont tous les deux.
type Querier interface {
	From(table string) *postgrest.QueryBuilder
}

// SupabaseAnalyticsRepository lit les tables analytics d'un projet Supabase hébergé.
// Les lignes sont renvoyées avec le vocabulaire de TopicMingle (page_view, blog_click...).
// PostgREST ne permet pas la jointure nécessaire pour filtrer les événements
// orphelins: les filtres sont appliqués en mémoire par FilterSnapshot.
type SupabaseAnalyticsRepository struct {
	client   Querier
	breaker  *gobreaker.CircuitBreaker[any]
	pageSize int
}

// supabasePageSize matches the default max-rows of hosted PostgREST.
const supabasePageSize = 1000

// supabaseMaxPages bounds one table read when the server ignores offsets.
const supabaseMaxPages = 10000

// NewSupabaseClient crée le client Supabase à partir de l'URL du projet et de la clé anonyme.
func NewSupabaseClient(url, key string) (*supabase.Client, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("supabase.url and supabase.key are required for the supabase driver")
	}
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

// NewSupabaseAnalyticsRepository crée et retourne une nouvelle instance de SupabaseAnalyticsRepository.
func NewSupabaseAnalyticsRepository(client Querier) *SupabaseAnalyticsRepository {
	return &SupabaseAnalyticsRepository{
		client:   client,
		breaker:  newBreaker("supabase"),
		pageSize: supabasePageSize,
	}
}

// Source retourne "supabase".
func (r *SupabaseAnalyticsRepository) Source() string {
	return "supabase"
}

// Snapshot lit toutes les sessions et tous les événements puis applique les filtres.
func (r *SupabaseAnalyticsRepository) Snapshot(ctx context.Context, filters analytics.Filters) (Snapshot, error) {
	rows, err := fetchAll[supabaseSession](ctx, r, tableSessions, sessionColumns, "")
	if err != nil {
		return Snapshot{}, err
	}
	events, err := r.events(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Sessions: make([]analytics.Session, 0, len(rows)), Events: events}
	for _, row := range rows {
		snap.Sessions = append(snap.Sessions, row.toSession())
	}
	return FilterSnapshot(snap, filters), nil
}

// SessionEvents lit les événements d'une seule session.
func (r *SupabaseAnalyticsRepository) SessionEvents(ctx context.Context, sessionID string) ([]analytics.RawEvent, error) {
	return r.events(ctx, sessionID)
}

// FindSession lit une session par son identifiant public.
func (r *SupabaseAnalyticsRepository) FindSession(ctx context.Context, sessionID string) (analytics.Session, error) {
	rows, err := fetchAll[supabaseSession](ctx, r, tableSessions, sessionColumns, sessionID)
	if err != nil {
		return analytics.Session{}, err
	}
	if len(rows) == 0 {
		return analytics.Session{}, fmt.Errorf("%w: %s", customerrors.ErrSessionNotFound, sessionID)
	}
	return rows[0].toSession(), nil
}

// events reads every event table, restricted to sessionID when it is not empty.
func (r *SupabaseAnalyticsRepository) events(ctx context.Context, sessionID string) ([]analytics.RawEvent, error) {
	views, err := fetchAll[supabasePageView](ctx, r, tablePageViews, "session_id, page_type, page_id, created_at", sessionID)
	if err != nil {
		return nil, err
	}
	blogs, err := fetchAll[supabaseBlogClick](ctx, r, tableBlogClicks, "session_id, blog_id, created_at, blogs(title, serial_number)", sessionID)
	if err != nil {
		return nil, err
	}
	searches, err := fetchAll[supabaseSearchClick](ctx, r, tableSearchClicks, "session_id, related_search_id, created_at, related_searches(search_text)", sessionID)
	if err != nil {
		return nil, err
	}
	visits, err := fetchAll[supabaseSearchClick](ctx, r, tableVisitNowClicks, "session_id, related_search_id, created_at, related_searches(search_text)", sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]analytics.RawEvent, 0, len(views)+len(blogs)+len(searches)+len(visits))
	for _, v := range views {
		out = append(out, analytics.RawEvent{
			SessionID: v.SessionID,
			Kind:      "page_view",
			At:        v.CreatedAt.Time,
			PageType:  v.PageType,
			PageID:    deref(v.PageID),
		})
	}
	for _, b := range blogs {
		out = append(out, analytics.RawEvent{
			SessionID: b.SessionID,
			Kind:      "blog_click",
			At:        b.CreatedAt.Time,
			Content:   analytics.EntityRef{ID: deref(b.BlogID), Title: b.Blog.label()},
		})
	}
	for _, s := range searches {
		out = append(out, s.toRawEvent("related_search_click"))
	}
	for _, s := range visits {
		out = append(out, s.toRawEvent("visit_now_click"))
	}
	return out, nil
}

// fetchAll reads every row of table page by page. PostgREST truncates a
// response at its max-rows setting, so pages are requested with an exact
// count until that many rows have arrived. Without a count the read stops at
// the first page shorter than pageSize.
func fetchAll[T any](ctx context.Context, r *SupabaseAnalyticsRepository, table, columns, sessionID string) ([]T, error) {
	var all []T
	for page := 0; page < supabaseMaxPages; page++ {
		var rows []T
		total, err := r.fetchPage(ctx, table, columns, sessionID, len(all), &rows)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) == 0 {
			return all, nil
		}
		if total > 0 && int64(len(all)) >= total {
			return all, nil
		}
		if total == 0 && len(rows) < r.pageSize {
			return all, nil
		}
	}
	logging.Warn().Str("table", table).Int("rows", len(all)).Msg("Supabase read stopped at the page limit, totals may be undercounted")
	return all, nil
}

// fetchPage runs one select through the circuit breaker, decodes the rows into
// dest and returns the total row count reported by the server.
func (r *SupabaseAnalyticsRepository) fetchPage(ctx context.Context, table, columns, sessionID string, offset int, dest interface{}) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	total, err := r.breaker.Execute(func() (any, error) {
		q := r.client.From(table).Select(columns, "exact", false)
		if sessionID != "" {
			q = q.Eq("session_id", sessionID)
		}
		return q.Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			Range(offset, offset+r.pageSize-1, "").
			ExecuteTo(dest)
	})
	if err != nil {
		return 0, customerrors.ErrFetchFailed{Source: table, Reason: err.Error()}
	}
	return total.(int64), nil
}

// last_active only exists on some projects, so every column is requested.
const sessionColumns = "*"

type supabaseSession struct {
	SessionID  string     `json:"session_id"`
	IPAddress  *string    `json:"ip_address"`
	Country    *string    `json:"country"`
	Source     *string    `json:"source"`
	Device     *string    `json:"device"`
	CreatedAt  timestamp  `json:"created_at"`
	LastActive *timestamp `json:"last_active"`
}

func (s supabaseSession) toSession() analytics.Session {
	out := analytics.Session{
		ID:        s.SessionID,
		IPAddress: deref(s.IPAddress),
		Country:   deref(s.Country),
		Source:    deref(s.Source),
		Device:    deref(s.Device),
		CreatedAt: s.CreatedAt.Time,
	}
	if s.LastActive != nil {
		out.LastActive = s.LastActive.Time
	}
	return out
}

type supabasePageView struct {
	SessionID string    `json:"session_id"`
	PageType  string    `json:"page_type"`
	PageID    *string   `json:"page_id"`
	CreatedAt timestamp `json:"created_at"`
}

type supabaseBlogClick struct {
	SessionID string        `json:"session_id"`
	BlogID    *string       `json:"blog_id"`
	CreatedAt timestamp     `json:"created_at"`
	Blog      *supabaseBlog `json:"blogs"`
}

type supabaseBlog struct {
	Title        string `json:"title"`
	SerialNumber *int   `json:"serial_number"`
}

// label mirrors models.Blog.Label.
func (b *supabaseBlog) label() string {
	if b == nil {
		return ""
	}
	if b.SerialNumber != nil {
		return fmt.Sprintf("[%d] %s", *b.SerialNumber, b.Title)
	}
	return b.Title
}

type supabaseSearchClick struct {
	SessionID       string    `json:"session_id"`
	RelatedSearchID *string   `json:"related_search_id"`
	CreatedAt       timestamp `json:"created_at"`
	Search          *struct {
		SearchText string `json:"search_text"`
	} `json:"related_searches"`
}

func (s supabaseSearchClick) toRawEvent(kind string) analytics.RawEvent {
	ref := analytics.EntityRef{ID: deref(s.RelatedSearchID)}
	if s.Search != nil {
		ref.Title = s.Search.SearchText
	}
	return analytics.RawEvent{SessionID: s.SessionID, Kind: kind, At: s.CreatedAt.Time, Phrase: ref}
}

// timestamp accepts the timestamptz and timestamp renderings of PostgREST.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
