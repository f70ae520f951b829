package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/axellelanca/funnelstats/internal/analytics"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/models"
	"github.com/axellelanca/funnelstats/internal/repository"
	"github.com/axellelanca/funnelstats/internal/services"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type stubRepo struct {
	snap repository.Snapshot
	err  error
}

func (s *stubRepo) Source() string { return "stub" }

func (s *stubRepo) Snapshot(ctx context.Context, filters analytics.Filters) (repository.Snapshot, error) {
	if s.err != nil {
		return repository.Snapshot{}, s.err
	}
	return repository.FilterSnapshot(s.snap, filters), nil
}

func (s *stubRepo) SessionEvents(ctx context.Context, sessionID string) ([]analytics.RawEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []analytics.RawEvent
	for _, e := range s.snap.Events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubRepo) FindSession(ctx context.Context, sessionID string) (analytics.Session, error) {
	if s.err != nil {
		return analytics.Session{}, s.err
	}
	for _, sess := range s.snap.Sessions {
		if sess.ID == sessionID {
			return sess, nil
		}
	}
	return analytics.Session{}, customerrors.ErrSessionNotFound
}

type stubTracking struct{}

func (stubTracking) CreateSession(ctx context.Context, s *models.Session) (bool, error) {
	return s.SessionID != "existing", nil
}

func (stubTracking) CreateEvent(ctx context.Context, e *models.Event) error { return nil }

func newRouter(t *testing.T, repo *stubRepo, withTracking bool, buffer int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := services.NewAnalyticsService(repo, services.AnalyticsOptions{Property: "topicmingle"})
	if err != nil {
		t.Fatalf("NewAnalyticsService: %v", err)
	}
	var tracking *services.TrackingService
	if withTracking {
		tracking = services.NewTrackingService(stubTracking{}, svc.Property(), make(chan models.EventRecord, buffer))
	}

	router := gin.New()
	SetupRoutes(router, svc, tracking)
	return router
}

func sampleRepo() *stubRepo {
	return &stubRepo{snap: repository.Snapshot{
		Sessions: []analytics.Session{
			{ID: "s1", IPAddress: "1.1.1.1", Country: "IN", CreatedAt: t0},
			{ID: "s2", IPAddress: "2.2.2.2", Country: "US", CreatedAt: t0.Add(time.Minute)},
			{ID: "s3", IPAddress: "1.1.1.1", Country: "IN", CreatedAt: t0.Add(2 * time.Minute)},
		},
		Events: []analytics.RawEvent{
			{SessionID: "s1", Kind: "blog_click", Content: analytics.EntityRef{ID: "blogA", Title: "Best Shoes"}, At: t0},
			{SessionID: "s1", Kind: "page_view", PageType: "landing", At: t0},
		},
	}}
}

func do(router *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthAndRequestID(t *testing.T) {
	router := newRouter(t, sampleRepo(), false, 1)

	w := do(router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("request id = %q, want abc", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t, sampleRepo(), false, 1)
	do(router, http.MethodGet, "/api/v1/analytics/dashboard", nil)

	w := do(router, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("metrics endpoint status %d", w.Code)
	}
}

func TestDashboardEndpoints(t *testing.T) {
	router := newRouter(t, sampleRepo(), false, 1)

	tests := []struct {
		name     string
		target   string
		sessions int
	}{
		{"all", "/api/v1/analytics/dashboard", 3},
		{"country IN", "/api/v1/analytics/dashboard?country=IN", 2},
		{"country FR", "/api/v1/analytics/dashboard?country=FR", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, tt.target, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var d services.Dashboard
			if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(d.Sessions) != tt.sessions || d.Stats.TotalSessions != tt.sessions {
				t.Errorf("sessions = %d / %d, want %d", len(d.Sessions), d.Stats.TotalSessions, tt.sessions)
			}
		})
	}

	w := do(router, http.MethodGet, "/api/v1/analytics/stats?country=IN", nil)
	var stats struct {
		Stats analytics.GlobalStats `json:"stats"`
	}
	json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Stats.TotalSessions != 2 || stats.Stats.UniqueVisitors != 1 {
		t.Errorf("stats = %+v", stats.Stats)
	}

	w = do(router, http.MethodGet, "/api/v1/analytics/sessions", nil)
	var list struct {
		Sessions []analytics.SessionView `json:"sessions"`
		Total    int                     `json:"total"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 3 || list.Sessions[0].SessionID != "s3" {
		t.Errorf("sessions list = %+v", list)
	}
}

func TestDashboardFetchFailureIsNotAnHTTPError(t *testing.T) {
	router := newRouter(t, &stubRepo{err: customerrors.ErrFetchFailed{Source: "stub", Reason: "down"}}, false, 1)

	w := do(router, http.MethodGet, "/api/v1/analytics/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var d services.Dashboard
	json.Unmarshal(w.Body.Bytes(), &d)
	if d.Error == "" || len(d.Sessions) != 0 {
		t.Errorf("expected zero-state dashboard with error, got %+v", d)
	}

	w = do(router, http.MethodGet, "/api/v1/analytics/sessions/s1/detail", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("detail status = %d, want 502", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	router := newRouter(t, sampleRepo(), false, 1)

	w := do(router, http.MethodGet, "/api/v1/analytics/sessions/s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var view analytics.SessionView
	json.Unmarshal(w.Body.Bytes(), &view)
	if view.ContentClicks != 1 || view.PageViews != 1 {
		t.Errorf("view = %+v", view)
	}

	if w := do(router, http.MethodGet, "/api/v1/analytics/sessions/nobody", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", w.Code)
	}

	w = do(router, http.MethodGet, "/api/v1/analytics/sessions/s1/detail", nil)
	var card struct {
		State  string                  `json:"state"`
		Cached bool                    `json:"cached"`
		Detail analytics.SessionDetail `json:"detail"`
	}
	json.Unmarshal(w.Body.Bytes(), &card)
	if card.State != "expanded" || card.Cached || len(card.Detail.ContentClicks) != 1 {
		t.Errorf("first detail = %+v", card)
	}

	states := []string{"collapsed", "expanded", "collapsed"}
	for i, want := range states {
		w = do(router, http.MethodPost, "/api/v1/analytics/sessions/s1/toggle", nil)
		card.State = ""
		json.Unmarshal(w.Body.Bytes(), &card)
		if card.State != want {
			t.Errorf("toggle %d state = %q, want %q", i, card.State, want)
		}
	}
}

func TestTrackingEndpoints(t *testing.T) {
	router := newRouter(t, sampleRepo(), true, 1)

	w := do(router, http.MethodPost, "/api/v1/track/sessions", StartSessionRequest{Source: "meta", UserAgent: "Mozilla/5.0 (iPhone) Mobile"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start session status = %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		SessionID string `json:"session_id"`
		Country   string `json:"country"`
		Device    string `json:"device"`
	}
	json.Unmarshal(w.Body.Bytes(), &started)
	if started.SessionID == "" || started.Country != "WW" || started.Device != "mobile" {
		t.Errorf("started = %+v", started)
	}

	if w := do(router, http.MethodPost, "/api/v1/track/sessions", StartSessionRequest{SessionID: "existing"}); w.Code != http.StatusOK {
		t.Errorf("existing session status = %d, want 200", w.Code)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing kind", map[string]string{"session_id": "s1"}, http.StatusBadRequest},
		{"unknown kind", TrackEventRequest{SessionID: "s1", Kind: "scroll"}, http.StatusBadRequest},
		{"accepted", TrackEventRequest{SessionID: "s1", Kind: "blog_click", ContentID: "blogA"}, http.StatusAccepted},
		{"queue full", TrackEventRequest{SessionID: "s1", Kind: "page_view"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(router, http.MethodPost, "/api/v1/track/events", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestTrackingUnavailable(t *testing.T) {
	router := newRouter(t, sampleRepo(), false, 1)
	w := do(router, http.MethodPost, "/api/v1/track/events", TrackEventRequest{SessionID: "s1", Kind: "page_view"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
