package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/axellelanca/funnelstats/internal/analytics"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/repository"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// memoryRepo is an in-memory AnalyticsRepository.
type memoryRepo struct {
	mu          sync.Mutex
	sessions    []analytics.Session
	events      []analytics.RawEvent
	err         error
	eventFetches int
}

func (m *memoryRepo) Source() string { return "memory" }

func (m *memoryRepo) Snapshot(ctx context.Context, filters analytics.Filters) (repository.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return repository.Snapshot{}, m.err
	}
	return repository.FilterSnapshot(repository.Snapshot{Sessions: m.sessions, Events: m.events}, filters), nil
}

func (m *memoryRepo) SessionEvents(ctx context.Context, sessionID string) ([]analytics.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventFetches++
	if m.err != nil {
		return nil, m.err
	}
	var out []analytics.RawEvent
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) FindSession(ctx context.Context, sessionID string) (analytics.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return analytics.Session{}, m.err
	}
	for _, s := range m.sessions {
		if s.ID == sessionID {
			return s, nil
		}
	}
	return analytics.Session{}, customerrors.ErrSessionNotFound
}

func (m *memoryRepo) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func newMemoryRepo() *memoryRepo {
	blogA := analytics.EntityRef{ID: "blogA", Title: "Best Shoes"}
	return &memoryRepo{
		sessions: []analytics.Session{
			{ID: "s1", IPAddress: "1.1.1.1", Country: "US", Source: "meta", CreatedAt: t0},
		},
		events: []analytics.RawEvent{
			{SessionID: "s1", Kind: "page_view", PageType: "landing", At: t0},
			{SessionID: "s1", Kind: "blog_click", Content: blogA, At: t0.Add(time.Minute)},
			{SessionID: "s1", Kind: "blog_click", Content: blogA, At: t0.Add(2 * time.Minute)},
			{SessionID: "ghost", Kind: "related_search_click", Phrase: analytics.EntityRef{ID: "rs1", Title: "cheap flights"}, At: t0.Add(time.Hour)},
			{SessionID: "s1", Kind: "scroll_depth", At: t0},
		},
	}
}

func newService(t *testing.T, repo repository.AnalyticsRepository) *AnalyticsService {
	t.Helper()
	svc, err := NewAnalyticsService(repo, AnalyticsOptions{Property: "topicmingle", StaleTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewAnalyticsService: %v", err)
	}
	return svc
}

func TestNewAnalyticsServiceUnknownProperty(t *testing.T) {
	_, err := NewAnalyticsService(newMemoryRepo(), AnalyticsOptions{Property: "myspace"})
	if !errors.Is(err, customerrors.ErrUnknownProperty) {
		t.Errorf("expected ErrUnknownProperty, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	svc := newService(t, newMemoryRepo())

	d := svc.Dashboard(context.Background(), analytics.Filters{})
	if d.Stale || d.Error != "" {
		t.Fatalf("unexpected failure state: %+v", d)
	}
	if d.Property != "topicmingle" {
		t.Errorf("property = %q", d.Property)
	}
	if d.SkippedEvents != 1 {
		t.Errorf("skipped = %d, want 1", d.SkippedEvents)
	}
	want := analytics.GlobalStats{TotalSessions: 2, TotalPageViews: 1, TotalClicks: 3, UniqueVisitors: 2}
	if d.Stats != want {
		t.Errorf("stats = %+v, want %+v", d.Stats, want)
	}
	if len(d.ContentBreakdown) != 1 || d.ContentBreakdown[0].TotalClicks != 2 || d.ContentBreakdown[0].UniqueVisitors != 1 {
		t.Errorf("content breakdown = %+v", d.ContentBreakdown)
	}
	if len(d.SearchBreakdown) != 1 || d.SearchBreakdown[0].Title != "cheap flights" {
		t.Errorf("search breakdown = %+v", d.SearchBreakdown)
	}

	filtered := svc.Dashboard(context.Background(), analytics.Filters{Country: "US"})
	if filtered.Stats.TotalSessions != 1 || filtered.Sessions[0].SessionID != "s1" {
		t.Errorf("US dashboard = %+v", filtered.Stats)
	}
}

func TestDashboardFetchFailure(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(t, repo)
	ctx := context.Background()
	boom := errors.New("store unreachable")

	t.Run("zero state without a previous dashboard", func(t *testing.T) {
		repo.setErr(boom)
		defer repo.setErr(nil)

		d := svc.Dashboard(ctx, analytics.Filters{Source: "meta"})
		if d.Stale {
			t.Error("zero state must not be stale")
		}
		if d.Error == "" || d.Sessions == nil || len(d.Sessions) != 0 {
			t.Errorf("unexpected zero state %+v", d)
		}
		if d.Stats != (analytics.GlobalStats{}) {
			t.Errorf("stats = %+v", d.Stats)
		}
	})

	t.Run("stale copy of the last good dashboard", func(t *testing.T) {
		good := svc.Dashboard(ctx, analytics.Filters{})
		repo.setErr(boom)
		defer repo.setErr(nil)

		d := svc.Dashboard(ctx, analytics.Filters{})
		if !d.Stale || d.Error != boom.Error() {
			t.Fatalf("expected stale dashboard, got stale=%v error=%q", d.Stale, d.Error)
		}
		if d.Stats != good.Stats || len(d.Sessions) != len(good.Sessions) {
			t.Errorf("stale dashboard differs from the last good one")
		}

		other := svc.Dashboard(ctx, analytics.Filters{Country: "FR"})
		if other.Stale {
			t.Error("stale copies must not cross filter pairs")
		}
	})
}

func TestSession(t *testing.T) {
	svc := newService(t, newMemoryRepo())
	ctx := context.Background()

	v, err := svc.Session(ctx, "s1")
	if err != nil {
		t.Fatalf("Session(s1): %v", err)
	}
	if v.Synthesized || v.ContentClicks != 2 || v.UniqueClicks != 1 {
		t.Errorf("s1 view = %+v", v)
	}

	v, err = svc.Session(ctx, "ghost")
	if err != nil {
		t.Fatalf("Session(ghost): %v", err)
	}
	if !v.Synthesized || v.Country != analytics.DefaultCountry || !v.CreatedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("ghost view = %+v", v)
	}

	if _, err := svc.Session(ctx, "nobody"); !errors.Is(err, customerrors.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestExpandAndToggle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(t, repo)
	ctx := context.Background()

	res, err := svc.Expand(ctx, "s1")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if res.State != analytics.Expanded || res.Cached || len(res.Detail.ContentClicks) != 1 || res.Detail.ContentClicks[0].TotalClicks != 2 {
		t.Errorf("first expand = %+v", res)
	}

	res, err = svc.Toggle(ctx, "s1")
	if err != nil || res.State != analytics.Collapsed {
		t.Fatalf("toggle of expanded card = %+v, %v", res, err)
	}

	res, err = svc.Toggle(ctx, "s1")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if res.State != analytics.Expanded || !res.Cached {
		t.Errorf("re-expand should be served from the memo: %+v", res)
	}
	if repo.eventFetches != 1 {
		t.Errorf("detail fetched %d times, want 1", repo.eventFetches)
	}

	if got := svc.Collapse("s1"); got.State != analytics.Collapsed || svc.CardState("s1") != analytics.Collapsed {
		t.Errorf("Collapse = %+v", got)
	}
}

func TestExpandFailureCollapses(t *testing.T) {
	repo := newMemoryRepo()
	repo.setErr(errors.New("timeout"))
	svc := newService(t, repo)

	res, err := svc.Expand(context.Background(), "s1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.State != analytics.Collapsed || svc.CardState("s1") != analytics.Collapsed {
		t.Errorf("card should be collapsed after a failure, got %v", res.State)
	}

	repo.setErr(nil)
	res, err = svc.Expand(context.Background(), "s1")
	if err != nil || res.State != analytics.Expanded || res.Cached {
		t.Errorf("retry after failure = %+v, %v", res, err)
	}
}
