package analytics

import (
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func contentClick(session, id string, ts time.Time) Event {
	return Event{SessionID: session, At: ts, Detail: ContentClick{Content: EntityRef{ID: id, Title: id}}}
}

func searchClick(session, id, text string, ts time.Time) Event {
	return Event{SessionID: session, At: ts, Detail: SearchClick{Phrase: EntityRef{ID: id, Title: text}}}
}

func outboundClick(session, id, text string, ts time.Time) Event {
	return Event{SessionID: session, At: ts, Detail: OutboundClick{Phrase: EntityRef{ID: id, Title: text}}}
}

func pageView(session string, ts time.Time) Event {
	return Event{SessionID: session, At: ts, Detail: PageView{PageType: "home"}}
}

func emailCapture(session, address string, ts time.Time) Event {
	return Event{SessionID: session, At: ts, Detail: EmailCapture{Address: address}}
}

func TestBuildSessionViews_SingleSessionScenario(t *testing.T) {
	sessions := []Session{{ID: "s1", Country: "US", CreatedAt: t0}}
	events := []Event{
		contentClick("s1", "blogA", at(1)),
		contentClick("s1", "blogA", at(2)),
		pageView("s1", at(3)),
	}

	views := BuildSessionViews(sessions, events, Filters{})
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	v := views[0]
	if v.SessionID != "s1" {
		t.Errorf("expected session s1, got %q", v.SessionID)
	}
	if v.PageViews != 1 {
		t.Errorf("expected 1 page view, got %d", v.PageViews)
	}
	if v.TotalClicks != 2 {
		t.Errorf("expected 2 clicks, got %d", v.TotalClicks)
	}
	if v.UniqueClicks != 1 {
		t.Errorf("expected 1 unique click, got %d", v.UniqueClicks)
	}
	want := []Breakdown{{ID: "blogA", Title: "blogA", TotalClicks: 2, UniqueVisitors: 1}}
	if !reflect.DeepEqual(v.ContentBreakdown, want) {
		t.Errorf("content breakdown = %+v, want %+v", v.ContentBreakdown, want)
	}
	if !v.LastActive.Equal(at(3)) {
		t.Errorf("expected last active %v, got %v", at(3), v.LastActive)
	}
	if v.Synthesized {
		t.Error("stored session must not be marked synthesized")
	}
}

func TestBuildSessionViews_GhostSession(t *testing.T) {
	events := []Event{contentClick("ghost", "blogA", at(5))}

	views := BuildSessionViews(nil, events, Filters{})
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	v := views[0]
	if v.SessionID != "ghost" {
		t.Errorf("expected session ghost, got %q", v.SessionID)
	}
	if v.Country != "WW" {
		t.Errorf("expected country WW, got %q", v.Country)
	}
	if v.Source != "direct" {
		t.Errorf("expected source direct, got %q", v.Source)
	}
	if v.Device != DefaultDevice {
		t.Errorf("expected device %q, got %q", DefaultDevice, v.Device)
	}
	if !v.Synthesized {
		t.Error("expected ghost view to be synthesized")
	}
	if !v.CreatedAt.Equal(at(5)) {
		t.Errorf("expected created at %v, got %v", at(5), v.CreatedAt)
	}
	if v.TotalClicks != 1 {
		t.Errorf("expected 1 click, got %d", v.TotalClicks)
	}
}

func TestBuildSessionViews_EventWithoutSessionID(t *testing.T) {
	views := BuildSessionViews(nil, []Event{pageView("", at(1))}, Filters{})
	if len(views) != 1 || views[0].SessionID != UnknownSessionID {
		t.Fatalf("expected one %q view, got %+v", UnknownSessionID, views)
	}
	if views[0].PageViews != 1 {
		t.Errorf("expected page view to be counted, got %d", views[0].PageViews)
	}
}

func TestBuildSessionViews_SessionlessEventsStayApartFromStoredSessions(t *testing.T) {
	sessions := []Session{
		{ID: "unknown", Country: "US", CreatedAt: at(1)},
		{ID: UnknownSessionID, Country: "US", CreatedAt: at(1)},
	}
	events := []Event{
		pageView("unknown", at(2)),
		pageView("", at(3)),
		contentClick("", "blogA", at(4)),
	}

	views := BuildSessionViews(sessions[:1], events, Filters{})
	if len(views) != 2 {
		t.Fatalf("expected stored and session-less views, got %+v", views)
	}
	byID := map[string]SessionView{}
	for _, v := range views {
		byID[v.SessionID] = v
	}
	stored := byID["unknown"]
	if stored.Synthesized || stored.PageViews != 1 || stored.TotalClicks != 0 {
		t.Errorf("stored session absorbed session-less events: %+v", stored)
	}
	orphans := byID[UnknownSessionID]
	if !orphans.Synthesized || orphans.PageViews != 1 || orphans.TotalClicks != 1 {
		t.Errorf("session-less view = %+v, want synthesized with 1 view and 1 click", orphans)
	}

	// Even a stored row carrying the bucket id does not take the session-less events.
	views = BuildSessionViews(sessions[1:], events[1:], Filters{})
	synthesized := 0
	for _, v := range views {
		if v.Synthesized {
			synthesized++
			if v.PageViews != 1 || v.TotalClicks != 1 {
				t.Errorf("session-less view = %+v", v)
			}
		} else if v.PageViews != 0 || v.TotalClicks != 0 {
			t.Errorf("stored row absorbed session-less events: %+v", v)
		}
	}
	if synthesized != 1 {
		t.Errorf("expected one synthesized view, got %d in %+v", synthesized, views)
	}
}

func TestBuildSessionViews_CountryFilter(t *testing.T) {
	sessions := []Session{
		{ID: "a", Country: "IN", CreatedAt: at(1)},
		{ID: "b", Country: "US", CreatedAt: at(2)},
		{ID: "c", Country: "IN", CreatedAt: at(3)},
	}
	events := []Event{pageView("a", at(4)), pageView("b", at(5)), pageView("c", at(6))}

	views := BuildSessionViews(sessions, events, Filters{Country: "IN"})
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if stats := RollUp(views); stats.TotalSessions != 2 {
		t.Errorf("expected 2 sessions, got %d", stats.TotalSessions)
	}
	for _, v := range views {
		if v.Country != "IN" {
			t.Errorf("unexpected country %q in filtered views", v.Country)
		}
	}
}

func TestBuildSessionViews_Filters(t *testing.T) {
	sessions := []Session{
		{ID: "meta-in", Country: "IN", Source: "meta", CreatedAt: at(1)},
		{ID: "direct-us", Country: "US", CreatedAt: at(2)},
		{ID: "li-ww", Source: "linkedin", CreatedAt: at(3)},
	}
	events := []Event{pageView("ghost", at(4))}

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{name: "no filter", filters: Filters{}, want: []string{"ghost", "li-ww", "direct-us", "meta-in"}},
		{name: "source meta", filters: Filters{Source: "meta"}, want: []string{"meta-in"}},
		{name: "default source matches direct", filters: Filters{Source: "direct"}, want: []string{"ghost", "direct-us"}},
		{name: "default country matches WW", filters: Filters{Country: "WW"}, want: []string{"ghost", "li-ww"}},
		{name: "both filters", filters: Filters{Country: "US", Source: "direct"}, want: []string{"direct-us"}},
		{name: "case sensitive", filters: Filters{Country: "in"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views := BuildSessionViews(sessions, events, tt.filters)
			got := make([]string, 0, len(views))
			for _, v := range views {
				got = append(got, v.SessionID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildSessionViews_SessionWithoutEvents(t *testing.T) {
	views := BuildSessionViews([]Session{{ID: "idle", CreatedAt: t0}}, nil, Filters{})
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	v := views[0]
	if v.PageViews != 0 || v.TotalClicks != 0 || v.UniqueClicks != 0 {
		t.Errorf("expected zero counters, got %+v", v)
	}
	if !v.LastActive.Equal(t0) {
		t.Errorf("expected last active to fall back to creation time, got %v", v.LastActive)
	}
	if v.ContentBreakdown == nil || len(v.ContentBreakdown) != 0 {
		t.Errorf("expected empty non-nil breakdown, got %#v", v.ContentBreakdown)
	}
}

func TestBuildSessionViews_Ordering(t *testing.T) {
	sessions := []Session{
		{ID: "old", CreatedAt: at(1)},
		{ID: "tie-b", CreatedAt: at(5)},
		{ID: "tie-a", CreatedAt: at(5)},
		{ID: "new", CreatedAt: at(9)},
	}
	views := BuildSessionViews(sessions, nil, Filters{})
	got := []string{}
	for _, v := range views {
		got = append(got, v.SessionID)
	}
	want := []string{"new", "tie-a", "tie-b", "old"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}
}

func TestBuildSessionViews_DuplicateSessionRows(t *testing.T) {
	sessions := []Session{
		{ID: "s1", Country: "IN", CreatedAt: t0},
		{ID: "s1", Country: "US", CreatedAt: t0},
	}
	views := BuildSessionViews(sessions, []Event{pageView("s1", at(1))}, Filters{})
	if len(views) != 1 {
		t.Fatalf("expected duplicate rows to collapse into 1 view, got %d", len(views))
	}
	if views[0].Country != "IN" {
		t.Errorf("expected first row to win, got %q", views[0].Country)
	}
}

func TestBuildSessionViews_LastActiveNeverMovesBackwards(t *testing.T) {
	stored := Session{ID: "s1", CreatedAt: t0, LastActive: at(30)}
	views := BuildSessionViews([]Session{stored}, []Event{pageView("s1", at(10))}, Filters{})
	if !views[0].LastActive.Equal(at(30)) {
		t.Errorf("expected stored last active to be kept, got %v", views[0].LastActive)
	}

	var prev time.Time
	events := []Event{}
	for _, m := range []int{3, 1, 8, 2, 8, 12} {
		events = append(events, pageView("s1", at(m)))
		v := BuildSessionViews([]Session{{ID: "s1", CreatedAt: t0}}, events, Filters{})[0]
		if v.LastActive.Before(prev) {
			t.Fatalf("last active went backwards: %v after %v", v.LastActive, prev)
		}
		prev = v.LastActive
	}
	if !prev.Equal(at(12)) {
		t.Errorf("expected final last active %v, got %v", at(12), prev)
	}
}

func TestBuildSessionViews_ClickConservationAndUniqueness(t *testing.T) {
	sessions := []Session{
		{ID: "s1", CreatedAt: at(1)},
		{ID: "s2", CreatedAt: at(2)},
	}
	events := []Event{
		contentClick("s1", "blogA", at(3)),
		contentClick("s1", "blogA", at(4)),
		contentClick("s1", "blogB", at(5)),
		searchClick("s1", "rs1", "best shoes", at(6)),
		outboundClick("s1", "rs1", "best shoes", at(7)),
		outboundClick("s1", "rs1", "best shoes", at(8)),
		pageView("s1", at(9)),
		emailCapture("s1", "a@example.com", at(10)),
		searchClick("s2", "rs1", "best shoes", at(11)),
		searchClick("s2", "rs2", "cheap flights", at(12)),
		searchClick("s3", "rs2", "cheap flights", at(13)),
	}

	views := BuildSessionViews(sessions, events, Filters{})

	clickEvents := 0
	for _, e := range events {
		if e.Kind().IsClick() {
			clickEvents++
		}
	}
	sum := 0
	for _, v := range views {
		sum += v.TotalClicks
		if v.UniqueClicks > v.TotalClicks {
			t.Errorf("session %s: unique clicks %d exceed total %d", v.SessionID, v.UniqueClicks, v.TotalClicks)
		}
	}
	if sum != clickEvents {
		t.Errorf("sum of session clicks = %d, want %d", sum, clickEvents)
	}

	byID := map[string]SessionView{}
	for _, v := range views {
		byID[v.SessionID] = v
	}
	s1 := byID["s1"]
	// (content,blogA) (content,blogB) (search,rs1) (outbound,rs1)
	if s1.UniqueClicks != 4 {
		t.Errorf("s1 unique clicks = %d, want 4", s1.UniqueClicks)
	}
	if s1.TotalClicks != 6 || s1.OutboundClicks != 2 || s1.EmailCaptures != 1 {
		t.Errorf("unexpected s1 counters: %+v", s1)
	}
	if _, ok := byID["s3"]; !ok {
		t.Error("expected synthesized view for s3")
	}
}

func TestRollUp(t *testing.T) {
	tests := []struct {
		name  string
		views []SessionView
		want  GlobalStats
	}{
		{
			name:  "empty",
			views: nil,
			want:  GlobalStats{},
		},
		{
			name: "distinct ips",
			views: []SessionView{
				{IPAddress: "1.1.1.1", PageViews: 2, TotalClicks: 3},
				{IPAddress: "2.2.2.2", PageViews: 1, TotalClicks: 0},
				{IPAddress: "1.1.1.1", PageViews: 0, TotalClicks: 1},
			},
			want: GlobalStats{TotalSessions: 3, TotalPageViews: 3, TotalClicks: 4, UniqueVisitors: 2},
		},
		{
			name: "missing ips share one bucket",
			views: []SessionView{
				{IPAddress: ""},
				{IPAddress: ""},
				{IPAddress: "hidden"},
			},
			want: GlobalStats{TotalSessions: 3, UniqueVisitors: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RollUp(tt.views); got != tt.want {
				t.Errorf("RollUp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeBreakdowns(t *testing.T) {
	sessions := []Session{{ID: "s1", CreatedAt: at(1)}, {ID: "s2", CreatedAt: at(2)}}
	events := []Event{
		contentClick("s1", "blogA", at(3)),
		contentClick("s1", "blogA", at(4)),
		contentClick("s2", "blogA", at(5)),
		contentClick("s2", "blogB", at(6)),
		searchClick("s1", "rs1", "best shoes", at(7)),
		{SessionID: "s2", At: at(8), Detail: SearchClick{Phrase: EntityRef{ID: "rs-gone"}}},
	}

	content, search := MergeBreakdowns(BuildSessionViews(sessions, events, Filters{}))

	wantContent := []Breakdown{
		{ID: "blogA", Title: "blogA", TotalClicks: 3, UniqueVisitors: 2},
		{ID: "blogB", Title: "blogB", TotalClicks: 1, UniqueVisitors: 1},
	}
	if !reflect.DeepEqual(content, wantContent) {
		t.Errorf("content = %+v, want %+v", content, wantContent)
	}
	wantSearch := []Breakdown{
		{ID: "rs-gone", Title: UnknownLabel, TotalClicks: 1, UniqueVisitors: 1},
		{ID: "rs1", Title: "best shoes", TotalClicks: 1, UniqueVisitors: 1},
	}
	if !reflect.DeepEqual(search, wantSearch) {
		t.Errorf("search = %+v, want %+v", search, wantSearch)
	}
}
