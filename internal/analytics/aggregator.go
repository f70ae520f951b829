package analytics

import (
	"sort"
	"time"
)

// UnknownSessionID is the id of the synthesized card that holds events which
// arrived without any session id. It contains characters no session id
// generator emits, and the tracking endpoint refuses it.
const UnknownSessionID = "(no session)"

// Breakdown is the click count of one Content or SearchPhrase entity.
// UniqueVisitors is the number of distinct sessions that clicked it, which is
// a different axis from SessionView.UniqueClicks.
type Breakdown struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	TotalClicks    int    `json:"total_clicks"`
	UniqueVisitors int    `json:"unique_visitors"`
}

// SessionView is the dashboard card of one session.
type SessionView struct {
	SessionID  string    `json:"session_id"`
	IPAddress  string    `json:"ip_address"`
	Country    string    `json:"country"`
	Source     string    `json:"source"`
	Device     string    `json:"device"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	PageViews    int `json:"page_views"`
	TotalClicks  int `json:"total_clicks"`
	UniqueClicks int `json:"unique_clicks"`

	ContentClicks  int `json:"content_clicks"`
	SearchClicks   int `json:"search_clicks"`
	OutboundClicks int `json:"outbound_clicks"`
	EmailCaptures  int `json:"email_captures"`

	ContentBreakdown []Breakdown `json:"content_breakdown"`
	SearchBreakdown  []Breakdown `json:"search_breakdown"`

	// Synthesized is set when events referenced a session id with no stored session.
	Synthesized bool `json:"synthesized"`
}

// GlobalStats are the summary tiles of the dashboard.
type GlobalStats struct {
	TotalSessions  int `json:"total_sessions"`
	TotalPageViews int `json:"total_page_views"`
	TotalClicks    int `json:"total_clicks"`
	UniqueVisitors int `json:"unique_visitors"`
}

// BuildSessionViews groups events by session and returns one view per session
// passing filters, most recently created first.
//
// The list is driven by sessions: a session with no events still gets a view.
// Events whose session id is absent from sessions are never dropped; they get
// a synthesized session with default attributes, which filters apply to as well.
func BuildSessionViews(sessions []Session, events []Event, filters Filters) []SessionView {
	bySession := make(map[string][]Event)
	var orphans []Event
	for _, e := range events {
		if e.SessionID == "" {
			orphans = append(orphans, e)
			continue
		}
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}

	known := make(map[string]struct{}, len(sessions))
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		if _, dup := known[s.ID]; dup {
			continue
		}
		known[s.ID] = struct{}{}
		if !filters.Match(s) {
			continue
		}
		views = append(views, buildView(s, bySession[s.ID], false))
	}

	for id, evs := range bySession {
		if _, ok := known[id]; ok {
			continue
		}
		s := Session{ID: id, CreatedAt: earliest(evs)}
		if !filters.Match(s) {
			continue
		}
		views = append(views, buildView(s, evs, true))
	}

	// Session-less events never join a stored session, whatever its id.
	if len(orphans) > 0 {
		s := Session{ID: UnknownSessionID, CreatedAt: earliest(orphans)}
		if filters.Match(s) {
			views = append(views, buildView(s, orphans, true))
		}
	}

	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].SessionID < views[j].SessionID
	})
	return views
}

func buildView(s Session, events []Event, synthesized bool) SessionView {
	s = s.withDefaults()
	v := SessionView{
		SessionID:   s.ID,
		IPAddress:   s.IPAddress,
		Country:     s.Country,
		Source:      s.Source,
		Device:      s.Device,
		CreatedAt:   s.CreatedAt,
		LastActive:  s.LastActive,
		Synthesized: synthesized,
	}
	if v.LastActive.Before(s.CreatedAt) {
		v.LastActive = s.CreatedAt
	}

	unique := make(map[clickKey]struct{})
	content := newBreakdownBuilder()
	search := newBreakdownBuilder()
	for _, e := range events {
		if e.At.After(v.LastActive) {
			v.LastActive = e.At
		}
		switch d := e.Detail.(type) {
		case PageView:
			v.PageViews++
		case ContentClick:
			v.ContentClicks++
			content.add(d.Content, v.SessionID, 1)
		case SearchClick:
			v.SearchClicks++
			search.add(d.Phrase, v.SessionID, 1)
		case OutboundClick:
			v.OutboundClicks++
		case EmailCapture:
			v.EmailCaptures++
		}
		if key, ok := e.entityKey(); ok {
			unique[key] = struct{}{}
		}
	}
	v.TotalClicks = v.ContentClicks + v.SearchClicks + v.OutboundClicks
	v.UniqueClicks = len(unique)
	v.ContentBreakdown = content.build()
	v.SearchBreakdown = search.build()
	return v
}

// RollUp reduces session views to the global summary counters. Sessions with
// no IP address share a single "unknown" visitor bucket.
func RollUp(views []SessionView) GlobalStats {
	stats := GlobalStats{TotalSessions: len(views)}
	ips := make(map[string]struct{}, len(views))
	for _, v := range views {
		stats.TotalPageViews += v.PageViews
		stats.TotalClicks += v.TotalClicks
		ip := v.IPAddress
		if ip == "" {
			ip = unknownIP
		}
		ips[ip] = struct{}{}
	}
	stats.UniqueVisitors = len(ips)
	return stats
}

// MergeBreakdowns combines the per-session breakdowns of views into global
// content and search breakdowns.
func MergeBreakdowns(views []SessionView) (content, search []Breakdown) {
	cb := newBreakdownBuilder()
	sb := newBreakdownBuilder()
	for _, v := range views {
		for _, b := range v.ContentBreakdown {
			cb.add(EntityRef{ID: b.ID, Title: b.Title}, v.SessionID, b.TotalClicks)
		}
		for _, b := range v.SearchBreakdown {
			sb.add(EntityRef{ID: b.ID, Title: b.Title}, v.SessionID, b.TotalClicks)
		}
	}
	return cb.build(), sb.build()
}

func earliest(events []Event) time.Time {
	var t time.Time
	for i, e := range events {
		if i == 0 || e.At.Before(t) {
			t = e.At
		}
	}
	return t
}

type breakdownGroup struct {
	ref      EntityRef
	total    int
	sessions map[string]struct{}
}

type breakdownBuilder struct {
	groups map[string]*breakdownGroup
}

func newBreakdownBuilder() *breakdownBuilder {
	return &breakdownBuilder{groups: make(map[string]*breakdownGroup)}
}

func (b *breakdownBuilder) add(ref EntityRef, sessionID string, clicks int) {
	g, ok := b.groups[ref.ID]
	if !ok {
		g = &breakdownGroup{ref: ref, sessions: make(map[string]struct{})}
		b.groups[ref.ID] = g
	}
	if g.ref.Title == "" || g.ref.Title == UnknownLabel {
		g.ref.Title = ref.Title
	}
	g.total += clicks
	g.sessions[sessionID] = struct{}{}
}

// build returns the groups ordered by clicks desc, then title, then id.
func (b *breakdownBuilder) build() []Breakdown {
	out := make([]Breakdown, 0, len(b.groups))
	for _, g := range b.groups {
		out = append(out, Breakdown{
			ID:             g.ref.ID,
			Title:          g.ref.Label(),
			TotalClicks:    g.total,
			UniqueVisitors: len(g.sessions),
		})
	}
	sortBreakdowns(out)
	return out
}

func sortBreakdowns(out []Breakdown) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalClicks != out[j].TotalClicks {
			return out[i].TotalClicks > out[j].TotalClicks
		}
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
}
