package analytics

import (
	"sort"
	"strings"
	"time"
)

// RawEvent is an event row as returned by a store, before its raw kind is
// mapped onto the fixed taxonomy.
type RawEvent struct {
	SessionID string
	Kind      string
	At        time.Time
	PageType  string
	PageID    string
	Content   EntityRef
	Phrase    EntityRef
	// Title is a free-form item label some properties record instead of a
	// foreign reference.
	Title   string
	Payload string
}

// Property is one content-mill site and the event vocabulary its funnel writes.
type Property struct {
	Name    string
	Display string

	kinds map[string]Kind
	// fallback classifies raw kinds missing from kinds, if set.
	fallback func(raw, title string) (Kind, bool)
}

var properties = map[string]Property{
	"topicmingle": {
		Name:    "topicmingle",
		Display: "TopicMingle",
		kinds: map[string]Kind{
			"page_view":            KindPageView,
			"blog_click":           KindContentClick,
			"related_search_click": KindSearchClick,
			"visit_now_click":      KindOutboundClick,
			"email_capture":        KindEmailCapture,
		},
	},
	"dataorbitzone": {
		Name:    "dataorbitzone",
		Display: "DataOrbitZone",
		kinds: map[string]Kind{
			"page_view":            KindPageView,
			"blog_click":           KindContentClick,
			"related_search_click": KindSearchClick,
			"visit_now":            KindOutboundClick,
			"visit_now_click":      KindOutboundClick,
			"email_capture":        KindEmailCapture,
		},
	},
	"webresults": {
		Name:    "webresults",
		Display: "WebResults",
		kinds: map[string]Kind{
			"page_view":            KindPageView,
			"related_search":       KindSearchClick,
			"related_search_click": KindSearchClick,
			"result_click":         KindOutboundClick,
			"web_result":           KindOutboundClick,
			"email_capture":        KindEmailCapture,
		},
	},
	"topsports": {
		Name:    "topsports",
		Display: "TopSports",
		kinds: map[string]Kind{
			"page_view":         KindPageView,
			"page":              KindPageView,
			"view":              KindPageView,
			"blog":              KindContentClick,
			"blog_click":        KindContentClick,
			"category":          KindContentClick,
			"related_search":    KindSearchClick,
			"search":            KindSearchClick,
			"related":           KindSearchClick,
			"web_result":        KindOutboundClick,
			"prelanding":        KindOutboundClick,
			"prelanding_submit": KindOutboundClick,
			"email":             KindEmailCapture,
			"email_capture":     KindEmailCapture,
		},
		fallback: func(raw, title string) (Kind, bool) {
			if strings.Contains(raw, "email") {
				return KindEmailCapture, true
			}
			if strings.Contains(strings.ToLower(title), "blog") {
				return KindContentClick, true
			}
			return 0, false
		},
	},
	"topuniversityterritian": {
		Name:    "topuniversityterritian",
		Display: "TopUniversityTerritian",
		kinds: map[string]Kind{
			"page_view":      KindPageView,
			"web_result":     KindOutboundClick,
			"related_search": KindSearchClick,
			"email_capture":  KindEmailCapture,
		},
	},
}

// LookupProperty returns the property registered under name (case-insensitive).
func LookupProperty(name string) (Property, bool) {
	p, ok := properties[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PropertyNames lists the registered property names in alphabetical order.
func PropertyNames() []string {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classify maps a raw kind of this property onto the fixed taxonomy.
func (p Property) Classify(raw, title string) (Kind, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if k, ok := p.kinds[raw]; ok {
		return k, true
	}
	if p.fallback != nil {
		return p.fallback(raw, title)
	}
	return 0, false
}

// Decode converts a raw row into a typed Event. ok is false when the raw kind
// is not part of the property's vocabulary.
func (p Property) Decode(r RawEvent) (Event, bool) {
	kind, ok := p.Classify(r.Kind, r.Title)
	if !ok {
		return Event{}, false
	}

	var d Detail
	switch kind {
	case KindPageView:
		pageType := r.PageType
		if pageType == "" {
			pageType = strings.ToLower(strings.TrimSpace(r.Kind))
		}
		d = PageView{PageType: pageType, PageID: r.PageID}
	case KindContentClick:
		d = ContentClick{Content: withTitle(r.Content, r.Title)}
	case KindSearchClick:
		d = SearchClick{Phrase: withTitle(r.Phrase, r.Title)}
	case KindOutboundClick:
		d = OutboundClick{Phrase: withTitle(r.Phrase, r.Title)}
	case KindEmailCapture:
		d = EmailCapture{Address: r.Payload}
	default:
		return Event{}, false
	}
	return Event{SessionID: r.SessionID, At: r.At, Detail: d}, true
}

// DecodeAll decodes rows with p, returning the events and the number of rows
// whose kind was not recognised.
func (p Property) DecodeAll(rows []RawEvent) ([]Event, int) {
	events := make([]Event, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		e, ok := p.Decode(r)
		if !ok {
			skipped++
			continue
		}
		events = append(events, e)
	}
	return events, skipped
}

// withTitle fills a reference that only has a free-form item label.
func withTitle(ref EntityRef, title string) EntityRef {
	if ref.Title == "" {
		ref.Title = title
	}
	if ref.ID == "" {
		ref.ID = ref.Title
	}
	return ref
}
