// Package analytics turns raw funnel sessions and events into the view models
// shown on the admin dashboard: per-session cards, global roll-ups,
// per-entity click breakdowns and on-demand session details.
//
// Everything in this package is a pure function of its inputs except the
// DetailCache and the Board, which the caller owns explicitly.
package analytics

import "time"

// Kind is the fixed event taxonomy every property vocabulary maps onto.
type Kind int

const (
	KindPageView Kind = iota
	KindContentClick
	KindSearchClick
	KindOutboundClick
	KindEmailCapture
)

// KindUnknown is reported for an Event without a Detail.
const KindUnknown Kind = -1

// String returns the canonical snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPageView:
		return "page_view"
	case KindContentClick:
		return "content_click"
	case KindSearchClick:
		return "search_click"
	case KindOutboundClick:
		return "outbound_click"
	case KindEmailCapture:
		return "email_capture"
	}
	return "unknown"
}

// IsClick reports whether events of this kind count towards click totals.
func (k Kind) IsClick() bool {
	return k == KindContentClick || k == KindSearchClick || k == KindOutboundClick
}

// EntityRef is a foreign reference to a Content or SearchPhrase row.
// Title is resolved by the data-access layer and may be empty when the
// referenced row no longer exists.
type EntityRef struct {
	ID    string
	Title string
}

// Label returns the display title, or UnknownLabel when it could not be resolved.
func (r EntityRef) Label() string {
	if r.Title == "" {
		return UnknownLabel
	}
	return r.Title
}

// Detail is the kind-specific part of an Event. The set of implementations is
// closed: PageView, ContentClick, SearchClick, OutboundClick and EmailCapture.
type Detail interface {
	Kind() Kind
	sealed()
}

// PageView records a page load of the public funnel.
type PageView struct {
	PageType string
	PageID   string
}

// ContentClick records a click on a blog post card.
type ContentClick struct {
	Content EntityRef
}

// SearchClick records a click on a related-search suggestion.
type SearchClick struct {
	Phrase EntityRef
}

// OutboundClick records a "visit now" click leaving for the affiliate link.
type OutboundClick struct {
	Phrase EntityRef
}

// EmailCapture records an address submitted on a pre-landing page.
type EmailCapture struct {
	Address string
}

func (PageView) Kind() Kind      { return KindPageView }
func (ContentClick) Kind() Kind  { return KindContentClick }
func (SearchClick) Kind() Kind   { return KindSearchClick }
func (OutboundClick) Kind() Kind { return KindOutboundClick }
func (EmailCapture) Kind() Kind  { return KindEmailCapture }

func (PageView) sealed()      {}
func (ContentClick) sealed()  {}
func (SearchClick) sealed()   {}
func (OutboundClick) sealed() {}
func (EmailCapture) sealed()  {}

// Event is one recorded user action tied to a session.
type Event struct {
	SessionID string
	At        time.Time
	Detail    Detail
}

// Kind is a shortcut for e.Detail.Kind(). It returns KindUnknown when the
// event carries no Detail.
func (e Event) Kind() Kind {
	if e.Detail == nil {
		return KindUnknown
	}
	return e.Detail.Kind()
}

// entityKey returns the (kind, entity id) pair used for per-session
// uniqueness. ok is false for kinds that are not clicks.
func (e Event) entityKey() (key clickKey, ok bool) {
	switch d := e.Detail.(type) {
	case ContentClick:
		return clickKey{kind: KindContentClick, id: d.Content.ID}, true
	case SearchClick:
		return clickKey{kind: KindSearchClick, id: d.Phrase.ID}, true
	case OutboundClick:
		return clickKey{kind: KindOutboundClick, id: d.Phrase.ID}, true
	case PageView, EmailCapture:
		return clickKey{}, false
	}
	return clickKey{}, false
}

type clickKey struct {
	kind Kind
	id   string
}
