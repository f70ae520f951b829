package analytics

import (
	"sort"
	"time"
)

// CapturedEmail is an address submitted on a pre-landing page.
type CapturedEmail struct {
	Address    string    `json:"address"`
	CapturedAt time.Time `json:"captured_at"`
}

// SessionDetail is the expanded part of a session card.
type SessionDetail struct {
	SessionID      string          `json:"session_id"`
	ContentClicks  []Breakdown     `json:"content_clicks"`
	SearchClicks   []Breakdown     `json:"search_clicks"`
	OutboundClicks []Breakdown     `json:"outbound_clicks"`
	Emails         []CapturedEmail `json:"emails"`
}

// ExpandSessionDetail partitions the events of one session into per-entity
// click lists and captured emails. Events of other sessions are ignored.
// Calling it twice with the same inputs yields equal results.
func ExpandSessionDetail(sessionID string, events []Event) SessionDetail {
	content := newBreakdownBuilder()
	search := newBreakdownBuilder()
	outbound := newBreakdownBuilder()
	emails := make([]CapturedEmail, 0)

	for _, e := range events {
		id := e.SessionID
		if id == "" {
			id = UnknownSessionID
		}
		if id != sessionID {
			continue
		}
		switch d := e.Detail.(type) {
		case ContentClick:
			content.add(d.Content, id, 1)
		case SearchClick:
			search.add(d.Phrase, id, 1)
		case OutboundClick:
			outbound.add(d.Phrase, id, 1)
		case EmailCapture:
			emails = append(emails, CapturedEmail{Address: d.Address, CapturedAt: e.At})
		case PageView:
		}
	}

	sort.SliceStable(emails, func(i, j int) bool {
		if !emails[i].CapturedAt.Equal(emails[j].CapturedAt) {
			return emails[i].CapturedAt.Before(emails[j].CapturedAt)
		}
		return emails[i].Address < emails[j].Address
	})

	return SessionDetail{
		SessionID:      sessionID,
		ContentClicks:  content.build(),
		SearchClicks:   search.build(),
		OutboundClicks: outbound.build(),
		Emails:         emails,
	}
}
