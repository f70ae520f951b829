package models

import "time"

// Event represents one user action recorded by the public funnel.
// Kind holds the raw vocabulary of the property (blog_click, item_type values...),
// it is mapped onto the fixed taxonomy only when read back for aggregation.
type Event struct {
	// ID is a UUID generated by the tracking service
	ID string `gorm:"primaryKey;size:36"`

	// SessionID references Session.SessionID without a database constraint:
	// events may arrive before, or without, their session row
	SessionID string `gorm:"index;size:64;not null"`

	Kind       string    `gorm:"size:64;not null"`
	OccurredAt time.Time `gorm:"index"`

	PageType string `gorm:"size:32"`
	PageID   string `gorm:"size:64"`

	// ContentID is the clicked blog post, if any
	ContentID *string `gorm:"size:36;index"`
	Content   *Blog   `gorm:"foreignKey:ContentID"`

	// SearchID is the clicked related search, if any
	SearchID *string        `gorm:"size:36;index"`
	Search   *RelatedSearch `gorm:"foreignKey:SearchID"`

	// ItemTitle is a free-form label for funnels that do not store references
	ItemTitle string `gorm:"size:255"`

	// Payload carries the captured email address of email_capture events
	Payload string `gorm:"size:255"`
}

// TableName keeps the table name shared with the hosted funnels.
func (Event) TableName() string {
	return "analytics_events"
}

// EventRecord represents a raw tracked event intended to be passed through channels.
// This lightweight struct is used for asynchronous processing between goroutines.
type EventRecord struct {
	ID         string
	SessionID  string
	Kind       string
	OccurredAt time.Time
	PageType   string
	PageID     string
	ContentID  string
	SearchID   string
	ItemTitle  string
	Payload    string
}

// ToModel converts the record into the persisted Event row.
func (r EventRecord) ToModel() *Event {
	return &Event{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Kind:       r.Kind,
		OccurredAt: r.OccurredAt,
		PageType:   r.PageType,
		PageID:     r.PageID,
		ContentID:  optional(r.ContentID),
		SearchID:   optional(r.SearchID),
		ItemTitle:  r.ItemTitle,
		Payload:    r.Payload,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
