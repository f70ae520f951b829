package models

import (
	"fmt"
	"time"
)

// Blog is a blog post of the property, the "content" entity of click breakdowns.
// Rows are managed by the admin CRUD screens; this application only reads them.
type Blog struct {
	ID           string `gorm:"primaryKey;size:36"`
	Title        string `gorm:"not null"`
	Slug         string `gorm:"size:255"`
	SerialNumber *int
	CategoryID   *int
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (Blog) TableName() string {
	return "blogs"
}

// Label returns the title prefixed with the serial number when there is one.
func (b *Blog) Label() string {
	if b == nil {
		return ""
	}
	if b.SerialNumber != nil {
		return fmt.Sprintf("[%d] %s", *b.SerialNumber, b.Title)
	}
	return b.Title
}

// RelatedSearch is a search suggestion shown under a blog post.
type RelatedSearch struct {
	ID          string `gorm:"primaryKey;size:36"`
	SearchText  string `gorm:"not null"`
	BlogID      *string
	OrderNumber *int
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (RelatedSearch) TableName() string {
	return "related_searches"
}

// Label returns the search text, or an empty string for a nil reference.
func (r *RelatedSearch) Label() string {
	if r == nil {
		return ""
	}
	return r.SearchText
}

// All lists every model handled by migrations.
func All() []interface{} {
	return []interface{}{&Session{}, &Event{}, &Blog{}, &RelatedSearch{}}
}
