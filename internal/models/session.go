package models

import "time"

// Session represents one visitor session of a property's public funnel.
// It is written once by the tracking endpoint on the visitor's first page load.
type Session struct {
	// ID is the primary key with auto-increment functionality
	ID uint `gorm:"primaryKey"`

	// SessionID is the opaque token the funnel attaches to every event
	SessionID string `gorm:"uniqueIndex;size:64;not null"`

	IPAddress string `gorm:"size:50"`

	// Country is an ISO country code, or "WW" when geolocation failed
	Country string `gorm:"size:8;index"`

	// Source is the referral label: direct, meta, linkedin...
	Source string `gorm:"size:32;index"`

	// Device is tablet, mobile or desktop
	Device    string `gorm:"size:16"`
	UserAgent string `gorm:"size:255"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	// LastActive is only set by funnels that maintain it themselves
	LastActive *time.Time
}

// TableName keeps the table name shared with the hosted funnels.
func (Session) TableName() string {
	return "analytics_sessions"
}
