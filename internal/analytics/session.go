package analytics

import "time"

// Defaults applied to session attributes that were never recorded.
const (
	DefaultCountry = "WW"
	DefaultSource  = "direct"
	DefaultDevice  = "unknown"
	UnknownLabel   = "Unknown"
	unknownIP      = "unknown"
)

// Session is one visitor's browsing context as stored by the public funnel.
// LastActive is optional; the zero value means it was never recorded.
type Session struct {
	ID         string
	IPAddress  string
	Country    string
	Source     string
	Device     string
	CreatedAt  time.Time
	LastActive time.Time
}

// withDefaults returns a copy with empty attributes replaced by their defaults.
func (s Session) withDefaults() Session {
	if s.Country == "" {
		s.Country = DefaultCountry
	}
	if s.Source == "" {
		s.Source = DefaultSource
	}
	if s.Device == "" {
		s.Device = DefaultDevice
	}
	return s
}

// Filters narrows the dashboard to one country and/or one traffic source.
// Empty fields match everything. Matching is exact and case-sensitive,
// against the defaulted session attributes.
type Filters struct {
	Country string `form:"country" json:"country,omitempty"`
	Source  string `form:"source" json:"source,omitempty"`
}

// IsZero reports whether no filter is active.
func (f Filters) IsZero() bool {
	return f.Country == "" && f.Source == ""
}

// Match reports whether the session passes both filters.
func (f Filters) Match(s Session) bool {
	s = s.withDefaults()
	if f.Country != "" && s.Country != f.Country {
		return false
	}
	if f.Source != "" && s.Source != f.Source {
		return false
	}
	return true
}

// Key returns a stable cache key for the filter pair.
func (f Filters) Key() string {
	return "country=" + f.Country + "&source=" + f.Source
}
