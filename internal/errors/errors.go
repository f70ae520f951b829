package errors

import (
	"errors"
	"fmt"
)

// Custom error types for the funnel analytics application

// ErrSessionNotFound is returned when a session id has neither a stored session nor any event
var ErrSessionNotFound = errors.New("session not found")

// ErrUnknownProperty is returned when the configured property has no event vocabulary
var ErrUnknownProperty = errors.New("unknown property")

// ErrUnknownEventKind is returned when a tracked event kind is not part of the property vocabulary
var ErrUnknownEventKind = errors.New("unknown event kind")

// ErrUnsupportedDriver is returned when database.driver names no known backing store
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// ErrTrackingUnavailable is returned when the backing store is read-only (Supabase, ClickHouse)
var ErrTrackingUnavailable = errors.New("event tracking is not available on this backing store")

// ErrReservedSessionID is returned when a tracked session id collides with the session-less bucket
var ErrReservedSessionID = errors.New("session id is reserved")

// ErrTrackingQueueFull is returned when the tracking channel buffer is full and the event was dropped
var ErrTrackingQueueFull = errors.New("tracking queue is full")

// ErrFetchFailed is returned when a backing store could not be read
type ErrFetchFailed struct {
	Source string
	Reason string
}

func (e ErrFetchFailed) Error() string {
	return fmt.Sprintf("failed to fetch %s: %s", e.Source, e.Reason)
}

// ErrEventRecordingFailed is returned when a tracked event could not be persisted
type ErrEventRecordingFailed struct {
	SessionID string
	Kind      string
	Reason    string
}

func (e ErrEventRecordingFailed) Error() string {
	return fmt.Sprintf("failed to record %s event for session %s: %s", e.Kind, e.SessionID, e.Reason)
}
