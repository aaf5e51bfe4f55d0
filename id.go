package anuris

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for session records.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ShortID generates an 8-character opaque id for background tasks and
// shutdown/plan requests.
func ShortID() string {
	return uuid.NewString()[:8]
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
