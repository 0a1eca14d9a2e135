package domain

import "time"

// EditingSession is an advisory presence record for one actor editing one
// entity. Sessions never gate writes; they only inform UIs.
type EditingSession struct {
	ID              string
	EntityID        string
	Actor           string
	StartedAt       time.Time
	LastHeartbeatAt time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the session missed its heartbeat window.
func (s *EditingSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionPresence pairs a live session with a conflict-risk hint: the
// fields its actor changed recently, so a UI can warn other editors.
type SessionPresence struct {
	Session              EditingSession
	RecentlyTouchedField []string
}
