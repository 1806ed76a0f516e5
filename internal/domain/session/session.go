package session

import (
	"context"
	"time"
)

// Kind names the flow a session's next free-text message answers.
type Kind string

const (
	KindLateReason  Kind = "late_reason"
	KindDisplayName Kind = "display_name"
)

// Session marks that the next free-text message from UserID is input for a flow.
// There is at most one session per user; opening a new one replaces the old.
type Session struct {
	UserID    int64
	Kind      Kind
	TargetID  int64 // Late report ID for KindLateReason, unused otherwise
	ExpiresAt time.Time
}

// Expired reports whether the session has lapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Targets reports whether the session waits for input about the given report.
func (s *Session) Targets(reportID int64) bool {
	return s.Kind == KindLateReason && s.TargetID == reportID
}

// Repository stores conversational sessions.
type Repository interface {
	// Put inserts or replaces the session of s.UserID.
	Put(ctx context.Context, s *Session) error
	// Get returns the live session of userID, treating an expired one as absent.
	Get(ctx context.Context, userID int64, now time.Time) (*Session, error)
	Delete(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
