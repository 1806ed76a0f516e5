package latereport

import (
	"database/sql"
	"errors"
	"time"
)

// Status is the lifecycle state of a late report.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusCancelled
}

var (
	// ErrVersionConflict is returned when an update was based on a stale read
	// of the report (another writer got there first, or the report is closed).
	ErrVersionConflict = errors.New("late report was modified concurrently")
	// ErrImmutableStatus is returned for patches that try to move a report back to pending.
	ErrImmutableStatus = errors.New("late report status can only move to processed or cancelled")
	// ErrCacheInvalidation wraps failures of the stats cache purge that follows a
	// successful write. The write itself is durable when this is returned.
	ErrCacheInvalidation = errors.New("stats cache invalidation failed")
)

// Report is one incident of a user self-reporting lateness in a group.
// Corresponds to the 'late_reports' table.
type Report struct {
	ID            int64
	UserID        int64  // Foreign Key to users.id
	GroupID       int64  // Foreign Key to groups.id
	EmployeeName  string // Snapshot taken at creation, never re-derived
	IsBeforeNine  bool
	ReportTime    time.Time
	Reason        sql.NullString
	Status        Status
	AdminNotified bool
	Version       int // Bumped by every update, used for conditional writes
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasReason reports whether a non-blank reason is recorded.
func (r *Report) HasReason() bool {
	return r.Reason.Valid && r.Reason.String != ""
}

// ListedReport is a report joined with the names shown in admin listings.
type ListedReport struct {
	Report
	UserName   string
	GroupTitle string
}

// IsBeforeNine reports whether t falls before 09:00 in loc.
func IsBeforeNine(t time.Time, loc *time.Location) bool {
	return t.In(loc).Hour() < 9
}
