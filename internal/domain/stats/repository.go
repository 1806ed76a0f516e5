package stats

import (
	"context"
	"time"
)

// Querier runs the aggregate queries over processed late reports.
type Querier interface {
	TallyByUser(ctx context.Context, from, to time.Time) ([]UserTally, error)
	TallyByReason(ctx context.Context, from, to time.Time) ([]ReasonTally, error)
	// UserTally returns the lifetime tally of userID. An unknown user yields
	// a zero tally with an empty name.
	UserTally(ctx context.Context, userID int64) (UserTally, error)
	UserReasons(ctx context.Context, userID int64) ([]ReasonTally, error)
	// RecentProcessed lists the newest processed reports of userID first.
	RecentProcessed(ctx context.Context, userID int64, limit int) ([]RecentReport, error)
}

// SystemQuerier counts rows across users, groups and late reports.
type SystemQuerier interface {
	// SystemCounts fills every field of SystemCounts; LateReportsToday counts
	// reports of any status created at or after since.
	SystemCounts(ctx context.Context, since time.Time) (SystemCounts, error)
	GroupReportCount(ctx context.Context, groupID int64, since time.Time) (int64, error)
}

// Cache is a key to JSON payload store with per-entry expiry.
// An expired entry is never returned by Get.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpired(ctx context.Context) (int64, error)
	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}
