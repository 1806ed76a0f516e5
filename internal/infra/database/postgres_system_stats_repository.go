package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"late_report_bot/internal/domain/stats"
)

// PostgresSystemStatsRepository answers the cross-table counters shown to
// superadmins.
type PostgresSystemStatsRepository struct {
	db *sql.DB
}

func NewPostgresSystemStatsRepository(db *sql.DB) *PostgresSystemStatsRepository {
	return &PostgresSystemStatsRepository{db: db}
}

func (r *PostgresSystemStatsRepository) SystemCounts(ctx context.Context, since time.Time) (stats.SystemCounts, error) {
	query := `SELECT
               (SELECT COUNT(*) FROM users),
               (SELECT COUNT(*) FROM users WHERE is_active = TRUE),
               (SELECT COUNT(*) FROM groups),
               (SELECT COUNT(*) FROM groups WHERE is_active = TRUE),
               (SELECT COUNT(*) FROM late_reports WHERE created_at >= $1)`

	var c stats.SystemCounts
	err := r.db.QueryRowContext(ctx, query, since).Scan(
		&c.TotalUsers, &c.ActiveUsers, &c.TotalGroups, &c.ActiveGroups, &c.LateReportsToday)
	if err != nil {
		return stats.SystemCounts{}, fmt.Errorf("error counting system totals: %w", err)
	}
	return c, nil
}

func (r *PostgresSystemStatsRepository) GroupReportCount(ctx context.Context, groupID int64, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM late_reports WHERE group_id = $1 AND created_at >= $2`

	var n int64
	if err := r.db.QueryRowContext(ctx, query, groupID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting late reports of group %d: %w", groupID, err)
	}
	return n, nil
}
