package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/stats"
)

// Aggregate queries over processed late reports. They live on the late
// report repository since they read the same table.

func (r *PostgresLateReportRepository) TallyByUser(ctx context.Context, from, to time.Time) ([]stats.UserTally, error) {
	query := `SELECT lr.user_id,
                      COALESCE(NULLIF(MAX(u.display_name), ''), MAX(lr.employee_name)),
                      COUNT(*) FILTER (WHERE lr.is_before_nine),
                      COUNT(*) FILTER (WHERE NOT lr.is_before_nine)
               FROM late_reports lr
               LEFT JOIN users u ON u.id = lr.user_id
               WHERE lr.status = $1 AND lr.report_time >= $2 AND lr.report_time <= $3
               GROUP BY lr.user_id`

	rows, err := r.db.QueryContext(ctx, query, string(latereport.StatusProcessed), from, to)
	if err != nil {
		return nil, fmt.Errorf("error tallying late reports by user: %w", err)
	}
	defer rows.Close()

	tallies := make([]stats.UserTally, 0)
	for rows.Next() {
		var t stats.UserTally
		if err := rows.Scan(&t.UserID, &t.UserName, &t.OnTime, &t.Late); err != nil {
			return nil, fmt.Errorf("error scanning user tally: %w", err)
		}
		t.Total = t.OnTime + t.Late
		tallies = append(tallies, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user tallies: %w", err)
	}
	return tallies, nil
}

func (r *PostgresLateReportRepository) TallyByReason(ctx context.Context, from, to time.Time) ([]stats.ReasonTally, error) {
	query := `SELECT reason, COUNT(*)
               FROM late_reports
               WHERE status = $1 AND report_time >= $2 AND report_time <= $3
               GROUP BY reason`
	return r.queryReasonTallies(ctx, query, string(latereport.StatusProcessed), from, to)
}

func (r *PostgresLateReportRepository) UserTally(ctx context.Context, userID int64) (stats.UserTally, error) {
	query := `SELECT COALESCE(NULLIF(u.display_name, ''), u.first_name, ''),
                      COUNT(lr.id) FILTER (WHERE lr.is_before_nine),
                      COUNT(lr.id) FILTER (WHERE NOT lr.is_before_nine)
               FROM users u
               LEFT JOIN late_reports lr ON lr.user_id = u.id AND lr.status = $2
               WHERE u.id = $1
               GROUP BY u.id`

	t := stats.UserTally{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID, string(latereport.StatusProcessed)).Scan(&t.UserName, &t.OnTime, &t.Late)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return stats.UserTally{UserID: userID}, nil
		}
		return stats.UserTally{}, fmt.Errorf("error tallying late reports of user %d: %w", userID, err)
	}
	t.Total = t.OnTime + t.Late
	return t, nil
}

func (r *PostgresLateReportRepository) UserReasons(ctx context.Context, userID int64) ([]stats.ReasonTally, error) {
	query := `SELECT reason, COUNT(*)
               FROM late_reports
               WHERE user_id = $1 AND status = $2
               GROUP BY reason`
	return r.queryReasonTallies(ctx, query, userID, string(latereport.StatusProcessed))
}

func (r *PostgresLateReportRepository) RecentProcessed(ctx context.Context, userID int64, limit int) ([]stats.RecentReport, error) {
	query := `SELECT lr.id, lr.group_id, COALESCE(g.title, ''), lr.employee_name, lr.is_before_nine,
                      lr.report_time, lr.reason, lr.status, lr.created_at
               FROM late_reports lr
               LEFT JOIN groups g ON g.id = lr.group_id
               WHERE lr.user_id = $1 AND lr.status = $2
               ORDER BY lr.report_time DESC, lr.id DESC
               LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, userID, string(latereport.StatusProcessed), limit)
	if err != nil {
		return nil, fmt.Errorf("error listing recent processed reports: %w", err)
	}
	defer rows.Close()

	reports := make([]stats.RecentReport, 0)
	for rows.Next() {
		var rr stats.RecentReport
		var reason sql.NullString
		if err := rows.Scan(&rr.ID, &rr.GroupID, &rr.GroupTitle, &rr.EmployeeName, &rr.IsBeforeNine,
			&rr.ReportTime, &reason, &rr.Status, &rr.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning recent processed report: %w", err)
		}
		if reason.Valid {
			rr.Reason = &reason.String
		}
		reports = append(reports, rr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent processed reports: %w", err)
	}
	return reports, nil
}

func (r *PostgresLateReportRepository) queryReasonTallies(ctx context.Context, query string, args ...any) ([]stats.ReasonTally, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error tallying late reports by reason: %w", err)
	}
	defer rows.Close()

	tallies := make([]stats.ReasonTally, 0)
	for rows.Next() {
		var t stats.ReasonTally
		if err := rows.Scan(&t.Reason, &t.Count); err != nil {
			return nil, fmt.Errorf("error scanning reason tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reason tallies: %w", err)
	}
	return tallies, nil
}
