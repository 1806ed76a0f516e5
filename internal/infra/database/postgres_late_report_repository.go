package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"late_report_bot/internal/domain/latereport"
)

// ErrReportNotFound is returned when no late report has the requested ID.
var ErrReportNotFound = fmt.Errorf("late report not found")

const lateReportColumns = `id, user_id, group_id, employee_name, is_before_nine, report_time,
	reason, status, admin_notified, version, created_at, updated_at`

type PostgresLateReportRepository struct {
	db *sql.DB
}

func NewPostgresLateReportRepository(db *sql.DB) *PostgresLateReportRepository {
	return &PostgresLateReportRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLateReport(row rowScanner, r *latereport.Report) error {
	return row.Scan(&r.ID, &r.UserID, &r.GroupID, &r.EmployeeName, &r.IsBeforeNine, &r.ReportTime,
		&r.Reason, &r.Status, &r.AdminNotified, &r.Version, &r.CreatedAt, &r.UpdatedAt)
}

func (r *PostgresLateReportRepository) Create(ctx context.Context, report *latereport.Report) error {
	if report.Status == "" {
		report.Status = latereport.StatusPending
	}
	query := `INSERT INTO late_reports (user_id, group_id, employee_name, is_before_nine, report_time, reason, status, admin_notified)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id, version, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		report.UserID, report.GroupID, report.EmployeeName, report.IsBeforeNine, report.ReportTime,
		report.Reason, string(report.Status), report.AdminNotified,
	).Scan(&report.ID, &report.Version, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating late report: %w", err)
	}
	return nil
}

func (r *PostgresLateReportRepository) GetByID(ctx context.Context, id int64) (*latereport.Report, error) {
	query := `SELECT ` + lateReportColumns + ` FROM late_reports WHERE id = $1`
	report := &latereport.Report{}
	if err := scanLateReport(r.db.QueryRowContext(ctx, query, id), report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("error getting late report by ID: %w", err)
	}
	return report, nil
}

// Update applies the patch only while the stored row is still pending at
// expectedVersion, bumping the version and updated_at.
func (r *PostgresLateReportRepository) Update(ctx context.Context, id int64, expectedVersion int, p latereport.Patch) (*latereport.Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 5)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Reason != nil {
		set("reason", *p.Reason)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.AdminNotified != nil {
		set("admin_notified", *p.AdminNotified)
	}
	sets = append(sets, "version = version + 1", "updated_at = NOW()")
	args = append(args, id, expectedVersion, string(latereport.StatusPending))

	query := fmt.Sprintf(`UPDATE late_reports SET %s
               WHERE id = $%d AND version = $%d AND status = $%d
               RETURNING %s`,
		strings.Join(sets, ", "), len(args)-2, len(args)-1, len(args), lateReportColumns)

	updated := &latereport.Report{}
	err := scanLateReport(r.db.QueryRowContext(ctx, query, args...), updated)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error updating late report %d: %w", id, err)
	}

	// Nothing matched: either the report is gone or the caller's view is stale.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, latereport.ErrVersionConflict
}

func (r *PostgresLateReportRepository) ListRecent(ctx context.Context, limit int) ([]*latereport.ListedReport, error) {
	query := `SELECT lr.id, lr.user_id, lr.group_id, lr.employee_name, lr.is_before_nine, lr.report_time,
                      lr.reason, lr.status, lr.admin_notified, lr.version, lr.created_at, lr.updated_at,
                      COALESCE(NULLIF(u.display_name, ''), u.first_name, lr.employee_name),
                      COALESCE(g.title, '')
               FROM late_reports lr
               LEFT JOIN users u ON u.id = lr.user_id
               LEFT JOIN groups g ON g.id = lr.group_id
               ORDER BY lr.created_at DESC, lr.id DESC
               LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing recent late reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*latereport.ListedReport, 0)
	for rows.Next() {
		lr := &latereport.ListedReport{}
		if err := rows.Scan(&lr.ID, &lr.UserID, &lr.GroupID, &lr.EmployeeName, &lr.IsBeforeNine, &lr.ReportTime,
			&lr.Reason, &lr.Status, &lr.AdminNotified, &lr.Version, &lr.CreatedAt, &lr.UpdatedAt,
			&lr.UserName, &lr.GroupTitle); err != nil {
			return nil, fmt.Errorf("error scanning recent late report: %w", err)
		}
		reports = append(reports, lr)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent late reports: %w", err)
	}
	return reports, nil
}
