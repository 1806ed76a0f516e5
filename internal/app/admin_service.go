package app

import (
	"context"
	"fmt"
	"time"

	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/member"
	"late_report_bot/internal/domain/stats"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrNotInGroup = fmt.Errorf("command must be used inside a group")
var ErrListLimitOutOfRange = fmt.Errorf("list limit out of range")
var ErrSuperAdminRequired = fmt.Errorf("performing user is not a superadmin")

const (
	DefaultListLimit = 10
	GroupListLimit   = 20
)

// GroupInfo is a group together with the late reports it produced today.
type GroupInfo struct {
	Group        *member.Group
	ReportsToday int64
}

type AdminService struct {
	reports     latereport.Repository
	members     member.Repository
	stats       *StatsService
	system      stats.SystemQuerier
	listMax     int
	environment string
	loc         *time.Location
	now         func() time.Time
}

func NewAdminService(reports latereport.Repository, members member.Repository, statsService *StatsService,
	system stats.SystemQuerier, listMax int, environment string, loc *time.Location) *AdminService {
	return &AdminService{
		reports:     reports,
		members:     members,
		stats:       statsService,
		system:      system,
		listMax:     listMax,
		environment: environment,
		loc:         loc,
		now:         time.Now,
	}
}

// ListMax is the largest limit ListRecentReports accepts.
func (s *AdminService) ListMax() int {
	return s.listMax
}

// ListRecentReports returns the newest reports of every status.
func (s *AdminService) ListRecentReports(ctx context.Context, actor *member.User, limit int) ([]*latereport.ListedReport, error) {
	if !actor.Privileged() {
		return nil, ErrAdminNotAuthorized
	}
	if limit < 1 || limit > s.listMax {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrListLimitOutOfRange, s.listMax)
	}

	reports, err := s.reports.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent late reports: %w", err)
	}
	return reports, nil
}

// SetGroupLateReport turns the late report workflow on or off for group and
// activates the group.
func (s *AdminService) SetGroupLateReport(ctx context.Context, actor *member.User, group *member.Group, enabled bool) (*member.Group, error) {
	if !actor.Privileged() {
		return nil, ErrAdminNotAuthorized
	}
	if group == nil {
		return nil, ErrNotInGroup
	}

	updated, err := s.members.SetLateReportEnabled(ctx, group.ID, enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle late reports: %w", err)
	}
	return updated, nil
}

func (s *AdminService) PeriodicSummary(ctx context.Context, actor *member.User, period stats.Period) (*stats.PeriodicStats, error) {
	if !actor.Privileged() {
		return nil, ErrAdminNotAuthorized
	}
	return s.stats.PeriodicStats(ctx, period, "", "")
}

func (s *AdminService) ClearStatsCache(ctx context.Context, actor *member.User) (*ClearResult, error) {
	if !actor.Privileged() {
		return nil, ErrAdminNotAuthorized
	}
	return s.stats.ClearCache(ctx)
}

// ListGroups returns up to GroupListLimit known groups, active ones first.
func (s *AdminService) ListGroups(ctx context.Context, actor *member.User) ([]*member.Group, error) {
	if !actor.Privileged() {
		return nil, ErrAdminNotAuthorized
	}
	groups, err := s.members.ListGroups(ctx, GroupListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// GroupInfo describes the group with the given Telegram id, or current when
// telegramID is 0.
func (s *AdminService) GroupInfo(ctx context.Context, actor *member.User, current *member.Group, telegramID int64) (*GroupInfo, error) {
	if !actor.Privileged() {
		return nil, ErrAdminNotAuthorized
	}

	group := current
	if telegramID != 0 {
		found, err := s.members.GetGroupByTelegramID(ctx, telegramID)
		if err != nil {
			return nil, fmt.Errorf("failed to load group %d: %w", telegramID, err)
		}
		group = found
	}
	if group == nil {
		return nil, ErrNotInGroup
	}

	count, err := s.system.GroupReportCount(ctx, group.ID, s.startOfToday())
	if err != nil {
		return nil, fmt.Errorf("failed to count late reports: %w", err)
	}
	return &GroupInfo{Group: group, ReportsToday: count}, nil
}

// SystemStats is the superadmin view of SystemOverview.
func (s *AdminService) SystemStats(ctx context.Context, actor *member.User) (*stats.SystemOverview, error) {
	if !actor.SuperAdmin() {
		return nil, ErrSuperAdminRequired
	}
	return s.SystemOverview(ctx)
}

// SystemOverview counts users, groups and today's late reports.
func (s *AdminService) SystemOverview(ctx context.Context) (*stats.SystemOverview, error) {
	now := s.now().In(s.loc)
	counts, err := s.system.SystemCounts(ctx, s.startOfToday())
	if err != nil {
		return nil, fmt.Errorf("failed to count system totals: %w", err)
	}
	return &stats.SystemOverview{
		SystemCounts: counts,
		Environment:  s.environment,
		GeneratedAt:  now.Format(time.RFC3339),
	}, nil
}

func (s *AdminService) startOfToday() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}
