package stats

import (
	"database/sql"
	"math"
	"sort"
	"strings"
	"time"
)

// NoReasonLabel replaces a missing or blank reason in histograms.
const NoReasonLabel = "無說明"

// UserTally is the processed-report count of one user.
type UserTally struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	Total    int    `json:"total"`
	OnTime   int    `json:"on_time"`
	Late     int    `json:"late"`
}

// ReasonTally is the processed-report count of one raw reason value.
type ReasonTally struct {
	Reason sql.NullString
	Count  int
}

// RecentReport is a processed report as listed in per-user statistics.
type RecentReport struct {
	ID           int64     `json:"id"`
	GroupID      int64     `json:"group_id"`
	GroupTitle   string    `json:"group_title"`
	EmployeeName string    `json:"employee_name"`
	IsBeforeNine bool      `json:"is_before_nine"`
	ReportTime   time.Time `json:"report_time"`
	Reason       *string   `json:"reason"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// PeriodicStats is the aggregate of processed reports within a window.
type PeriodicStats struct {
	Period        Period         `json:"period"`
	StartDate     string         `json:"start_date"`
	EndDate       string         `json:"end_date"`
	TotalReports  int            `json:"total_reports"`
	OnTimeReports int            `json:"on_time_reports"`
	LateReports   int            `json:"late_reports"`
	ByReason      map[string]int `json:"by_reason"`
	ByUser        []UserTally    `json:"by_user"`
}

// UserStats is the lifetime aggregate of one user's processed reports.
type UserStats struct {
	UserID           int64          `json:"user_id"`
	UserName         string         `json:"user_name"`
	TotalReports     int            `json:"total_reports"`
	OnTimeReports    int            `json:"on_time_reports"`
	LateReports      int            `json:"late_reports"`
	OnTimePercentage int            `json:"on_time_percentage"`
	RecentReports    []RecentReport `json:"recent_reports"`
	ByReason         map[string]int `json:"by_reason"`
}

// BuildPeriodic assembles a periodic aggregate from per-user and per-reason
// tallies. Totals are sums of the per-user rows so total = on_time + late.
func BuildPeriodic(period Period, w Window, users []UserTally, reasons []ReasonTally) *PeriodicStats {
	out := &PeriodicStats{
		Period:    period,
		StartDate: w.StartLabel,
		EndDate:   w.EndLabel,
		ByReason:  ReasonHistogram(reasons),
		ByUser:    make([]UserTally, 0, len(users)),
	}
	for _, u := range users {
		u.Total = u.OnTime + u.Late
		out.OnTimeReports += u.OnTime
		out.LateReports += u.Late
		out.ByUser = append(out.ByUser, u)
	}
	out.TotalReports = out.OnTimeReports + out.LateReports

	sort.SliceStable(out.ByUser, func(i, j int) bool {
		if out.ByUser[i].Total != out.ByUser[j].Total {
			return out.ByUser[i].Total > out.ByUser[j].Total
		}
		return out.ByUser[i].UserID < out.ByUser[j].UserID
	})
	return out
}

// BuildUser assembles the per-user aggregate. recent is capped at limit.
func BuildUser(userID int64, tally UserTally, reasons []ReasonTally, recent []RecentReport, limit int) *UserStats {
	if recent == nil {
		recent = []RecentReport{}
	}
	if limit >= 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	total := tally.OnTime + tally.Late
	return &UserStats{
		UserID:           userID,
		UserName:         tally.UserName,
		TotalReports:     total,
		OnTimeReports:    tally.OnTime,
		LateReports:      tally.Late,
		OnTimePercentage: OnTimePercentage(tally.OnTime, total),
		RecentReports:    recent,
		ByReason:         ReasonHistogram(reasons),
	}
}

// OnTimePercentage rounds onTime/total to the nearest whole percent; 0 when total is 0.
func OnTimePercentage(onTime, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(onTime) / float64(total) * 100))
}

// ReasonHistogram merges tallies by normalized reason text.
func ReasonHistogram(reasons []ReasonTally) map[string]int {
	hist := make(map[string]int, len(reasons))
	for _, r := range reasons {
		hist[NormalizeReason(r.Reason)] += r.Count
	}
	return hist
}

// NormalizeReason trims a reason and substitutes NoReasonLabel when it is empty.
func NormalizeReason(reason sql.NullString) string {
	if !reason.Valid {
		return NoReasonLabel
	}
	if s := strings.TrimSpace(reason.String); s != "" {
		return s
	}
	return NoReasonLabel
}
