package telegram

import (
	"database/sql"
	"reflect"
	"strings"
	"testing"
	"time"

	"late_report_bot/internal/app"
	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/member"
	"late_report_bot/internal/domain/stats"
)

func TestSortedReasons(t *testing.T) {
	got := sortedReasons(map[string]int{"塞車": 2, "生病": 5, "無說明": 2})
	want := []string{"生病", "塞車", "無說明"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortedReasons() = %v, want %v", got, want)
	}
}

func TestFormatPeriodicStats(t *testing.T) {
	out := formatPeriodicStats(&stats.PeriodicStats{
		Period:        stats.PeriodWeekly,
		StartDate:     "2026-10-18T16:00:00.000Z",
		EndDate:       "2026-10-25T15:59:59.999Z",
		TotalReports:  3,
		OnTimeReports: 2,
		LateReports:   1,
		ByReason:      map[string]int{"塞車": 3},
		ByUser:        []stats.UserTally{{UserID: 1, UserName: "Alice", Total: 3, OnTime: 2, Late: 1}},
	})

	for _, part := range []string{"本週", "總回報：3", "塞車：3", "Alice：3"} {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q:\n%s", part, out)
		}
	}
}

func TestFormatRecentReports(t *testing.T) {
	if got := formatRecentReports(nil, time.UTC); got != "目前沒有遲到回報。" {
		t.Errorf("empty list rendered as %q", got)
	}

	reports := []*latereport.ListedReport{{
		Report: latereport.Report{
			ID:         5,
			ReportTime: time.Date(2026, 10, 19, 0, 30, 0, 0, time.UTC),
			Status:     latereport.StatusCancelled,
		},
		UserName:   "Bob",
		GroupTitle: "Ops",
	}}
	out := formatRecentReports(reports, time.FixedZone("UTC+8", 8*3600))
	for _, part := range []string{"#5", "10/19 08:30", "已取消", "Bob（Ops）", stats.NoReasonLabel} {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q:\n%s", part, out)
		}
	}
}

func TestFormatUserInfo(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)
	joined := time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC)
	u := &member.User{
		TelegramID:  1001,
		Username:    sql.NullString{String: "alice", Valid: true},
		FirstName:   "Alice",
		LastName:    sql.NullString{String: "Wang", Valid: true},
		DisplayName: sql.NullString{String: "小艾", Valid: true},
		Role:        member.RoleAdmin,
		IsActive:    true,
		CreatedAt:   joined,
		UpdatedAt:   joined,
	}
	g := &member.Group{TelegramID: -5000, Title: "Ops", IsActive: true, LateReportEnabled: true}

	out := formatUserInfo(u, g, "production", joined, loc)
	for _, part := range []string{"1001", "@alice", "顯示名稱：小艾", "真實姓名：Alice Wang", "身分：管理員", "2026-09-01 09:00", "名稱：Ops", "環境：production"} {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q:\n%s", part, out)
		}
	}

	private := formatUserInfo(u, nil, "production", joined, loc)
	if strings.Contains(private, "群組資訊") {
		t.Errorf("private chat output should not describe a group:\n%s", private)
	}
}

func TestFormatGroupListAndInfo(t *testing.T) {
	loc := time.UTC
	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	groups := []*member.Group{
		{TelegramID: -1, Title: "Ops", IsActive: true, CreatedAt: created},
		{TelegramID: -2, Title: "Old", CreatedAt: created},
	}

	list := formatGroupList(groups, loc)
	for _, part := range []string{"群組列表（2）", "🟢 啟用 Ops", "⚪ 停用 Old", "2026-10-01"} {
		if !strings.Contains(list, part) {
			t.Errorf("list missing %q:\n%s", part, list)
		}
	}
	if formatGroupList(nil, loc) != "目前沒有任何群組。" {
		t.Error("expected the empty list message")
	}

	info := formatGroupInfo(&app.GroupInfo{Group: groups[0], ReportsToday: 4}, loc)
	if !strings.Contains(info, "今日遲到回報：4 筆") || !strings.Contains(info, "群組 ID：-1") {
		t.Errorf("unexpected group info:\n%s", info)
	}
}

func TestFormatSystemOverview(t *testing.T) {
	out := formatSystemOverview(&stats.SystemOverview{
		SystemCounts: stats.SystemCounts{TotalUsers: 12, ActiveUsers: 10, TotalGroups: 3, ActiveGroups: 2, LateReportsToday: 5},
		Environment:  "staging",
	})
	for _, part := range []string{"用戶：12（啟用 10）", "群組：3（啟用 2）", "今日遲到回報：5", "環境：staging"} {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q:\n%s", part, out)
		}
	}
}
