package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"late_report_bot/internal/app"
	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/member"
	"late_report_bot/internal/domain/stats"
)

var periodTitles = map[stats.Period]string{
	stats.PeriodDaily:   "今日",
	stats.PeriodWeekly:  "本週",
	stats.PeriodMonthly: "本月",
}

var statusTitles = map[latereport.Status]string{
	latereport.StatusPending:   "⏳ 待確認",
	latereport.StatusProcessed: "✅ 已確認",
	latereport.StatusCancelled: "❌ 已取消",
}

func formatAskReason(report *latereport.Report) string {
	return fmt.Sprintf("%s，收到你的遲到通知。\n請選擇遲到原因：", report.EmployeeName)
}

func formatReportSummary(report *latereport.Report, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 遲到回報 #%d\n\n", report.ID)
	fmt.Fprintf(&b, "👤 %s\n", report.EmployeeName)
	fmt.Fprintf(&b, "🕐 %s\n", report.ReportTime.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "📝 原因：%s\n", stats.NormalizeReason(report.Reason))
	b.WriteString("\n確認無誤後請按「確認送出」。")
	return b.String()
}

func formatAwaitingReason(minLength, maxLength int) string {
	return fmt.Sprintf("請直接輸入遲到原因（%d-%d 字），或輸入 /cancel 放棄。", minLength, maxLength)
}

func formatConfirmed(report *latereport.Report, notified int) string {
	return fmt.Sprintf("✅ 遲到回報 #%d 已送出，已通知 %d 位管理員。\n原因：%s",
		report.ID, notified, stats.NormalizeReason(report.Reason))
}

func formatCancelled(report *latereport.Report) string {
	return fmt.Sprintf("❌ 遲到回報 #%d 已取消。", report.ID)
}

func formatPeriodicStats(s *stats.PeriodicStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s遲到統計\n", periodTitles[s.Period])
	fmt.Fprintf(&b, "期間：%s ~ %s\n\n", s.StartDate, s.EndDate)
	fmt.Fprintf(&b, "總回報：%d\n九點前通知：%d\n九點後通知：%d\n", s.TotalReports, s.OnTimeReports, s.LateReports)

	if len(s.ByReason) > 0 {
		b.WriteString("\n依原因：\n")
		for _, reason := range sortedReasons(s.ByReason) {
			fmt.Fprintf(&b, "• %s：%d\n", reason, s.ByReason[reason])
		}
	}
	if len(s.ByUser) > 0 {
		b.WriteString("\n依成員：\n")
		for _, u := range s.ByUser {
			fmt.Fprintf(&b, "• %s：%d（九點前 %d / 九點後 %d）\n", u.UserName, u.Total, u.OnTime, u.Late)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatUserStats(s *stats.UserStats, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s 的遲到統計\n\n", s.UserName)
	fmt.Fprintf(&b, "總回報：%d\n九點前通知：%d（%d%%）\n九點後通知：%d\n",
		s.TotalReports, s.OnTimeReports, s.OnTimePercentage, s.LateReports)

	if len(s.RecentReports) > 0 {
		b.WriteString("\n最近紀錄：\n")
		for _, r := range s.RecentReports {
			reason := stats.NoReasonLabel
			if r.Reason != nil && strings.TrimSpace(*r.Reason) != "" {
				reason = *r.Reason
			}
			fmt.Fprintf(&b, "• %s %s\n", r.ReportTime.In(loc).Format("01/02 15:04"), reason)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRecentReports(reports []*latereport.ListedReport, loc *time.Location) string {
	if len(reports) == 0 {
		return "目前沒有遲到回報。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 最近 %d 筆遲到回報\n\n", len(reports))
	for _, r := range reports {
		fmt.Fprintf(&b, "#%d %s %s\n", r.ID, r.ReportTime.In(loc).Format("01/02 15:04"), statusTitles[r.Status])
		fmt.Fprintf(&b, "   %s", r.UserName)
		if r.GroupTitle != "" {
			fmt.Fprintf(&b, "（%s）", r.GroupTitle)
		}
		fmt.Fprintf(&b, "：%s\n", stats.NormalizeReason(r.Reason))
	}
	return strings.TrimRight(b.String(), "\n")
}

var roleTitles = map[member.Role]string{
	member.RoleUser:       "一般成員",
	member.RoleAdmin:      "管理員",
	member.RoleSuperAdmin: "超級管理員",
}

func activeTitle(active bool) string {
	if active {
		return "🟢 啟用"
	}
	return "⚪ 停用"
}

func formatUserInfo(u *member.User, g *member.Group, environment string, now time.Time, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("👤 個人資訊\n\n")
	fmt.Fprintf(&b, "Telegram ID：%d\n", u.TelegramID)
	if u.Username.Valid && u.Username.String != "" {
		fmt.Fprintf(&b, "使用者名稱：@%s\n", u.Username.String)
	}
	fmt.Fprintf(&b, "顯示名稱：%s\n", u.Name())
	realName := u.FirstName
	if u.LastName.Valid && u.LastName.String != "" {
		realName += " " + u.LastName.String
	}
	fmt.Fprintf(&b, "真實姓名：%s\n", realName)
	fmt.Fprintf(&b, "身分：%s\n", roleTitles[u.Role])
	fmt.Fprintf(&b, "狀態：%s\n", activeTitle(u.IsActive))
	fmt.Fprintf(&b, "加入時間：%s\n", u.CreatedAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "更新時間：%s\n", u.UpdatedAt.In(loc).Format("2006-01-02 15:04"))

	if g != nil {
		b.WriteString("\n👥 群組資訊\n\n")
		fmt.Fprintf(&b, "名稱：%s\n", g.Title)
		fmt.Fprintf(&b, "群組 ID：%d\n", g.TelegramID)
		fmt.Fprintf(&b, "遲到回報：%s\n", activeTitle(g.AcceptsLateReports()))
	}

	fmt.Fprintf(&b, "\n環境：%s\n", environment)
	fmt.Fprintf(&b, "目前時間：%s", now.In(loc).Format("2006-01-02 15:04:05"))
	return b.String()
}

func formatGroupList(groups []*member.Group, loc *time.Location) string {
	if len(groups) == 0 {
		return "目前沒有任何群組。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 群組列表（%d）\n\n", len(groups))
	for _, g := range groups {
		fmt.Fprintf(&b, "%s %s\n", activeTitle(g.IsActive), g.Title)
		fmt.Fprintf(&b, "   ID：%d，加入於 %s\n", g.TelegramID, g.CreatedAt.In(loc).Format("2006-01-02"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatGroupInfo(info *app.GroupInfo, loc *time.Location) string {
	g := info.Group
	var b strings.Builder
	fmt.Fprintf(&b, "👥 %s\n\n", g.Title)
	fmt.Fprintf(&b, "群組 ID：%d\n", g.TelegramID)
	fmt.Fprintf(&b, "狀態：%s\n", activeTitle(g.IsActive))
	fmt.Fprintf(&b, "遲到回報：%s\n", activeTitle(g.LateReportEnabled))
	fmt.Fprintf(&b, "加入時間：%s\n", g.CreatedAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "更新時間：%s\n", g.UpdatedAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "\n今日遲到回報：%d 筆", info.ReportsToday)
	return b.String()
}

func formatSystemOverview(o *stats.SystemOverview) string {
	var b strings.Builder
	b.WriteString("🖥 系統統計\n\n")
	fmt.Fprintf(&b, "用戶：%d（啟用 %d）\n", o.TotalUsers, o.ActiveUsers)
	fmt.Fprintf(&b, "群組：%d（啟用 %d）\n", o.TotalGroups, o.ActiveGroups)
	fmt.Fprintf(&b, "今日遲到回報：%d\n", o.LateReportsToday)
	fmt.Fprintf(&b, "環境：%s", o.Environment)
	return b.String()
}

// sortedReasons orders reasons by count descending, then by text.
func sortedReasons(hist map[string]int) []string {
	reasons := make([]string, 0, len(hist))
	for r := range hist {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if hist[reasons[i]] != hist[reasons[j]] {
			return hist[reasons[i]] > hist[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	return reasons
}
