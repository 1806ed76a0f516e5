package app

import (
	"fmt"
	"html"
	"strings"
	"time"

	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/stats"
)

// FormatAdminNotification renders the HTML message admins receive when a
// report is confirmed.
func FormatAdminNotification(report *latereport.Report, groupTitle string, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🚨 <b>遲到通知</b>\n\n")
	fmt.Fprintf(&b, "👤 員工：%s\n", html.EscapeString(report.EmployeeName))
	if groupTitle != "" {
		fmt.Fprintf(&b, "👥 群組：%s\n", html.EscapeString(groupTitle))
	}
	fmt.Fprintf(&b, "🕐 通知時間：%s\n", report.ReportTime.In(loc).Format("2006-01-02 15:04"))
	if report.IsBeforeNine {
		b.WriteString("✅ 九點前已通知\n")
	} else {
		b.WriteString("⚠️ 九點後才通知\n")
	}
	fmt.Fprintf(&b, "📝 原因：%s\n", html.EscapeString(stats.NormalizeReason(report.Reason)))
	fmt.Fprintf(&b, "\n報告編號：#%d", report.ID)
	return b.String()
}
