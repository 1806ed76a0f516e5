package stats

// SystemCounts holds the raw system wide row counts.
type SystemCounts struct {
	TotalUsers       int64 `json:"total_users"`
	ActiveUsers      int64 `json:"active_users"`
	TotalGroups      int64 `json:"total_groups"`
	ActiveGroups     int64 `json:"active_groups"`
	LateReportsToday int64 `json:"late_reports_today"`
}

// SystemOverview is the payload of GET /api/stats and the /stats command.
type SystemOverview struct {
	SystemCounts
	Environment string `json:"environment"`
	GeneratedAt string `json:"generated_at"`
}
