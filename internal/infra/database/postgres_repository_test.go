package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/member"
	"late_report_bot/internal/domain/session"
)

// openTestDB connects to DATABASE_URL and applies the schema. Tests that
// need it are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is not set")
	}
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = DriverPQ
	}

	ctx := context.Background()
	db, err := NewPostgresConnection(ctx, driver, dsn)
	if err != nil {
		t.Fatalf("NewPostgresConnection() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return db
}

// seedMembers registers a throwaway user and group and removes them, with
// everything that references them, when the test ends.
func seedMembers(t *testing.T, db *sql.DB) (*member.User, *member.Group) {
	t.Helper()
	ctx := context.Background()
	members := NewPostgresMemberRepository(db)
	id := time.Now().UnixNano()

	user, err := members.EnsureUser(ctx, member.Profile{TelegramID: id, FirstName: "Test"})
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	group, err := members.EnsureGroup(ctx, -id, "Test group")
	if err != nil {
		t.Fatalf("EnsureGroup() error = %v", err)
	}

	t.Cleanup(func() {
		for _, stmt := range []string{
			`DELETE FROM late_reports WHERE user_id = $1`,
			`DELETE FROM conversation_sessions WHERE user_id = $1`,
			`DELETE FROM users WHERE id = $1`,
		} {
			if _, err := db.ExecContext(ctx, stmt, user.ID); err != nil {
				t.Errorf("cleanup %q: %v", stmt, err)
			}
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, group.ID); err != nil {
			t.Errorf("cleanup group: %v", err)
		}
	})
	return user, group
}

func createPendingReport(t *testing.T, repo *PostgresLateReportRepository, user *member.User, group *member.Group) *latereport.Report {
	t.Helper()
	report := &latereport.Report{
		UserID:       user.ID,
		GroupID:      group.ID,
		EmployeeName: user.Name(),
		IsBeforeNine: true,
		ReportTime:   time.Now(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if report.Version != 1 || report.Status != latereport.StatusPending {
		t.Fatalf("new report = %+v, want version 1 and pending", report)
	}
	return report
}

func TestPostgresLateReportUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, group := seedMembers(t, db)
	repo := NewPostgresLateReportRepository(db)
	report := createPendingReport(t, repo, user, group)

	withReason, err := repo.Update(ctx, report.ID, 1, latereport.ReasonPatch("塞車"))
	if err != nil {
		t.Fatalf("reason Update() error = %v", err)
	}
	if withReason.Version != 2 || withReason.Reason.String != "塞車" || withReason.Status != latereport.StatusPending {
		t.Errorf("after reason patch = %+v", withReason)
	}
	if withReason.AdminNotified {
		t.Error("a reason patch must not touch admin_notified")
	}

	processed, err := repo.Update(ctx, report.ID, 2, latereport.ProcessPatch())
	if err != nil {
		t.Fatalf("process Update() error = %v", err)
	}
	if processed.Version != 3 || processed.Status != latereport.StatusProcessed || !processed.AdminNotified {
		t.Errorf("after process patch = %+v", processed)
	}
	if processed.Reason.String != "塞車" {
		t.Errorf("process patch cleared the reason: %+v", processed.Reason)
	}
}

func TestPostgresLateReportUpdateConflicts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, group := seedMembers(t, db)
	repo := NewPostgresLateReportRepository(db)

	stale := createPendingReport(t, repo, user, group)
	if _, err := repo.Update(ctx, stale.ID, 1, latereport.ReasonPatch("生病")); err != nil {
		t.Fatal(err)
	}

	done := createPendingReport(t, repo, user, group)
	if _, err := repo.Update(ctx, done.ID, 1, latereport.CancelPatch()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      int64
		version int
		wantErr error
	}{
		{name: "Stale version", id: stale.ID, version: 1, wantErr: latereport.ErrVersionConflict},
		{name: "Terminal status", id: done.ID, version: 2, wantErr: latereport.ErrVersionConflict},
		{name: "Missing report", id: -1, version: 1, wantErr: ErrReportNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Update(ctx, tt.id, tt.version, latereport.ReasonPatch("捷運"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Update() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A rejected update leaves the row untouched.
	got, err := repo.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 || got.Reason.String != "生病" {
		t.Errorf("stale update changed the row: %+v", got)
	}
}

func TestPostgresStatsCacheExpiry(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := NewPostgresStatsCache(db)
	base := time.Now().Truncate(time.Second)
	c.now = func() time.Time { return base }

	prefix := "test_" + strconv.FormatInt(base.UnixNano(), 10) + ":"
	t.Cleanup(func() {
		if _, err := c.DeletePrefix(ctx, prefix); err != nil {
			t.Errorf("cleanup: %v", err)
		}
	})

	key := prefix + "daily"
	if err := c.Set(ctx, key, []byte(`{"total_reports":3}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok || string(data) != `{"total_reports":3}` {
		t.Fatalf("Get() before expiry = (%s, %v, %v)", data, ok, err)
	}

	c.now = func() time.Time { return base.Add(time.Minute) }
	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Errorf("Get() at expiry = (%v, %v), want a miss", ok, err)
	}

	removed, err := c.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed < 1 {
		t.Errorf("DeleteExpired() removed %d rows, want at least 1", removed)
	}
}

func TestPostgresStatsCacheDeletePrefixEscapesWildcards(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := NewPostgresStatsCache(db)
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)

	// "_" would match any character without escaping.
	target := "test_" + stamp + ":"
	lookalike := "testx" + stamp + ":"
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM stats_cache WHERE cache_key IN ($1, $2)`, target+"k", lookalike+"k")
	})
	for _, key := range []string{target + "k", lookalike + "k"} {
		if err := c.Set(ctx, key, []byte(`{}`), time.Hour); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := c.DeletePrefix(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("DeletePrefix() removed %d rows, want 1", removed)
	}
	if _, ok, _ := c.Get(ctx, lookalike+"k"); !ok {
		t.Error("lookalike key was removed")
	}
}

func TestPostgresSessionExpiry(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, _ := seedMembers(t, db)
	repo := NewPostgresSessionRepository(db)
	now := time.Now().Truncate(time.Second)

	if err := repo.Put(ctx, &session.Session{UserID: user.ID, Kind: session.KindLateReason, TargetID: 42, ExpiresAt: now.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := repo.Get(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Kind != session.KindLateReason || got.TargetID != 42 {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := repo.Get(ctx, user.ID, now.Add(10*time.Minute)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() at expiry error = %v, want ErrSessionNotFound", err)
	}

	// Put replaces the previous session of the same user.
	if err := repo.Put(ctx, &session.Session{UserID: user.ID, Kind: session.KindDisplayName, ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	got, err = repo.Get(ctx, user.ID, now)
	if err != nil || got.Kind != session.KindDisplayName || got.TargetID != 0 {
		t.Errorf("Get() after replace = (%+v, %v)", got, err)
	}

	removed, err := repo.DeleteExpired(ctx, now.Add(time.Hour))
	if err != nil || removed < 1 {
		t.Errorf("DeleteExpired() = (%d, %v), want at least 1 row", removed, err)
	}
}

func TestPostgresMemberRoleAndGroups(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, group := seedMembers(t, db)
	members := NewPostgresMemberRepository(db)

	promoted, err := members.SetRole(ctx, user.ID, member.RoleSuperAdmin)
	if err != nil || promoted.Role != member.RoleSuperAdmin {
		t.Fatalf("SetRole() = (%+v, %v)", promoted, err)
	}
	// A later profile refresh keeps the granted role.
	again, err := members.EnsureUser(ctx, member.Profile{TelegramID: user.TelegramID, FirstName: "Renamed"})
	if err != nil || again.Role != member.RoleSuperAdmin || again.FirstName != "Renamed" {
		t.Errorf("EnsureUser() after promotion = (%+v, %v)", again, err)
	}
	if _, err := members.SetRole(ctx, -1, member.RoleAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetRole() on missing user error = %v", err)
	}

	found, err := members.GetGroupByTelegramID(ctx, group.TelegramID)
	if err != nil || found.ID != group.ID {
		t.Errorf("GetGroupByTelegramID() = (%+v, %v)", found, err)
	}
	if _, err := members.GetGroupByTelegramID(ctx, 1); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("GetGroupByTelegramID() on missing group error = %v", err)
	}

	if _, err := members.SetLateReportEnabled(ctx, group.ID, true); err != nil {
		t.Fatal(err)
	}
	groups, err := members.ListGroups(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || !groups[0].IsActive {
		t.Errorf("ListGroups(1) = %+v, want one active group", groups)
	}
}

func TestPostgresSystemCounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user, group := seedMembers(t, db)
	reports := NewPostgresLateReportRepository(db)
	system := NewPostgresSystemStatsRepository(db)
	since := time.Now().Add(-time.Minute)

	createPendingReport(t, reports, user, group)
	createPendingReport(t, reports, user, group)

	counts, err := system.SystemCounts(ctx, since)
	if err != nil {
		t.Fatal(err)
	}
	if counts.TotalUsers < 1 || counts.TotalGroups < 1 || counts.LateReportsToday < 2 {
		t.Errorf("SystemCounts() = %+v", counts)
	}
	if counts.ActiveUsers > counts.TotalUsers || counts.ActiveGroups > counts.TotalGroups {
		t.Errorf("active counts exceed totals: %+v", counts)
	}

	n, err := system.GroupReportCount(ctx, group.ID, since)
	if err != nil || n != 2 {
		t.Errorf("GroupReportCount() = (%d, %v), want 2", n, err)
	}
}
