package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/member"
	"late_report_bot/internal/domain/session"
	"late_report_bot/internal/domain/stats"
	idb "late_report_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

var testZone = time.FixedZone("CST", 8*60*60)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// fakeReportStore keeps reports in memory and answers the stats queries.
type fakeReportStore struct {
	mu      sync.Mutex
	nextID  int64
	reports map[int64]*latereport.Report
	// beforeUpdate runs inside Update before the version check.
	beforeUpdate func(r *latereport.Report)
}

func newFakeReportStore() *fakeReportStore {
	return &fakeReportStore{reports: make(map[int64]*latereport.Report)}
}

func (f *fakeReportStore) Create(_ context.Context, r *latereport.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	r.Version = 1
	r.CreatedAt = r.ReportTime
	r.UpdatedAt = r.ReportTime
	cp := *r
	f.reports[r.ID] = &cp
	return nil
}

func (f *fakeReportStore) GetByID(_ context.Context, id int64) (*latereport.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, idb.ErrReportNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReportStore) Update(_ context.Context, id int64, expectedVersion int, p latereport.Patch) (*latereport.Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, idb.ErrReportNotFound
	}
	if f.beforeUpdate != nil {
		f.beforeUpdate(r)
	}
	if r.Version != expectedVersion || r.Status != latereport.StatusPending {
		return nil, latereport.ErrVersionConflict
	}
	if p.Reason != nil {
		r.Reason.String, r.Reason.Valid = *p.Reason, true
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.AdminNotified != nil {
		r.AdminNotified = *p.AdminNotified
	}
	r.Version++
	cp := *r
	return &cp, nil
}

func (f *fakeReportStore) ListRecent(_ context.Context, limit int) ([]*latereport.ListedReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*latereport.ListedReport, 0, len(f.reports))
	for _, r := range f.reports {
		out = append(out, &latereport.ListedReport{Report: *r, UserName: r.EmployeeName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReportStore) processed(match func(r *latereport.Report) bool) []*latereport.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*latereport.Report, 0)
	for _, r := range f.reports {
		if r.Status == latereport.StatusProcessed && match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func inWindow(from, to time.Time) func(r *latereport.Report) bool {
	return func(r *latereport.Report) bool {
		return !r.ReportTime.Before(from) && !r.ReportTime.After(to)
	}
}

func ofUser(userID int64) func(r *latereport.Report) bool {
	return func(r *latereport.Report) bool { return r.UserID == userID }
}

func tallyReasons(reports []*latereport.Report) []stats.ReasonTally {
	counts := map[string]int{}
	nulls := 0
	for _, r := range reports {
		if !r.Reason.Valid {
			nulls++
			continue
		}
		counts[r.Reason.String]++
	}
	out := make([]stats.ReasonTally, 0, len(counts)+1)
	for reason, n := range counts {
		out = append(out, stats.ReasonTally{Reason: nullString(reason), Count: n})
	}
	if nulls > 0 {
		out = append(out, stats.ReasonTally{Count: nulls})
	}
	return out
}

func (f *fakeReportStore) TallyByUser(_ context.Context, from, to time.Time) ([]stats.UserTally, error) {
	byUser := map[int64]*stats.UserTally{}
	for _, r := range f.processed(inWindow(from, to)) {
		t, ok := byUser[r.UserID]
		if !ok {
			t = &stats.UserTally{UserID: r.UserID, UserName: r.EmployeeName}
			byUser[r.UserID] = t
		}
		if r.IsBeforeNine {
			t.OnTime++
		} else {
			t.Late++
		}
	}
	out := make([]stats.UserTally, 0, len(byUser))
	for _, t := range byUser {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeReportStore) TallyByReason(_ context.Context, from, to time.Time) ([]stats.ReasonTally, error) {
	return tallyReasons(f.processed(inWindow(from, to))), nil
}

func (f *fakeReportStore) UserTally(_ context.Context, userID int64) (stats.UserTally, error) {
	t := stats.UserTally{UserID: userID}
	for _, r := range f.processed(ofUser(userID)) {
		t.UserName = r.EmployeeName
		if r.IsBeforeNine {
			t.OnTime++
		} else {
			t.Late++
		}
	}
	t.Total = t.OnTime + t.Late
	return t, nil
}

func (f *fakeReportStore) UserReasons(_ context.Context, userID int64) ([]stats.ReasonTally, error) {
	return tallyReasons(f.processed(ofUser(userID))), nil
}

func (f *fakeReportStore) RecentProcessed(_ context.Context, userID int64, limit int) ([]stats.RecentReport, error) {
	out := make([]stats.RecentReport, 0)
	for _, r := range f.processed(ofUser(userID)) {
		rr := stats.RecentReport{
			ID:           r.ID,
			GroupID:      r.GroupID,
			EmployeeName: r.EmployeeName,
			IsBeforeNine: r.IsBeforeNine,
			ReportTime:   r.ReportTime,
			Status:       string(r.Status),
			CreatedAt:    r.CreatedAt,
		}
		if r.Reason.Valid {
			reason := r.Reason.String
			rr.Reason = &reason
		}
		out = append(out, rr)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// countingQuerier records how often aggregates are computed.
type countingQuerier struct {
	stats.Querier
	periodicCalls int
}

func (c *countingQuerier) TallyByUser(ctx context.Context, from, to time.Time) ([]stats.UserTally, error) {
	c.periodicCalls++
	return c.Querier.TallyByUser(ctx, from, to)
}

type fakeMembers struct {
	users  map[int64]*member.User
	groups map[int64]*member.Group
}

func newFakeMembers(users []*member.User, groups []*member.Group) *fakeMembers {
	f := &fakeMembers{users: map[int64]*member.User{}, groups: map[int64]*member.Group{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	for _, g := range groups {
		f.groups[g.ID] = g
	}
	return f
}

func (f *fakeMembers) EnsureUser(_ context.Context, p member.Profile) (*member.User, error) {
	for _, u := range f.users {
		if u.TelegramID == p.TelegramID {
			return u, nil
		}
	}
	u := &member.User{ID: int64(len(f.users) + 1), TelegramID: p.TelegramID, FirstName: p.FirstName, Role: member.RoleUser, IsActive: true}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeMembers) GetUserByID(_ context.Context, id int64) (*member.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, idb.ErrUserNotFound
}

func (f *fakeMembers) UpdateDisplayName(_ context.Context, userID int64, name string) (*member.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, idb.ErrUserNotFound
	}
	u.DisplayName = nullString(name)
	return u, nil
}

func (f *fakeMembers) ListPrivileged(_ context.Context) ([]*member.User, error) {
	out := make([]*member.User, 0)
	for _, u := range f.users {
		if u.Privileged() && u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeMembers) SetRole(_ context.Context, userID int64, role member.Role) (*member.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, idb.ErrUserNotFound
	}
	u.Role = role
	return u, nil
}

func (f *fakeMembers) EnsureGroup(_ context.Context, telegramID int64, title string) (*member.Group, error) {
	for _, g := range f.groups {
		if g.TelegramID == telegramID {
			return g, nil
		}
	}
	g := &member.Group{ID: int64(len(f.groups) + 1), TelegramID: telegramID, Title: title}
	f.groups[g.ID] = g
	return g, nil
}

func (f *fakeMembers) GetGroupByID(_ context.Context, id int64) (*member.Group, error) {
	if g, ok := f.groups[id]; ok {
		return g, nil
	}
	return nil, idb.ErrGroupNotFound
}

func (f *fakeMembers) GetGroupByTelegramID(_ context.Context, telegramID int64) (*member.Group, error) {
	for _, g := range f.groups {
		if g.TelegramID == telegramID {
			return g, nil
		}
	}
	return nil, idb.ErrGroupNotFound
}

func (f *fakeMembers) ListGroups(_ context.Context, limit int) ([]*member.Group, error) {
	out := make([]*member.Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsActive != out[j].IsActive {
			return out[i].IsActive
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMembers) SetLateReportEnabled(_ context.Context, groupID int64, enabled bool) (*member.Group, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return nil, idb.ErrGroupNotFound
	}
	g.LateReportEnabled = enabled
	g.IsActive = true
	return g, nil
}

// fakeSystem answers the system counters from the other fakes.
type fakeSystem struct {
	store   *fakeReportStore
	members *fakeMembers
	since   time.Time
}

func (f *fakeSystem) SystemCounts(_ context.Context, since time.Time) (stats.SystemCounts, error) {
	f.since = since
	var c stats.SystemCounts
	for _, u := range f.members.users {
		c.TotalUsers++
		if u.IsActive {
			c.ActiveUsers++
		}
	}
	for _, g := range f.members.groups {
		c.TotalGroups++
		if g.IsActive {
			c.ActiveGroups++
		}
	}
	c.LateReportsToday = f.countSince(since, func(*latereport.Report) bool { return true })
	return c, nil
}

func (f *fakeSystem) GroupReportCount(_ context.Context, groupID int64, since time.Time) (int64, error) {
	f.since = since
	return f.countSince(since, func(r *latereport.Report) bool { return r.GroupID == groupID }), nil
}

func (f *fakeSystem) countSince(since time.Time, match func(*latereport.Report) bool) int64 {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var n int64
	for _, r := range f.store.reports {
		if !r.CreatedAt.Before(since) && match(r) {
			n++
		}
	}
	return n
}

type fakeSessions struct {
	sessions map[int64]session.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[int64]session.Session{}}
}

func (f *fakeSessions) Put(_ context.Context, s *session.Session) error {
	f.sessions[s.UserID] = *s
	return nil
}

func (f *fakeSessions) Get(_ context.Context, userID int64, now time.Time) (*session.Session, error) {
	s, ok := f.sessions[userID]
	if !ok || s.Expired(now) {
		return nil, idb.ErrSessionNotFound
	}
	return &s, nil
}

func (f *fakeSessions) Delete(_ context.Context, userID int64) error {
	delete(f.sessions, userID)
	return nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

// fakeNotifier fails delivery to the chat IDs listed in failFor.
type fakeNotifier struct {
	sent    []sentMessage
	failFor map[int64]bool
}

func (f *fakeNotifier) SendHTML(chatID int64, text string) error {
	if f.failFor[chatID] {
		return errors.New("bot was blocked by the user")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}
