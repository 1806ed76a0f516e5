package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/member"
	"late_report_bot/internal/domain/session"
	domainTelegram "late_report_bot/internal/domain/telegram"
	"late_report_bot/internal/infra/config"
	idb "late_report_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// Application-level errors of the late report workflow.
var ErrNotReportOwner = fmt.Errorf("only the reporting user may act on this late report")
var ErrReportClosed = fmt.Errorf("late report is already processed or cancelled")
var ErrReasonRequired = fmt.Errorf("late report needs a reason before confirmation")
var ErrUnknownPreset = fmt.Errorf("unknown preset reason")

// DisplayNameMaxLength caps /set_name input in characters.
const DisplayNameMaxLength = 50

// LengthError rejects free-text input whose length is outside [Min, Max] characters.
type LengthError struct {
	Field string
	Min   int
	Max   int
	Got   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s must be %d-%d characters, got %d", e.Field, e.Min, e.Max, e.Got)
}

// IncomingMessage is a text message together with the resolved sender and chat.
// Group is nil for private chats.
type IncomingMessage struct {
	User  *member.User
	Group *member.Group
	Text  string
}

// Detection is the outcome of a message that opened a late report.
type Detection struct {
	Report *latereport.Report
	// NeedsReason is set when the extracted reason is missing or too thin,
	// so the preset keyboard should be shown.
	NeedsReason bool
}

// ReasonSelection is the outcome of a preset button press.
type ReasonSelection struct {
	Report *latereport.Report
	// AwaitingInput is set when "other" was chosen and the next text message
	// from the user becomes the reason.
	AwaitingInput bool
}

// TextReply is the outcome of a text message consumed by an open session.
type TextReply struct {
	Kind   session.Kind
	Report *latereport.Report // For session.KindLateReason
	User   *member.User       // For session.KindDisplayName
}

// Confirmation is the outcome of confirming a report.
type Confirmation struct {
	Report   *latereport.Report
	Notified int // Admins that received the notification
	Failed   int // Admins whose notification could not be delivered
}

// LateReportService drives a late report from detection to a terminal state.
type LateReportService interface {
	// DetectLateReport opens a pending report when msg comes from a group with
	// late reports enabled and contains a late keyword. It returns nil otherwise.
	DetectLateReport(ctx context.Context, msg IncomingMessage) (*Detection, error)
	SelectReason(ctx context.Context, actor *member.User, reportID int64, presetKey string) (*ReasonSelection, error)
	EditReason(ctx context.Context, actor *member.User, reportID int64) (*latereport.Report, error)
	// ConsumeText feeds text to the actor's open session. It returns nil when
	// the actor has no live session.
	ConsumeText(ctx context.Context, actor *member.User, text string) (*TextReply, error)
	StartDisplayNameUpdate(ctx context.Context, actor *member.User) error
	// CancelConversation drops the actor's session and reports whether there was one.
	CancelConversation(ctx context.Context, actor *member.User) (bool, error)
	Confirm(ctx context.Context, actor *member.User, reportID int64) (*Confirmation, error)
	Cancel(ctx context.Context, actor *member.User, reportID int64) (*latereport.Report, error)
}

// LateReportServiceImpl implements the LateReportService interface.
type LateReportServiceImpl struct {
	reports     latereport.Repository
	members     member.Repository
	invalidator latereport.CacheInvalidator
	sessions    session.Repository
	notifier    domainTelegram.Notifier
	vocab       latereport.Vocabulary
	rules       config.ReasonRules
	sessionTTL  time.Duration
	loc         *time.Location
	now         func() time.Time
	logger      *logrus.Entry
}

func NewLateReportServiceImpl(
	reports latereport.Repository, // Expected to be wrapped with latereport.WithCacheInvalidation
	members member.Repository,
	invalidator latereport.CacheInvalidator, // Purges stats that embed the user's name
	sessions session.Repository,
	notifier domainTelegram.Notifier,
	vocab latereport.Vocabulary,
	rules config.ReasonRules,
	sessionTTL time.Duration,
	loc *time.Location,
	logger *logrus.Entry,
) *LateReportServiceImpl {
	return &LateReportServiceImpl{
		reports:     reports,
		members:     members,
		invalidator: invalidator,
		sessions:    sessions,
		notifier:    notifier,
		vocab:       vocab,
		rules:       rules,
		sessionTTL:  sessionTTL,
		loc:         loc,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *LateReportServiceImpl) DetectLateReport(ctx context.Context, msg IncomingMessage) (*Detection, error) {
	if msg.User == nil || !msg.Group.AcceptsLateReports() {
		return nil, nil
	}
	if !s.vocab.IsLateMessage(msg.Text) {
		return nil, nil
	}

	now := s.now().In(s.loc)
	report := &latereport.Report{
		UserID:       msg.User.ID,
		GroupID:      msg.Group.ID,
		EmployeeName: msg.User.Name(),
		IsBeforeNine: latereport.IsBeforeNine(now, s.loc),
		ReportTime:   now,
		Status:       latereport.StatusPending,
	}
	if reason, ok := s.vocab.ExtractReason(msg.Text); ok {
		report.Reason = sql.NullString{String: reason, Valid: true}
	}

	if err := s.reports.Create(ctx, report); err != nil && !s.tolerateInvalidation(err, report) {
		return nil, fmt.Errorf("failed to create late report: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"user_id":   report.UserID,
		"group_id":  report.GroupID,
	}).Info("Late report detected")

	return &Detection{Report: report, NeedsReason: !s.reasonAdequate(report)}, nil
}

func (s *LateReportServiceImpl) SelectReason(ctx context.Context, actor *member.User, reportID int64, presetKey string) (*ReasonSelection, error) {
	report, err := s.loadOwnedPending(ctx, actor, reportID)
	if err != nil {
		return nil, err
	}

	if presetKey == latereport.PresetOther {
		sess := &session.Session{
			UserID:    actor.ID,
			Kind:      session.KindLateReason,
			TargetID:  report.ID,
			ExpiresAt: s.now().Add(s.sessionTTL),
		}
		if err := s.sessions.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to open reason session: %w", err)
		}
		return &ReasonSelection{Report: report, AwaitingInput: true}, nil
	}

	preset, ok := s.vocab.Preset(presetKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, presetKey)
	}
	updated, err := s.update(ctx, report, latereport.ReasonPatch(preset.Reason))
	if err != nil {
		return nil, err
	}
	// A preset answers any custom-reason prompt still open for this report.
	s.dropSessionFor(ctx, actor.ID, report.ID)
	return &ReasonSelection{Report: updated}, nil
}

func (s *LateReportServiceImpl) EditReason(ctx context.Context, actor *member.User, reportID int64) (*latereport.Report, error) {
	return s.loadOwnedPending(ctx, actor, reportID)
}

func (s *LateReportServiceImpl) ConsumeText(ctx context.Context, actor *member.User, text string) (*TextReply, error) {
	sess, err := s.sessions.Get(ctx, actor.ID, s.now())
	if err != nil {
		if errors.Is(err, idb.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	switch sess.Kind {
	case session.KindLateReason:
		return s.applyCustomReason(ctx, actor, sess, text)
	case session.KindDisplayName:
		return s.applyDisplayName(ctx, actor, text)
	default:
		s.logger.WithFields(logrus.Fields{"user_id": actor.ID, "kind": sess.Kind}).Warn("Dropping session of unknown kind")
		s.deleteSession(ctx, actor.ID)
		return nil, nil
	}
}

func (s *LateReportServiceImpl) applyCustomReason(ctx context.Context, actor *member.User, sess *session.Session, text string) (*TextReply, error) {
	report, err := s.reports.GetByID(ctx, sess.TargetID)
	if err != nil {
		if errors.Is(err, idb.ErrReportNotFound) {
			s.deleteSession(ctx, actor.ID)
		}
		return nil, err
	}
	if report.Status.Terminal() {
		s.deleteSession(ctx, actor.ID)
		return nil, ErrReportClosed
	}

	reason := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(reason); n < s.rules.MinLength || n > s.rules.MaxLength {
		// The session stays open so the user can try again.
		return nil, &LengthError{Field: "reason", Min: s.rules.MinLength, Max: s.rules.MaxLength, Got: n}
	}

	updated, err := s.update(ctx, report, latereport.ReasonPatch(reason))
	if err != nil {
		return nil, err
	}
	s.deleteSession(ctx, actor.ID)
	return &TextReply{Kind: session.KindLateReason, Report: updated}, nil
}

func (s *LateReportServiceImpl) applyDisplayName(ctx context.Context, actor *member.User, text string) (*TextReply, error) {
	name := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(name); n < 1 || n > DisplayNameMaxLength {
		return nil, &LengthError{Field: "display name", Min: 1, Max: DisplayNameMaxLength, Got: n}
	}

	updated, err := s.members.UpdateDisplayName(ctx, actor.ID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	s.deleteSession(ctx, actor.ID)

	// Cached aggregates carry the old name.
	if err := s.invalidator.InvalidateUser(ctx, updated.ID); err != nil {
		s.logger.WithError(err).WithField("user_id", updated.ID).Warn("Failed to purge user stats after rename")
	}
	if err := s.invalidator.InvalidatePeriodic(ctx); err != nil {
		s.logger.WithError(err).WithField("user_id", updated.ID).Warn("Failed to purge periodic stats after rename")
	}
	return &TextReply{Kind: session.KindDisplayName, User: updated}, nil
}

func (s *LateReportServiceImpl) StartDisplayNameUpdate(ctx context.Context, actor *member.User) error {
	sess := &session.Session{
		UserID:    actor.ID,
		Kind:      session.KindDisplayName,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return fmt.Errorf("failed to open display name session: %w", err)
	}
	return nil
}

func (s *LateReportServiceImpl) CancelConversation(ctx context.Context, actor *member.User) (bool, error) {
	if _, err := s.sessions.Get(ctx, actor.ID, s.now()); err != nil {
		if errors.Is(err, idb.ErrSessionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	if err := s.sessions.Delete(ctx, actor.ID); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}

func (s *LateReportServiceImpl) Confirm(ctx context.Context, actor *member.User, reportID int64) (*Confirmation, error) {
	report, err := s.loadOwnedPending(ctx, actor, reportID)
	if err != nil {
		return nil, err
	}
	if !report.HasReason() {
		return nil, ErrReasonRequired
	}

	updated, err := s.update(ctx, report, latereport.ProcessPatch())
	if err != nil {
		return nil, err
	}
	s.dropSessionFor(ctx, actor.ID, report.ID)

	notified, failed := s.notifyAdmins(ctx, updated)
	s.logger.WithFields(logrus.Fields{
		"report_id": updated.ID,
		"user_id":   updated.UserID,
		"notified":  notified,
		"failed":    failed,
	}).Info("Late report confirmed")

	return &Confirmation{Report: updated, Notified: notified, Failed: failed}, nil
}

func (s *LateReportServiceImpl) Cancel(ctx context.Context, actor *member.User, reportID int64) (*latereport.Report, error) {
	report, err := s.loadOwnedPending(ctx, actor, reportID)
	if err != nil {
		return nil, err
	}

	updated, err := s.update(ctx, report, latereport.CancelPatch())
	if err != nil {
		return nil, err
	}
	s.dropSessionFor(ctx, actor.ID, report.ID)

	s.logger.WithFields(logrus.Fields{"report_id": updated.ID, "user_id": updated.UserID}).Info("Late report cancelled")
	return updated, nil
}

// notifyAdmins sends the confirmed report to every privileged user.
// Delivery is best effort: failures are logged and counted.
func (s *LateReportServiceImpl) notifyAdmins(ctx context.Context, report *latereport.Report) (notified, failed int) {
	admins, err := s.members.ListPrivileged(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("report_id", report.ID).Error("Failed to list admins for late report notification")
		return 0, 0
	}

	groupTitle := ""
	if group, err := s.members.GetGroupByID(ctx, report.GroupID); err != nil {
		s.logger.WithError(err).WithField("group_id", report.GroupID).Warn("Failed to load group for late report notification")
	} else {
		groupTitle = group.Title
	}

	text := FormatAdminNotification(report, groupTitle, s.loc)
	for _, admin := range admins {
		if err := s.notifier.SendHTML(admin.TelegramID, text); err != nil {
			failed++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"report_id": report.ID,
				"admin_id":  admin.ID,
			}).Warn("Failed to notify admin about late report")
			continue
		}
		notified++
	}
	return notified, failed
}

func (s *LateReportServiceImpl) loadOwnedPending(ctx context.Context, actor *member.User, reportID int64) (*latereport.Report, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != actor.ID {
		return nil, ErrNotReportOwner
	}
	if report.Status.Terminal() {
		return nil, ErrReportClosed
	}
	return report, nil
}

// update applies p at the version the caller observed.
func (s *LateReportServiceImpl) update(ctx context.Context, report *latereport.Report, p latereport.Patch) (*latereport.Report, error) {
	updated, err := s.reports.Update(ctx, report.ID, report.Version, p)
	if err != nil {
		if updated != nil && s.tolerateInvalidation(err, updated) {
			return updated, nil
		}
		return nil, err
	}
	return updated, nil
}

// tolerateInvalidation reports whether err only says the cache purge after a
// durable write failed. Entries then age out with their TTL.
func (s *LateReportServiceImpl) tolerateInvalidation(err error, report *latereport.Report) bool {
	if !errors.Is(err, latereport.ErrCacheInvalidation) {
		return false
	}
	s.logger.WithError(err).WithFields(logrus.Fields{
		"report_id": report.ID,
		"user_id":   report.UserID,
	}).Warn("Stats cache invalidation failed")
	return true
}

func (s *LateReportServiceImpl) reasonAdequate(report *latereport.Report) bool {
	return report.HasReason() && utf8.RuneCountInString(report.Reason.String) >= s.rules.AdequateLength
}

// dropSessionFor deletes the user's session if it waits on reportID.
func (s *LateReportServiceImpl) dropSessionFor(ctx context.Context, userID, reportID int64) {
	sess, err := s.sessions.Get(ctx, userID, s.now())
	if err != nil {
		if !errors.Is(err, idb.ErrSessionNotFound) {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to load session")
		}
		return
	}
	if sess.Targets(reportID) {
		s.deleteSession(ctx, userID)
	}
}

func (s *LateReportServiceImpl) deleteSession(ctx context.Context, userID int64) {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to delete session")
	}
}
