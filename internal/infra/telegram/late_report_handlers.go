package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"late_report_bot/internal/app"
	"late_report_bot/internal/domain/latereport"
	"late_report_bot/internal/domain/session"
	"late_report_bot/internal/infra/config"
	idb "late_report_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const genericFailure = "處理時發生錯誤，請稍後再試。"

// LateReportHandlerDeps groups what the late report handlers need.
type LateReportHandlerDeps struct {
	Service    app.LateReportService
	Vocabulary latereport.Vocabulary
	Rules      config.ReasonRules
	Location   *time.Location
}

// RegisterLateReportHandlers wires free text and inline buttons to the late
// report workflow. Text first feeds an open conversation session; only
// unclaimed group text is checked for late keywords.
func RegisterLateReportHandlers(ctx context.Context, b *telebot.Bot, deps LateReportHandlerDeps, baseLogger *logrus.Entry) {
	b.Handle(telebot.OnText, func(c telebot.Context) error {
		user := currentUser(c)
		if user == nil || strings.HasPrefix(c.Text(), "/") {
			return nil
		}
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "on_text",
			"sender_id": c.Sender().ID,
			"user_id":   user.ID,
		})

		reply, err := deps.Service.ConsumeText(ctx, user, c.Text())
		if err != nil {
			return c.Reply(textErrorMessage(err, handlerLogger))
		}
		if reply != nil {
			switch reply.Kind {
			case session.KindLateReason:
				handlerLogger.WithField("report_id", reply.Report.ID).Info("Custom reason recorded")
				return c.Reply(formatReportSummary(reply.Report, deps.Location), confirmKeyboard(reply.Report.ID))
			case session.KindDisplayName:
				handlerLogger.Info("Display name updated")
				return c.Reply(fmt.Sprintf("✅ 顯示名稱已更新為「%s」。", reply.User.Name()))
			}
			return nil
		}

		group := currentGroup(c)
		if group == nil {
			return nil
		}
		detection, err := deps.Service.DetectLateReport(ctx, app.IncomingMessage{User: user, Group: group, Text: c.Text()})
		if err != nil {
			handlerLogger.WithError(err).WithField("group_id", group.ID).Error("Failed to record late report")
			return c.Reply(genericFailure)
		}
		if detection == nil {
			return nil
		}

		report := detection.Report
		if detection.NeedsReason {
			return c.Reply(formatAskReason(report), reasonKeyboard(deps.Vocabulary, report.ID))
		}
		return c.Reply(formatReportSummary(report, deps.Location), confirmKeyboard(report.ID))
	})

	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := c.Callback().Data
		cb, ok := parseLateCallback(data)
		if !ok {
			baseLogger.WithField("data", data).Warn("Unhandled callback data")
			return c.Respond(&telebot.CallbackResponse{Text: "未知的操作。"})
		}

		user := currentUser(c)
		if user == nil {
			return c.Respond(&telebot.CallbackResponse{Text: genericFailure})
		}
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "on_callback",
			"action":    cb.Action,
			"sender_id": c.Sender().ID,
			"user_id":   user.ID,
			"report_id": cb.ReportID,
		})

		switch cb.Action {
		case actionSelectReason:
			sel, err := deps.Service.SelectReason(ctx, user, cb.ReportID, cb.Preset)
			if err != nil {
				return respondError(c, err, handlerLogger)
			}
			if sel.AwaitingInput {
				if err := c.Edit(formatAwaitingReason(deps.Rules.MinLength, deps.Rules.MaxLength)); err != nil {
					handlerLogger.WithError(err).Warn("Failed to edit message")
				}
				return c.Respond()
			}
			if err := c.Edit(formatReportSummary(sel.Report, deps.Location), confirmKeyboard(sel.Report.ID)); err != nil {
				handlerLogger.WithError(err).Warn("Failed to edit message")
			}
			return c.Respond(&telebot.CallbackResponse{Text: "已選擇原因"})

		case actionEditReason:
			report, err := deps.Service.EditReason(ctx, user, cb.ReportID)
			if err != nil {
				return respondError(c, err, handlerLogger)
			}
			if err := c.Edit(formatAskReason(report), reasonKeyboard(deps.Vocabulary, report.ID)); err != nil {
				handlerLogger.WithError(err).Warn("Failed to edit message")
			}
			return c.Respond()

		case actionConfirm:
			conf, err := deps.Service.Confirm(ctx, user, cb.ReportID)
			if err != nil {
				return respondError(c, err, handlerLogger)
			}
			if err := c.Edit(formatConfirmed(conf.Report, conf.Notified)); err != nil {
				handlerLogger.WithError(err).Warn("Failed to edit message")
			}
			return c.Respond(&telebot.CallbackResponse{Text: "已送出"})

		case actionCancel:
			report, err := deps.Service.Cancel(ctx, user, cb.ReportID)
			if err != nil {
				return respondError(c, err, handlerLogger)
			}
			if err := c.Edit(formatCancelled(report)); err != nil {
				handlerLogger.WithError(err).Warn("Failed to edit message")
			}
			return c.Respond(&telebot.CallbackResponse{Text: "已取消"})
		}
		return c.Respond()
	})
}

// workflowErrorMessage maps the expected workflow errors to user-facing text.
// The second result is false for unexpected errors.
func workflowErrorMessage(err error) (string, bool) {
	var lenErr *app.LengthError
	switch {
	case errors.As(err, &lenErr):
		return fmt.Sprintf("內容長度需為 %d-%d 字（目前 %d 字），請重新輸入。", lenErr.Min, lenErr.Max, lenErr.Got), true
	case errors.Is(err, app.ErrNotReportOwner):
		return "只有回報者本人可以操作這筆回報。", true
	case errors.Is(err, app.ErrReportClosed):
		return "這筆回報已經確認或取消。", true
	case errors.Is(err, app.ErrReasonRequired):
		return "請先選擇或輸入遲到原因。", true
	case errors.Is(err, app.ErrUnknownPreset):
		return "未知的原因選項。", true
	case errors.Is(err, latereport.ErrVersionConflict):
		return "回報狀態已變更，請重新操作。", true
	case errors.Is(err, idb.ErrReportNotFound):
		return "找不到這筆回報。", true
	}
	return genericFailure, false
}

func textErrorMessage(err error, logCtx *logrus.Entry) string {
	msg, expected := workflowErrorMessage(err)
	if expected {
		logCtx.WithError(err).Info("Rejected input")
	} else {
		logCtx.WithError(err).Error("Failed to process text")
	}
	return msg
}

func respondError(c telebot.Context, err error, logCtx *logrus.Entry) error {
	msg, expected := workflowErrorMessage(err)
	if expected {
		logCtx.WithError(err).Info("Rejected action")
	} else {
		logCtx.WithError(err).Error("Failed to process action")
	}
	return c.Respond(&telebot.CallbackResponse{Text: msg, ShowAlert: !expected})
}
