package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"late_report_bot/internal/app"
	"late_report_bot/internal/domain/stats"
	idb "late_report_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const notAuthorizedMessage = "錯誤：你沒有執行這個指令的權限。"

// RegisterAdminHandlers registers the admin and superadmin commands.
// Authorization is decided by the role stored for the sender.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, loc *time.Location, baseLogger *logrus.Entry) {
	b.Handle("/late_reports", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/late_reports",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		limit := app.DefaultListLimit
		if args := c.Args(); len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return c.Send(fmt.Sprintf("格式錯誤，請使用：/late_reports [1-%d]", adminService.ListMax()))
			}
			limit = n
		}

		reports, err := adminService.ListRecentReports(ctx, currentUser(c), limit)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, app.ErrAdminNotAuthorized):
				logWithError.Warn("Unauthorized access attempt")
				return c.Send(notAuthorizedMessage)
			case errors.Is(err, app.ErrListLimitOutOfRange):
				return c.Send(fmt.Sprintf("筆數需介於 1 到 %d 之間。", adminService.ListMax()))
			default:
				logWithError.Error("Failed to list late reports")
				return c.Send(genericFailure)
			}
		}

		handlerLogger.WithField("reports_count", len(reports)).Info("Listed late reports")
		return c.Send(formatRecentReports(reports, loc))
	})

	toggle := func(command string, enabled bool) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
				"chat_id":   c.Chat().ID,
			})
			handlerLogger.Info("Command received")

			group, err := adminService.SetGroupLateReport(ctx, currentUser(c), currentGroup(c), enabled)
			if err != nil {
				logWithError := handlerLogger.WithError(err)
				switch {
				case errors.Is(err, app.ErrAdminNotAuthorized):
					logWithError.Warn("Unauthorized access attempt")
					return c.Send(notAuthorizedMessage)
				case errors.Is(err, app.ErrNotInGroup):
					return c.Send("這個指令只能在群組中使用。")
				default:
					logWithError.Error("Failed to toggle late reports")
					return c.Send(genericFailure)
				}
			}

			handlerLogger.WithField("group_id", group.ID).Info("Late report setting changed")
			if enabled {
				return c.Send("✅ 已在此群組啟用遲到回報。")
			}
			return c.Send("⏸ 已在此群組停用遲到回報。")
		}
	}
	b.Handle("/late_report_on", toggle("/late_report_on", true))
	b.Handle("/late_report_off", toggle("/late_report_off", false))

	b.Handle("/late_stats", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/late_stats",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		period := stats.PeriodDaily
		if args := c.Args(); len(args) > 0 {
			p, err := stats.ParsePeriod(args[0])
			if err != nil {
				return c.Send("格式錯誤，請使用：/late_stats [daily|weekly|monthly]")
			}
			period = p
		}

		summary, err := adminService.PeriodicSummary(ctx, currentUser(c), period)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(notAuthorizedMessage)
			}
			handlerLogger.WithError(err).Error("Failed to build periodic stats")
			return c.Send(genericFailure)
		}
		return c.Send(formatPeriodicStats(summary))
	})

	b.Handle("/clear_stats_cache", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/clear_stats_cache",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		result, err := adminService.ClearStatsCache(ctx, currentUser(c))
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(notAuthorizedMessage)
			}
			handlerLogger.WithError(err).Error("Failed to clear stats cache")
			return c.Send(genericFailure)
		}

		handlerLogger.WithFields(logrus.Fields{
			"expired":  result.Expired,
			"periodic": result.Periodic,
		}).Info("Stats cache cleared")
		return c.Send(fmt.Sprintf("🧹 已清除統計快取：過期 %d 筆，週期統計 %d 筆。", result.Expired, result.Periodic))
	})

	b.Handle("/groups", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/groups",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		groups, err := adminService.ListGroups(ctx, currentUser(c))
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(notAuthorizedMessage)
			}
			handlerLogger.WithError(err).Error("Failed to list groups")
			return c.Send(genericFailure)
		}
		return c.Send(formatGroupList(groups, loc))
	})

	b.Handle("/group_info", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/group_info",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		var telegramID int64
		if args := c.Args(); len(args) > 0 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id == 0 {
				return c.Send("格式錯誤，請使用：/group_info [群組 ID]")
			}
			telegramID = id
		}

		info, err := adminService.GroupInfo(ctx, currentUser(c), currentGroup(c), telegramID)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, app.ErrAdminNotAuthorized):
				logWithError.Warn("Unauthorized access attempt")
				return c.Send(notAuthorizedMessage)
			case errors.Is(err, app.ErrNotInGroup):
				return c.Send("請在群組中使用，或指定群組 ID：/group_info <群組 ID>")
			case errors.Is(err, idb.ErrGroupNotFound):
				return c.Send("找不到這個群組。")
			default:
				logWithError.Error("Failed to load group info")
				return c.Send(genericFailure)
			}
		}
		return c.Send(formatGroupInfo(info, loc))
	})

	b.Handle("/stats", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/stats",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		overview, err := adminService.SystemStats(ctx, currentUser(c))
		if err != nil {
			if errors.Is(err, app.ErrSuperAdminRequired) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(notAuthorizedMessage)
			}
			handlerLogger.WithError(err).Error("Failed to build system stats")
			return c.Send(genericFailure)
		}
		return c.Send(formatSystemOverview(overview))
	})
}
