package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"late_report_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

var (
	infoRefreshBtn = telebot.Btn{Unique: "info_refresh", Text: "🔄 重新整理"}
	infoSetNameBtn = telebot.Btn{Unique: "info_set_name", Text: "✏️ 更新顯示名稱"}
)

// infoKeyboard is attached to /info in private chats only, where the
// presser is always the user being shown.
func infoKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(markup.Row(infoRefreshBtn, infoSetNameBtn))
	return markup
}

// RegisterBotCommands registers the commands available to every member.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	lateReports app.LateReportService,
	statsService *app.StatsService,
	environment string,
	loc *time.Location,
	baseLogger *logrus.Entry,
) {
	commandLogger := baseLogger.WithField("handler_group", "member_commands")

	startDisplayNameUpdate := func(c telebot.Context, logCtx *logrus.Entry) error {
		if err := lateReports.StartDisplayNameUpdate(ctx, currentUser(c)); err != nil {
			logCtx.WithError(err).Error("Failed to start display name update")
			return c.Send(genericFailure)
		}
		logCtx.Info("Awaiting display name")
		return c.Send(fmt.Sprintf("請輸入新的顯示名稱（1-%d 字），或輸入 /cancel 放棄。", app.DisplayNameMaxLength))
	}

	b.Handle("/start", func(c telebot.Context) error {
		user := currentUser(c)
		logCtx := commandLogger.WithField("command", "/start").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /start command")

		if user.Privileged() {
			return c.Send(fmt.Sprintf("你好，管理員 %s！使用 /help 查看可用指令。", user.Name()))
		}
		return c.Send(fmt.Sprintf("你好，%s！在群組中提到「遲到」或「晚到」等字眼時，我會協助你回報遲到原因。", user.Name()))
	})

	b.Handle("/help", func(c telebot.Context) error {
		user := currentUser(c)
		logCtx := commandLogger.WithField("command", "/help").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /help command")

		var helpText strings.Builder
		helpText.WriteString("可用指令：\n\n")
		helpText.WriteString("/info - 查看個人資訊\n")
		helpText.WriteString("/my_late_stats - 查看自己的遲到統計\n")
		helpText.WriteString("/set_name - 設定回報時顯示的名稱（私訊使用）\n")
		helpText.WriteString("/cancel - 取消目前進行中的輸入\n")
		helpText.WriteString("/help - 顯示這則說明\n")
		if user.Privileged() {
			helpText.WriteString("\n管理員指令：\n\n")
			helpText.WriteString("/late_reports [筆數] - 列出最近的遲到回報\n")
			helpText.WriteString("/late_stats [daily|weekly|monthly] - 週期統計\n")
			helpText.WriteString("/late_report_on - 在此群組啟用遲到回報\n")
			helpText.WriteString("/late_report_off - 在此群組停用遲到回報\n")
			helpText.WriteString("/clear_stats_cache - 清除統計快取\n")
			helpText.WriteString("/groups - 列出群組\n")
			helpText.WriteString("/group_info [群組 ID] - 查看群組資訊\n")
		}
		if user.SuperAdmin() {
			helpText.WriteString("\n超級管理員指令：\n\n")
			helpText.WriteString("/stats - 系統統計\n")
		}
		return c.Send(strings.TrimRight(helpText.String(), "\n"))
	})

	b.Handle("/set_name", func(c telebot.Context) error {
		logCtx := commandLogger.WithField("command", "/set_name").WithField("sender_id", c.Sender().ID)
		if c.Chat().Type != telebot.ChatPrivate {
			return c.Reply("請私訊我使用 /set_name。")
		}
		return startDisplayNameUpdate(c, logCtx)
	})

	b.Handle("/info", func(c telebot.Context) error {
		logCtx := commandLogger.WithField("command", "/info").WithField("sender_id", c.Sender().ID)
		logCtx.Info("Processing /info command")

		text := formatUserInfo(currentUser(c), currentGroup(c), environment, time.Now(), loc)
		if c.Chat().Type == telebot.ChatPrivate {
			return c.Send(text, infoKeyboard())
		}
		return c.Send(text)
	})

	// The middleware has already refreshed the profile from this update.
	b.Handle(&infoRefreshBtn, func(c telebot.Context) error {
		logCtx := commandLogger.WithField("command", "info_refresh").WithField("sender_id", c.Sender().ID)
		if err := c.Edit(formatUserInfo(currentUser(c), nil, environment, time.Now(), loc), infoKeyboard()); err != nil {
			logCtx.WithError(err).Warn("Failed to edit message")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "已更新"})
	})

	b.Handle(&infoSetNameBtn, func(c telebot.Context) error {
		logCtx := commandLogger.WithField("command", "info_set_name").WithField("sender_id", c.Sender().ID)
		if err := c.Respond(); err != nil {
			logCtx.WithError(err).Warn("Failed to answer callback")
		}
		return startDisplayNameUpdate(c, logCtx)
	})

	b.Handle("/cancel", func(c telebot.Context) error {
		logCtx := commandLogger.WithField("command", "/cancel").WithField("sender_id", c.Sender().ID)

		cancelled, err := lateReports.CancelConversation(ctx, currentUser(c))
		if err != nil {
			logCtx.WithError(err).Error("Failed to cancel conversation")
			return c.Send(genericFailure)
		}
		if !cancelled {
			return c.Send("目前沒有進行中的輸入。")
		}
		logCtx.Info("Conversation cancelled")
		return c.Send("已取消。")
	})

	b.Handle("/my_late_stats", func(c telebot.Context) error {
		user := currentUser(c)
		logCtx := commandLogger.WithField("command", "/my_late_stats").WithField("sender_id", c.Sender().ID)

		userStats, err := statsService.UserStats(ctx, user.ID, app.DefaultRecentLimit)
		if err != nil {
			logCtx.WithError(err).Error("Failed to load user stats")
			return c.Send(genericFailure)
		}
		return c.Send(formatUserStats(userStats, loc))
	})
}
