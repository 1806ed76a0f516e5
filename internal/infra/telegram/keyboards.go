package telegram

import (
	"late_report_bot/internal/domain/latereport"

	"gopkg.in/telebot.v3"
)

func dataButton(markup *telebot.ReplyMarkup, text string, cb lateCallback) telebot.Btn {
	return markup.Data(text, cb.unique())
}

// reasonKeyboard offers the preset reasons, a free-text option and cancel.
func reasonKeyboard(vocab latereport.Vocabulary, reportID int64) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(vocab.Presets)+2)
	for _, p := range vocab.Presets {
		label := p.Label
		if label == "" {
			label = p.Reason
		}
		rows = append(rows, markup.Row(dataButton(markup, label,
			lateCallback{Action: actionSelectReason, ReportID: reportID, Preset: p.Key})))
	}
	rows = append(rows,
		markup.Row(dataButton(markup, "✏️ 其他原因", lateCallback{Action: actionSelectReason, ReportID: reportID, Preset: latereport.PresetOther})),
		markup.Row(dataButton(markup, "❌ 取消回報", lateCallback{Action: actionCancel, ReportID: reportID})),
	)
	markup.Inline(rows...)
	return markup
}

// confirmKeyboard is shown once a report has a reason.
func confirmKeyboard(reportID int64) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(
		markup.Row(dataButton(markup, "✅ 確認送出", lateCallback{Action: actionConfirm, ReportID: reportID})),
		markup.Row(
			dataButton(markup, "📝 修改原因", lateCallback{Action: actionEditReason, ReportID: reportID}),
			dataButton(markup, "❌ 取消回報", lateCallback{Action: actionCancel, ReportID: reportID}),
		),
	)
	return markup
}
