package telegram

import (
	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the domain telegram Notifier using gopkg.in/telebot.v3.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendHTML sends text to a chat. For users the chat ID is their Telegram user ID.
func (tba *TelebotAdapter) SendHTML(chatID int64, text string) error {
	_, err := tba.bot.Send(telebot.ChatID(chatID), text, &telebot.SendOptions{
		ParseMode:             telebot.ModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}
