package telegram

// Notifier delivers direct messages to chat members. Implementations decide
// the transport; the app layer only knows Telegram chat IDs.
type Notifier interface {
	// SendHTML sends text formatted with Telegram's HTML subset to chatID.
	SendHTML(chatID int64, text string) error
}
