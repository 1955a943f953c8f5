package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// WebhookSink POSTs an HTML-formatted summary of each notification to a
// fixed URL. It is a best-effort companion to the durable inbox: Send
// errors are discarded by Service.Append, never surfaced to the
// approval engine.
type WebhookSink struct {
	url    string
	client *http.Client
	log    *log.Logger
}

func NewWebhookSink(url string, logger *log.Logger) *WebhookSink {
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookSink{url: url, client: &http.Client{Timeout: 10 * time.Second}, log: logger}
}

func (w *WebhookSink) Send(n Notification) error {
	return w.SendText(formatMessage(n))
}

// SendText posts a freeform message, used by internal/digest for the
// periodic operator summary alongside per-notification pushes.
func (w *WebhookSink) SendText(text string) error {
	body := map[string]string{"text": text}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// TelegramSink pushes the same summary to a fixed chat via the Telegram
// bot API.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *log.Logger
}

func NewTelegramSink(token string, chatID int64, logger *log.Logger) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TelegramSink{bot: bot, chatID: chatID, log: logger}, nil
}

func (t *TelegramSink) Send(n Notification) error {
	return t.SendText(formatMessage(n))
}

// SendText pushes a freeform message, used by internal/digest.
func (t *TelegramSink) SendText(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := t.bot.Send(msg)
	return err
}

func formatMessage(n Notification) string {
	return fmt.Sprintf("<b>%s</b>\nsubmission: %s\nrecipient: %s",
		html.EscapeString(string(n.Kind)),
		html.EscapeString(n.SubmissionID),
		html.EscapeString(n.RecipientUsername),
	)
}
