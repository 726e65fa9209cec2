package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLen is Telegram's limit for a text message.
const maxMessageLen = 4096

// TelegramSender is satisfied by *tgbotapi.BotAPI.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts notifications to one chat.
type TelegramSink struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegramSink(bot TelegramSender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

// NewTelegramBot connects to the Bot API with token. Every API request,
// including the initial getMe, is bounded by timeout (10s when zero).
func NewTelegramBot(token string, debug bool, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// Notify sends the notification. A 429 reply is retried once after the
// server-provided delay if ctx allows it.
func (s *TelegramSink) Notify(ctx context.Context, n Notification) error {
	msg := tgbotapi.NewMessage(s.chatID, formatMessage(n))
	msg.ParseMode = tgbotapi.ModeHTML

	_, err := s.bot.Send(msg)
	if err == nil {
		return nil
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.Code == 429 {
		wait := time.Duration(tgErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("telegram rate limited: %w", ctx.Err())
		}
		if _, err = s.bot.Send(msg); err == nil {
			return nil
		}
	}
	return fmt.Errorf("send telegram notification: %w", err)
}

func formatMessage(n Notification) string {
	var b strings.Builder
	b.WriteString("📢 <b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>\n")
	fmt.Fprintf(&b, "Event Type: <code>%s</code>\n", html.EscapeString(n.Event.EventType()))
	fmt.Fprintf(&b, "Received: %s\n", html.EscapeString(n.Timestamp()))

	b.WriteString("<pre>")
	b.WriteString(truncateEscaped(n.body(), maxMessageLen-b.Len()-len("</pre>")))
	b.WriteString("</pre>")
	return b.String()
}

// truncateEscaped returns the HTML-escaped body cut so the result fits in
// limit bytes. Cutting happens before escaping so no entity is split.
func truncateEscaped(body string, limit int) string {
	const ellipsis = "\n…"
	escaped := html.EscapeString(body)
	if len(escaped) <= limit {
		return escaped
	}
	for len(body) > 0 {
		over := len(escaped) + len(ellipsis) - limit
		if over <= 0 {
			return escaped + ellipsis
		}
		cut := len(body) - over
		if cut < 0 {
			cut = 0
		}
		body = strings.ToValidUTF8(body[:cut], "")
		escaped = html.EscapeString(body)
	}
	return ""
}
