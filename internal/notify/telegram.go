package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the subset of *tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts events to the reminder's chat.
type TelegramSink struct {
	sender Sender
	loc    *time.Location
}

// NewTelegramSink formats times in loc.
func NewTelegramSink(sender Sender, loc *time.Location) *TelegramSink {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramSink{sender: sender, loc: loc}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Deliver(_ context.Context, e Event) error {
	msg := tgbotapi.NewMessage(e.ChatID, FormatEvent(e, s.loc, true))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := s.sender.Send(msg); err != nil {
		return fmt.Errorf("telegram send to chat %d: %w", e.ChatID, err)
	}
	return nil
}

// FormatEvent renders e for a chat message, with HTML markup when rich is set.
func FormatEvent(e Event, loc *time.Location, rich bool) string {
	title := e.Title
	if rich {
		title = "<b>" + html.EscapeString(title) + "</b>"
	}
	const layout = "Mon 02 Jan 15:04"
	if e.Kind == KindNotification {
		if e.OccursAt != nil {
			return fmt.Sprintf("🔔 Coming up at %s: %s", e.OccursAt.In(loc).Format(layout), title)
		}
		return "🔔 Reminder: " + title
	}
	return fmt.Sprintf("⏰ %s (%s)", title, e.DueTime.In(loc).Format(layout))
}
