package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pathakanu/remindbot/internal/model"
	"github.com/pathakanu/remindbot/internal/schedule"
)

const (
	welcomeText = "👋 Hi! Just write me a reminder in your own words, for example: " +
		"<i>Tomorrow at 19:00 call mom</i> or <i>Every Monday at 9 team meeting</i>.\n" +
		"Use /reminders to see and delete your reminders."
	helpText = "ℹ️ <b>Commands</b>\n" +
		"/start - register and get started\n" +
		"/reminders - list your reminders with delete buttons\n" +
		"/help - this message\n\n" +
		"Anything else you write is turned into a reminder."
	retryText = "🤔 I couldn't understand that reminder. Try rephrasing it, for example: " +
		"<i>Tomorrow at 19:00 call mom</i>."
	unavailableText = "⚠️ The reminder service is unavailable right now. Please try again later."
	emptyListText   = "You have no reminders."
	deletedText     = "Reminder deleted!"

	displayLayout = "Mon 02 Jan 2006 15:04"
)

func rejectedText(reason string) string {
	return "⚠️ I couldn't save that reminder: " + html.EscapeString(reason)
}

func renderCreated(r model.Reminder, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Reminder created: <b>%s</b>", html.EscapeString(r.Title))
	if next := nextLine(r, now); next != "" {
		b.WriteString("\n" + next)
	}
	return b.String()
}

func renderList(reminders []model.Reminder, now time.Time) string {
	var b strings.Builder
	b.WriteString("📋 <b>Your reminders</b>\n")
	for i, r := range reminders {
		fmt.Fprintf(&b, "\n%d. <b>%s</b>", i+1, html.EscapeString(r.Title))
		if r.RepeatType != nil {
			fmt.Fprintf(&b, " 🔁 <code>%s</code>", html.EscapeString(*r.RepeatType))
		}
		if next := nextLine(r, now); next != "" {
			b.WriteString("\n   " + next)
		}
		if names := r.TagNames(); len(names) > 0 {
			b.WriteString("\n   🏷 " + html.EscapeString(strings.Join(names, ", ")))
		}
	}
	return b.String()
}

func nextLine(r model.Reminder, now time.Time) string {
	timing := r.Timing()
	next, err := schedule.NextOccurrence(timing, now)
	if err != nil {
		return ""
	}
	if next == nil {
		if r.EventTime != nil {
			return "🗓 " + r.EventTime.In(now.Location()).Format(displayLayout) + " (past)"
		}
		return ""
	}
	line := "🗓 " + next.In(now.Location()).Format(displayLayout)
	if notify, err := schedule.NextNotification(timing, now); err == nil && notify != nil {
		line += " · 🔔 " + notify.In(now.Location()).Format(displayLayout)
	}
	return line
}

func deleteKeyboard(reminders []model.Reminder) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reminders))
	for _, r := range reminders {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				"❌ Delete: "+shortTitle(r.Title, 32),
				fmt.Sprintf("%s%d", cbDeletePrefix, r.ID),
			),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}
