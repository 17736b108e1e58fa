// Package bot is the Telegram front-end: it turns chat messages into
// extraction and API calls and renders reminder lists with delete buttons.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pathakanu/remindbot/internal/apiclient"
	"github.com/pathakanu/remindbot/internal/model"
	myopenai "github.com/pathakanu/remindbot/internal/openai"
)

const (
	cbDeletePrefix = "delete_reminder:"

	defaultWorkers   = 8
	defaultCacheSize = 1024
)

// Sender is the subset of *tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Backend is the reminder API as seen by the bot; *apiclient.Client implements it.
type Backend interface {
	EnsureUser(ctx context.Context, externalID int64, username string) (*model.User, error)
	ListReminders(ctx context.Context, userID uint, chatID int64) ([]model.Reminder, error)
	CreateReminder(ctx context.Context, in apiclient.NewReminder) (*model.Reminder, error)
	DeleteReminder(ctx context.Context, id, userID uint) error
}

// Extractor turns free text into reminder fields.
type Extractor interface {
	Extract(ctx context.Context, text string, now time.Time) (myopenai.Draft, error)
}

// Options configures a Bot.
type Options struct {
	Sender    Sender
	Backend   Backend
	Extractor Extractor
	Logger    *log.Logger
	Location  *time.Location
	// Workers bounds how many updates are handled at once.
	Workers   int
	CacheSize int
	Now       func() time.Time
}

// Bot handles Telegram updates. Each update is processed independently; a
// failure in one chat is logged and never affects another.
type Bot struct {
	sender    Sender
	backend   Backend
	extractor Extractor
	logger    *log.Logger
	loc       *time.Location
	workers   int
	now       func() time.Time
	users     *lru.Cache[int64, model.User]
}

// New creates a Bot from opts.
func New(opts Options) (*Bot, error) {
	b := &Bot{
		sender:    opts.Sender,
		backend:   opts.Backend,
		extractor: opts.Extractor,
		logger:    opts.Logger,
		loc:       opts.Location,
		workers:   opts.Workers,
		now:       opts.Now,
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	if b.workers <= 0 {
		b.workers = defaultWorkers
	}
	if b.now == nil {
		b.now = time.Now
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	users, err := lru.New[int64, model.User](size)
	if err != nil {
		return nil, fmt.Errorf("bot: user cache: %w", err)
	}
	b.users = users
	return b, nil
}

// Run consumes updates until ctx is cancelled or the channel closes, then
// waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	b.logger.Printf("bot: handling updates with %d workers", b.workers)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case update, ok := <-updates:
			if !ok {
				break loop
			}
			g.Go(func() error {
				b.HandleUpdate(gctx, update)
				return nil
			})
		}
	}
	return g.Wait()
}

// HandleUpdate dispatches one update and logs any failure.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	}
	if err != nil {
		b.logger.Printf("bot: update %d: %v", update.UpdateID, err)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}
	if msg.IsCommand() {
		b.logger.Printf("bot: command from %d: /%s", msg.From.ID, msg.Command())
		switch msg.Command() {
		case "start":
			return b.handleStart(ctx, msg)
		case "reminders":
			return b.handleReminders(ctx, msg)
		default:
			return b.sendText(msg.Chat.ID, helpText)
		}
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return b.handleFreeText(ctx, msg)
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		_ = b.sendText(msg.Chat.ID, unavailableText)
		return fmt.Errorf("start: %w", err)
	}
	return b.sendText(msg.Chat.ID, welcomeText)
}

func (b *Bot) handleReminders(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		_ = b.sendText(msg.Chat.ID, unavailableText)
		return fmt.Errorf("list: %w", err)
	}
	reminders, err := b.backend.ListReminders(ctx, user.ID, msg.Chat.ID)
	if err != nil {
		_ = b.sendText(msg.Chat.ID, unavailableText)
		return fmt.Errorf("list: %w", err)
	}
	if len(reminders) == 0 {
		return b.sendText(msg.Chat.ID, emptyListText)
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, renderList(reminders, b.now().In(b.loc)))
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyMarkup = deleteKeyboard(reminders)
	_, err = b.sender.Send(out)
	return err
}

// handleFreeText extracts a reminder and creates it. A failed extraction
// only produces a retry prompt; nothing is created.
func (b *Bot) handleFreeText(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		_ = b.sendText(msg.Chat.ID, unavailableText)
		return fmt.Errorf("free text: %w", err)
	}

	draft, err := b.extractor.Extract(ctx, msg.Text, b.now().In(b.loc))
	if err != nil {
		b.logger.Printf("bot: extraction for chat %d: %v", msg.Chat.ID, err)
		return b.sendText(msg.Chat.ID, retryText)
	}

	reminder, err := b.backend.CreateReminder(ctx, apiclient.NewReminder{
		UserID:           user.ID,
		ChatID:           msg.Chat.ID,
		Title:            draft.Title,
		Description:      draft.Description,
		EventTime:        draft.EventTime,
		RepeatType:       draft.RepeatType,
		NotificationTime: draft.NotificationTime,
		Tags:             draft.Tags,
	})
	if err != nil {
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return b.sendText(msg.Chat.ID, rejectedText(apiErr.Message))
		}
		_ = b.sendText(msg.Chat.ID, unavailableText)
		return fmt.Errorf("create reminder: %w", err)
	}
	return b.sendText(msg.Chat.ID, renderCreated(*reminder, b.now().In(b.loc)))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if !strings.HasPrefix(cb.Data, cbDeletePrefix) {
		b.answer(tgbotapi.NewCallback(cb.ID, ""))
		return nil
	}
	reminderID, err := strconv.ParseUint(strings.TrimPrefix(cb.Data, cbDeletePrefix), 10, 64)
	if err != nil || reminderID == 0 {
		b.answer(tgbotapi.NewCallback(cb.ID, ""))
		return nil
	}

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, unavailableText))
		return fmt.Errorf("delete callback: %w", err)
	}

	b.logger.Printf("bot: delete reminder=%d user=%d", reminderID, user.ID)
	if err := b.backend.DeleteReminder(ctx, uint(reminderID), user.ID); err != nil {
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, apiErr.Message))
			return nil
		}
		b.answer(tgbotapi.NewCallbackWithAlert(cb.ID, unavailableText))
		return fmt.Errorf("delete reminder %d: %w", reminderID, err)
	}
	b.answer(tgbotapi.NewCallback(cb.ID, deletedText))

	return b.refreshList(ctx, cb.Message, user)
}

// refreshList re-renders the list message in place after a deletion.
func (b *Bot) refreshList(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	reminders, err := b.backend.ListReminders(ctx, user.ID, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("refresh list: %w", err)
	}
	var edit tgbotapi.EditMessageTextConfig
	if len(reminders) == 0 {
		edit = tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, emptyListText)
	} else {
		edit = tgbotapi.NewEditMessageTextAndMarkup(msg.Chat.ID, msg.MessageID,
			renderList(reminders, b.now().In(b.loc)), deleteKeyboard(reminders))
		edit.ParseMode = tgbotapi.ModeHTML
	}
	_, err = b.sender.Send(edit)
	return err
}

// ensureUser registers the Telegram user on first contact and caches the mapping.
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	if user, ok := b.users.Get(from.ID); ok {
		return &user, nil
	}
	user, err := b.backend.EnsureUser(ctx, from.ID, from.UserName)
	if err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", from.ID, err)
	}
	b.users.Add(from.ID, *user)
	return user, nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.sender.Send(msg)
	return err
}

func (b *Bot) answer(cb tgbotapi.CallbackConfig) {
	if _, err := b.sender.Request(cb); err != nil {
		b.logger.Printf("bot: callback ack: %v", err)
	}
}
