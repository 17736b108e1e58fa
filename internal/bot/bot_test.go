package bot

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/remindbot/internal/apiclient"
	"github.com/pathakanu/remindbot/internal/model"
	myopenai "github.com/pathakanu/remindbot/internal/openai"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Text
}

type fakeBackend struct {
	mu         sync.Mutex
	users      map[int64]model.User
	reminders  []model.Reminder
	nextID     uint
	ensureHits int
	createErr  error
	ensureErr  error
	created    []apiclient.NewReminder
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{users: map[int64]model.User{}}
}

func (f *fakeBackend) EnsureUser(_ context.Context, externalID int64, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureHits++
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	if u, ok := f.users[externalID]; ok {
		return &u, nil
	}
	f.nextID++
	u := model.User{ID: f.nextID, ExternalID: externalID, Username: &username}
	f.users[externalID] = u
	return &u, nil
}

func (f *fakeBackend) ListReminders(_ context.Context, userID uint, chatID int64) ([]model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reminder
	for _, r := range f.reminders {
		if r.UserID == userID && r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateReminder(_ context.Context, in apiclient.NewReminder) (*model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, in)
	f.nextID++
	r := model.Reminder{
		ID:          f.nextID,
		UserID:      in.UserID,
		ChatID:      in.ChatID,
		Title:       in.Title,
		Description: in.Description,
		EventTime:   in.EventTime,
		RepeatType:  in.RepeatType,
	}
	f.reminders = append(f.reminders, r)
	return &r, nil
}

func (f *fakeBackend) DeleteReminder(_ context.Context, id, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.reminders {
		if r.ID != id {
			continue
		}
		if r.UserID != userID {
			return &apiclient.Error{Status: http.StatusForbidden, Code: "forbidden", Message: "not your reminder"}
		}
		f.reminders = append(f.reminders[:i], f.reminders[i+1:]...)
		return nil
	}
	return &apiclient.Error{Status: http.StatusNotFound, Code: "not_found", Message: "reminder not found"}
}

type fakeExtractor struct {
	draft myopenai.Draft
	err   error
	delay time.Duration
}

func (f *fakeExtractor) Extract(ctx context.Context, _ string, _ time.Time) (myopenai.Draft, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return myopenai.Draft{}, ctx.Err()
		}
	}
	return f.draft, f.err
}

func newTestBot(t *testing.T, backend *fakeBackend, extractor Extractor) (*Bot, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	b, err := New(Options{
		Sender:    sender,
		Backend:   backend,
		Extractor: extractor,
		Logger:    log.New(io.Discard, "", 0),
		Location:  time.UTC,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return b, sender
}

func textUpdate(userID, chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "user"},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(userID, chatID int64, messageID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func ptr[T any](v T) *T { return &v }

func TestStartRegistersUserOnce(t *testing.T) {
	backend := newFakeBackend()
	b, sender := newTestBot(t, backend, &fakeExtractor{})

	b.HandleUpdate(context.Background(), textUpdate(42, 100, "/start"))
	b.HandleUpdate(context.Background(), textUpdate(42, 100, "/start"))

	assert.Len(t, backend.users, 1)
	assert.Equal(t, 1, backend.ensureHits, "second contact is served from the cache")
	assert.Equal(t, welcomeText, sender.lastText(t))
}

func TestHelpAndUnknownCommand(t *testing.T) {
	b, sender := newTestBot(t, newFakeBackend(), &fakeExtractor{})

	b.HandleUpdate(context.Background(), textUpdate(42, 100, "/help"))
	assert.Equal(t, helpText, sender.lastText(t))
	b.HandleUpdate(context.Background(), textUpdate(42, 100, "/whatever"))
	assert.Equal(t, helpText, sender.lastText(t))
}

func TestFreeTextCreatesReminder(t *testing.T) {
	backend := newFakeBackend()
	event := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	extractor := &fakeExtractor{draft: myopenai.Draft{
		Title:      "Team <meeting>",
		EventTime:  &event,
		RepeatType: ptr("0 9 * * 1"),
		Tags:       []string{"work"},
	}}
	b, sender := newTestBot(t, backend, extractor)

	b.HandleUpdate(context.Background(), textUpdate(42, 100, "every monday at 9 team meeting"))

	require.Len(t, backend.created, 1)
	created := backend.created[0]
	assert.Equal(t, int64(100), created.ChatID)
	assert.Equal(t, backend.users[42].ID, created.UserID)
	assert.Equal(t, []string{"work"}, created.Tags)

	reply := sender.lastText(t)
	assert.Contains(t, reply, "Team &lt;meeting&gt;")
	assert.Contains(t, reply, "Mon 03 Jun 2024 09:00")
}

func TestFailedExtractionShowsRetryAndCreatesNothing(t *testing.T) {
	backend := newFakeBackend()
	b, sender := newTestBot(t, backend, &fakeExtractor{err: myopenai.ErrExtractionFailed})

	b.HandleUpdate(context.Background(), textUpdate(42, 100, "asdf qwerty"))

	assert.Empty(t, backend.created)
	assert.Equal(t, retryText, sender.lastText(t))
}

func TestRejectedReminderIsReported(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = &apiclient.Error{Status: http.StatusBadRequest, Code: "invalid_schedule", Message: "notification after event"}
	b, sender := newTestBot(t, backend, &fakeExtractor{draft: myopenai.Draft{Title: "x"}})

	b.HandleUpdate(context.Background(), textUpdate(42, 100, "something"))

	assert.Equal(t, rejectedText("notification after event"), sender.lastText(t))
}

func TestBackendOutageIsIsolated(t *testing.T) {
	backend := newFakeBackend()
	backend.ensureErr = errors.New("connection refused")
	b, sender := newTestBot(t, backend, &fakeExtractor{})

	assert.NotPanics(t, func() {
		b.HandleUpdate(context.Background(), textUpdate(42, 100, "/reminders"))
	})
	assert.Equal(t, unavailableText, sender.lastText(t))
}

func TestRemindersListAndDeleteCallback(t *testing.T) {
	backend := newFakeBackend()
	b, sender := newTestBot(t, backend, &fakeExtractor{})
	ctx := context.Background()

	owner, err := backend.EnsureUser(ctx, 42, "owner")
	require.NoError(t, err)
	first, err := backend.CreateReminder(ctx, apiclient.NewReminder{UserID: owner.ID, ChatID: 100, Title: "Buy milk"})
	require.NoError(t, err)
	second, err := backend.CreateReminder(ctx, apiclient.NewReminder{UserID: owner.ID, ChatID: 100, Title: "Call mom"})
	require.NoError(t, err)

	b.HandleUpdate(ctx, textUpdate(42, 100, "/reminders"))
	msgs := sender.messages()
	require.NotEmpty(t, msgs)
	list := msgs[len(msgs)-1]
	assert.Contains(t, list.Text, "Buy milk")
	assert.Contains(t, list.Text, "Call mom")
	keyboard, ok := list.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 2)
	require.NotNil(t, keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "delete_reminder:"+itoa(first.ID), *keyboard.InlineKeyboard[0][0].CallbackData)

	b.HandleUpdate(ctx, callbackUpdate(42, 100, 7, "delete_reminder:"+itoa(first.ID)))
	remaining, err := backend.ListReminders(ctx, owner.ID, 100)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, second.ID, remaining[0].ID)

	require.NotEmpty(t, sender.sent)
	edit, ok := sender.sent[len(sender.sent)-1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 7, edit.MessageID)
	assert.NotContains(t, edit.Text, "Buy milk")
	assert.Contains(t, edit.Text, "Call mom")

	b.HandleUpdate(ctx, callbackUpdate(42, 100, 7, "delete_reminder:"+itoa(second.ID)))
	edit, ok = sender.sent[len(sender.sent)-1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, emptyListText, edit.Text)
}

func TestDeleteCallbackByNonOwnerAlerts(t *testing.T) {
	backend := newFakeBackend()
	b, sender := newTestBot(t, backend, &fakeExtractor{})
	ctx := context.Background()

	owner, err := backend.EnsureUser(ctx, 42, "owner")
	require.NoError(t, err)
	r, err := backend.CreateReminder(ctx, apiclient.NewReminder{UserID: owner.ID, ChatID: 100, Title: "mine"})
	require.NoError(t, err)

	b.HandleUpdate(ctx, callbackUpdate(99, 100, 7, "delete_reminder:"+itoa(r.ID)))

	assert.Len(t, backend.reminders, 1)
	require.NotEmpty(t, sender.requests)
	ack, ok := sender.requests[len(sender.requests)-1].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.True(t, ack.ShowAlert)
	assert.Equal(t, "not your reminder", ack.Text)
}

func TestRunHandlesChatsConcurrently(t *testing.T) {
	backend := newFakeBackend()
	extractor := &fakeExtractor{draft: myopenai.Draft{Title: "x"}, delay: 200 * time.Millisecond}
	b, _ := newTestBot(t, backend, extractor)

	updates := make(chan tgbotapi.Update, 8)
	for chat := int64(1); chat <= 8; chat++ {
		updates <- textUpdate(chat, chat, "remind me")
	}
	close(updates)

	start := time.Now()
	require.NoError(t, b.Run(context.Background(), updates))
	assert.Less(t, time.Since(start), 1500*time.Millisecond, "slow extractions must not serialise chats")
	assert.Len(t, backend.created, 8)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
