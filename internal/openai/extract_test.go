package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/remindbot/internal/schedule"
)

type fakeCompleter struct {
	reply  string
	err    error
	block  bool
	system string
	prompt string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.system = system
	f.prompt = user
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newExtractor(c Completer) *Extractor {
	return NewExtractor(c, ExtractorOptions{Location: time.UTC, Timeout: time.Second})
}

func TestExtractWrappedJSON(t *testing.T) {
	fake := &fakeCompleter{reply: "Sure! Here it is:\n```json\n" +
		`{"title": "Call mom", "description": "about {birthday}", "event_time": "2024-06-01T18:00:00", "repeat_type": null, "notification_time": "2024-06-01T17:50:00", "tags": ["personal", " "]}` +
		"\n```\nAnything else?"}

	draft, err := newExtractor(fake).Extract(context.Background(), "call mom at 6pm", now)
	require.NoError(t, err)
	assert.Equal(t, "Call mom", draft.Title)
	require.NotNil(t, draft.Description)
	assert.Equal(t, "about {birthday}", *draft.Description)
	require.NotNil(t, draft.EventTime)
	assert.True(t, time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC).Equal(*draft.EventTime))
	require.NotNil(t, draft.NotificationTime)
	assert.Nil(t, draft.RepeatType)
	assert.Equal(t, []string{"personal"}, draft.Tags)

	assert.Contains(t, fake.prompt, "2024-06-01T10:00:00")
	assert.Contains(t, fake.prompt, "Saturday")
	assert.Contains(t, fake.prompt, "call mom at 6pm")
	assert.NotEmpty(t, fake.system)
}

func TestExtractRecurringNormalizesRule(t *testing.T) {
	fake := &fakeCompleter{reply: `{"title": "Team meeting", "event_time": "2024-06-03T09:00:00", "repeat_type": " 0  9 * * 7 ", "tags": []}`}

	draft, err := newExtractor(fake).Extract(context.Background(), "meeting every sunday", now)
	require.NoError(t, err)
	require.NotNil(t, draft.RepeatType)
	assert.Equal(t, "0 9 * * 0", *draft.RepeatType)
	assert.Empty(t, draft.Tags)
}

func TestExtractMissingTitleUsesPlaceholder(t *testing.T) {
	fake := &fakeCompleter{reply: `{"title": "  ", "event_time": null}`}

	draft, err := newExtractor(fake).Extract(context.Background(), "something", now)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderTitle, draft.Title)
	assert.Nil(t, draft.EventTime)
}

func TestExtractRepairsAlmostJSON(t *testing.T) {
	fake := &fakeCompleter{reply: `{'title': 'Drink water', 'repeat_type': '0 8 * * *', 'tags': ['health',],}`}

	draft, err := newExtractor(fake).Extract(context.Background(), "drink water daily at 8", now)
	require.NoError(t, err)
	assert.Equal(t, "Drink water", draft.Title)
	require.NotNil(t, draft.RepeatType)
	assert.Equal(t, "0 8 * * *", *draft.RepeatType)
	assert.Equal(t, []string{"health"}, draft.Tags)
}

func TestExtractFailures(t *testing.T) {
	cases := map[string]*fakeCompleter{
		"garbage":         {reply: "I could not understand that, sorry."},
		"bad cron":        {reply: `{"title": "x", "repeat_type": "every monday"}`},
		"bad time":        {reply: `{"title": "x", "event_time": "tomorrow evening"}`},
		"service error":   {err: errors.New("503 from upstream")},
		"not initialised": {err: ErrClientNotInitialised},
	}
	for name, fake := range cases {
		t.Run(name, func(t *testing.T) {
			draft, err := newExtractor(fake).Extract(context.Background(), "remind me", now)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExtractionFailed)
			assert.Equal(t, Draft{}, draft)
		})
	}

	_, err := newExtractor(&fakeCompleter{reply: `{"title": "x", "repeat_type": "61 * * * *"}`}).Extract(context.Background(), "x", now)
	assert.ErrorIs(t, err, schedule.ErrMalformedRule)
}

func TestExtractTimesOut(t *testing.T) {
	ex := NewExtractor(&fakeCompleter{block: true}, ExtractorOptions{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := ex.Extract(context.Background(), "remind me", now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExtractEmptyText(t *testing.T) {
	_, err := newExtractor(&fakeCompleter{}).Extract(context.Background(), "   ", now)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestFirstObject(t *testing.T) {
	obj, ok := firstObject(`noise {"a": "}", "b": {"c": 1}} trailing {"d": 2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "}", "b": {"c": 1}}`, obj)

	_, ok = firstObject(`{"a": 1`)
	assert.False(t, ok)
}

func TestClientWithoutKey(t *testing.T) {
	_, err := New("", "").Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrClientNotInitialised)
}
