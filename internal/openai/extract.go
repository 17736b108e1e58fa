package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/kaptinlin/jsonrepair"

	"github.com/pathakanu/remindbot/internal/metrics"
	"github.com/pathakanu/remindbot/internal/schedule"
)

// ErrExtractionFailed is returned when no usable reminder could be extracted.
// Callers must not build a reminder from a failed extraction.
var ErrExtractionFailed = errors.New("reminder extraction failed")

// PlaceholderTitle replaces a title the model left out.
const PlaceholderTitle = "Untitled reminder"

// DefaultTimeout bounds one extraction when none is configured.
const DefaultTimeout = 20 * time.Second

const systemPrompt = "You parse reminders. Always answer with valid JSON only. repeat_type is always a cron string or null."

// Draft is a structurally valid reminder candidate. Only Title is guaranteed.
type Draft struct {
	Title            string
	Description      *string
	EventTime        *time.Time
	RepeatType       *string
	NotificationTime *time.Time
	Tags             []string
}

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// Location interprets timestamps without an offset. Defaults to UTC.
	Location *time.Location
	Timeout  time.Duration
	Metrics  *metrics.Recorder
}

// Extractor turns free text into a Draft through a Completer.
type Extractor struct {
	completer Completer
	loc       *time.Location
	timeout   time.Duration
	metrics   *metrics.Recorder
}

// NewExtractor returns an Extractor backed by completer.
func NewExtractor(completer Completer, opts ExtractorOptions) *Extractor {
	e := &Extractor{
		completer: completer,
		loc:       opts.Location,
		timeout:   opts.Timeout,
		metrics:   opts.Metrics,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	return e
}

// Extract asks the model for reminder fields describing text, relative to now.
// Every failure, including a timeout, wraps ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, text string, now time.Time) (Draft, error) {
	draft, err := e.extract(ctx, text, now)
	e.metrics.ObserveExtraction(err)
	if err != nil {
		return Draft{}, err
	}
	return draft, nil
}

func (e *Extractor) extract(ctx context.Context, text string, now time.Time) (Draft, error) {
	if strings.TrimSpace(text) == "" {
		return Draft{}, fmt.Errorf("%w: empty text", ErrExtractionFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.completer.Complete(ctx, systemPrompt, buildPrompt(text, now.In(e.loc)))
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return parseDraft(reply, e.loc)
}

func buildPrompt(text string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Now: %s, %s (current server time).\n", now.Format("2006-01-02T15:04:05"), now.Weekday())
	b.WriteString("Extract the reminder parameters from the user's text. ")
	b.WriteString("Return a JSON object with the keys: ")
	b.WriteString("title (string), description (string or null), ")
	b.WriteString("event_time (ISO 8601 string such as 2024-06-01T18:00:00), ")
	b.WriteString("repeat_type (cron string or null: '0 9 * * 1' for every Monday at 9:00, '0 8 * * *' for every day at 8:00, null when it does not repeat; ")
	b.WriteString("each of the five fields is * or a single number), ")
	b.WriteString("notification_time (ISO 8601 string or null), tags (list of strings, possibly empty).\n")
	b.WriteString("Examples:\n")
	b.WriteString(`{"title": "Call mom", "description": "Call mom about her birthday", "event_time": "2024-06-01T18:00:00", "repeat_type": null, "notification_time": "2024-06-01T17:50:00", "tags": ["personal"]}` + "\n")
	b.WriteString(`{"title": "Team meeting", "description": null, "event_time": "2024-06-03T09:00:00", "repeat_type": "0 9 * * 1", "notification_time": null, "tags": ["work", "meeting"]}` + "\n")
	b.WriteString(`{"title": "Drink water", "description": "Drink water every morning", "event_time": "2024-06-02T08:00:00", "repeat_type": "0 8 * * *", "notification_time": null, "tags": []}` + "\n")
	fmt.Fprintf(&b, "Text: %s\n", text)
	b.WriteString("Answer (JSON only):")
	return b.String()
}

type rawDraft struct {
	Title            *string  `json:"title"`
	Description      *string  `json:"description"`
	EventTime        *string  `json:"event_time"`
	RepeatType       *string  `json:"repeat_type"`
	NotificationTime *string  `json:"notification_time"`
	Tags             []string `json:"tags"`
}

// parseDraft decodes the first JSON object in reply, repairing it when the
// model produced almost-JSON, and validates every field it sets.
func parseDraft(reply string, loc *time.Location) (Draft, error) {
	object, ok := firstObject(reply)
	if !ok {
		start := strings.IndexByte(reply, '{')
		if start < 0 {
			return Draft{}, fmt.Errorf("%w: no JSON object in reply", ErrExtractionFailed)
		}
		object = reply[start:]
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(object)
		if repairErr != nil {
			return Draft{}, fmt.Errorf("%w: decode reply: %w", ErrExtractionFailed, err)
		}
		raw = rawDraft{}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return Draft{}, fmt.Errorf("%w: decode repaired reply: %w", ErrExtractionFailed, err)
		}
	}

	draft := Draft{
		Title:       PlaceholderTitle,
		Description: nonBlank(raw.Description),
		Tags:        cleanTags(raw.Tags),
	}
	if title := nonBlank(raw.Title); title != nil {
		draft.Title = *title
	}

	var err error
	if draft.EventTime, err = parseOptionalTime("event_time", raw.EventTime, loc); err != nil {
		return Draft{}, err
	}
	if draft.NotificationTime, err = parseOptionalTime("notification_time", raw.NotificationTime, loc); err != nil {
		return Draft{}, err
	}
	if rule := nonBlank(raw.RepeatType); rule != nil && !isNullWord(*rule) {
		parsed, err := schedule.ParseRule(*rule)
		if err != nil {
			return Draft{}, fmt.Errorf("%w: repeat_type: %w", ErrExtractionFailed, err)
		}
		normalized := parsed.String()
		draft.RepeatType = &normalized
	}
	return draft, nil
}

// firstObject returns the first balanced {...} in s, skipping braces inside strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func parseOptionalTime(field string, value *string, loc *time.Location) (*time.Time, error) {
	v := nonBlank(value)
	if v == nil || isNullWord(*v) {
		return nil, nil
	}
	t, err := schedule.ParseTime(*v, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, field, err)
	}
	return &t, nil
}

func nonBlank(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isNullWord(v string) bool {
	switch strings.ToLower(v) {
	case "null", "none":
		return true
	}
	return false
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
