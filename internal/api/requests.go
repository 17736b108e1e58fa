package api

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/pathakanu/remindbot/internal/schedule"
	"github.com/pathakanu/remindbot/internal/store"
)

// nullable records whether a JSON field was present, so that an explicit
// null clears a column while an absent key leaves it untouched.
type nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n nullable[T]) optional() store.Optional[T] {
	return store.Optional[T]{Set: n.Set, Value: n.Value}
}

// tagList accepts tags as plain names or as {"name": ...} objects.
type tagList []string

func (l *tagList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tags must be an array: %w", err)
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			names = append(names, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("tag must be a name or an object with a name: %w", err)
		}
		names = append(names, obj.Name)
	}
	*l = names
	return nil
}

type userRequest struct {
	ExternalID *int64           `json:"external_id"`
	Username   nullable[string] `json:"username"`
}

type reminderRequest struct {
	UserID           *uint            `json:"user_id"`
	ChatID           *int64           `json:"chat_id"`
	Title            *string          `json:"title"`
	Description      nullable[string] `json:"description"`
	EventTime        nullable[string] `json:"event_time"`
	RepeatType       nullable[string] `json:"repeat_type"`
	NotificationTime nullable[string] `json:"notification_time"`
	Tags             *tagList         `json:"tags"`
}

type tagRequest struct {
	Name   *string `json:"name"`
	ChatID *int64  `json:"chat_id"`
}

func (r reminderRequest) input(loc *time.Location) (store.ReminderInput, error) {
	eventTime, err := parseOptionalTime("event_time", r.EventTime, loc)
	if err != nil {
		return store.ReminderInput{}, err
	}
	notificationTime, err := parseOptionalTime("notification_time", r.NotificationTime, loc)
	if err != nil {
		return store.ReminderInput{}, err
	}
	in := store.ReminderInput{
		Description:      r.Description.Value,
		EventTime:        eventTime.Value,
		RepeatType:       r.RepeatType.Value,
		NotificationTime: notificationTime.Value,
	}
	if r.UserID != nil {
		in.UserID = *r.UserID
	}
	if r.ChatID != nil {
		in.ChatID = *r.ChatID
	}
	if r.Title != nil {
		in.Title = *r.Title
	}
	if r.Tags != nil {
		in.Tags = *r.Tags
	}
	return in, nil
}

func (r reminderRequest) patch(loc *time.Location) (store.ReminderPatch, error) {
	eventTime, err := parseOptionalTime("event_time", r.EventTime, loc)
	if err != nil {
		return store.ReminderPatch{}, err
	}
	notificationTime, err := parseOptionalTime("notification_time", r.NotificationTime, loc)
	if err != nil {
		return store.ReminderPatch{}, err
	}
	patch := store.ReminderPatch{
		UserID:           r.UserID,
		ChatID:           r.ChatID,
		Title:            r.Title,
		Description:      r.Description.optional(),
		EventTime:        eventTime,
		RepeatType:       r.RepeatType.optional(),
		NotificationTime: notificationTime,
	}
	if r.Tags != nil {
		names := []string(*r.Tags)
		patch.Tags = &names
	}
	return patch, nil
}

func parseOptionalTime(field string, raw nullable[string], loc *time.Location) (store.Optional[time.Time], error) {
	if !raw.Set || raw.Value == nil {
		return store.Optional[time.Time]{Set: raw.Set}, nil
	}
	t, err := schedule.ParseTime(*raw.Value, loc)
	if err != nil {
		return store.Optional[time.Time]{}, fmt.Errorf("%w: %s: %v", store.ErrValidation, field, err)
	}
	return store.Some(t), nil
}

func pathID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid id %q", store.ErrValidation, c.Param("id"))
	}
	return uint(id), nil
}

func queryUint(c *gin.Context, key string) (*uint, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", store.ErrValidation, key, raw)
	}
	id := uint(v)
	return &id, nil
}

func queryInt64(c *gin.Context, key string) (*int64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", store.ErrValidation, key, raw)
	}
	return &v, nil
}
