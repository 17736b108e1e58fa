package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/remindbot/internal/model"
	"github.com/pathakanu/remindbot/internal/schedule"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReminderInput holds the fields of a new reminder. Tags are names resolved
// within ChatID, created on first use.
type ReminderInput struct {
	UserID           uint
	ChatID           int64
	Title            string
	Description      *string
	EventTime        *time.Time
	RepeatType       *string
	NotificationTime *time.Time
	Tags             []string
}

// ReminderPatch holds a partial reminder update. Nil pointers and unset
// Optionals leave the stored value untouched.
type ReminderPatch struct {
	UserID           *uint
	ChatID           *int64
	Title            *string
	Description      Optional[string]
	EventTime        Optional[time.Time]
	RepeatType       Optional[string]
	NotificationTime Optional[time.Time]
	Tags             *[]string
}

// ReminderFilter narrows ListReminders.
type ReminderFilter struct {
	UserID *uint
	ChatID *int64
}

const reminderOrder = "event_time IS NULL, event_time ASC, id ASC"

// CreateReminder validates and persists a reminder and returns the stored record.
func (s *Store) CreateReminder(ctx context.Context, in ReminderInput) (*model.Reminder, error) {
	reminder := model.Reminder{
		UserID:           in.UserID,
		ChatID:           in.ChatID,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		EventTime:        normalizeTime(in.EventTime),
		RepeatType:       normalizeRule(in.RepeatType),
		NotificationTime: normalizeTime(in.NotificationTime),
	}
	if err := validateReminder(reminder); err != nil {
		return nil, err
	}

	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.requireUser(tx, reminder.UserID); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&reminder).Error; err != nil {
			return fmt.Errorf("create reminder: %w", err)
		}
		if len(in.Tags) > 0 {
			if err := linkTags(tx, &reminder, in.Tags); err != nil {
				return err
			}
		}
		return loadReminder(tx, reminder.ID, &reminder)
	})
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// GetReminder fetches a reminder with its tags.
func (s *Store) GetReminder(ctx context.Context, id uint) (*model.Reminder, error) {
	var reminder model.Reminder
	if err := loadReminder(s.db.WithContext(ctx), id, &reminder); err != nil {
		return nil, err
	}
	return &reminder, nil
}

// UpdateReminder merges patch into the stored reminder, re-validates the
// schedule and writes the whole row back.
func (s *Store) UpdateReminder(ctx context.Context, id uint, patch ReminderPatch) (*model.Reminder, error) {
	var reminder model.Reminder
	err := s.tx(ctx, func(tx *gorm.DB) error {
		if err := loadReminder(tx, id, &reminder); err != nil {
			return err
		}
		previousChat := reminder.ChatID
		applyPatch(&reminder, patch)
		if err := validateReminder(reminder); err != nil {
			return err
		}
		if patch.UserID != nil {
			if err := s.requireUser(tx, reminder.UserID); err != nil {
				return err
			}
		}
		if err := tx.Omit(clause.Associations).Save(&reminder).Error; err != nil {
			return fmt.Errorf("update reminder: %w", err)
		}

		if patch.Tags != nil || reminder.ChatID != previousChat {
			names := reminder.TagNames()
			if patch.Tags != nil {
				names = *patch.Tags
			}
			if err := linkTags(tx, &reminder, names); err != nil {
				return err
			}
		}
		return loadReminder(tx, id, &reminder)
	})
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

// DeleteReminder removes a reminder and its tag links. Only the owner may delete.
func (s *Store) DeleteReminder(ctx context.Context, id, requesterID uint) error {
	if requesterID == 0 {
		return validation("user_id is required")
	}
	return s.tx(ctx, func(tx *gorm.DB) error {
		var reminder model.Reminder
		if err := tx.First(&reminder, id).Error; err != nil {
			return lookupError(err, "reminder", id)
		}
		if reminder.UserID != requesterID {
			return fmt.Errorf("%w: user %d does not own reminder %d", ErrForbidden, requesterID, id)
		}
		if err := tx.Model(&reminder).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("unlink reminder tags: %w", err)
		}
		if err := tx.Delete(&reminder).Error; err != nil {
			return fmt.Errorf("delete reminder: %w", err)
		}
		return nil
	})
}

// ListReminders returns reminders ordered by event time ascending, nulls last.
func (s *Store) ListReminders(ctx context.Context, filter ReminderFilter) ([]model.Reminder, error) {
	query := s.db.WithContext(ctx).Preload("Tags", orderTags).Order(reminderOrder)
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ChatID != nil {
		query = query.Where("chat_id = ?", *filter.ChatID)
	}
	reminders := []model.Reminder{}
	if err := query.Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	for i := range reminders {
		ensureTags(&reminders[i])
	}
	return reminders, nil
}

// ListRemindersForUser lists one user's reminders, failing with ErrNotFound
// when the user does not exist.
func (s *Store) ListRemindersForUser(ctx context.Context, userID uint) ([]model.Reminder, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.ListReminders(ctx, ReminderFilter{UserID: &userID})
}

func applyPatch(r *model.Reminder, patch ReminderPatch) {
	if patch.UserID != nil {
		r.UserID = *patch.UserID
	}
	if patch.ChatID != nil {
		r.ChatID = *patch.ChatID
	}
	if patch.Title != nil {
		r.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description.Set {
		r.Description = patch.Description.Value
	}
	if patch.EventTime.Set {
		r.EventTime = normalizeTime(patch.EventTime.Value)
	}
	if patch.RepeatType.Set {
		r.RepeatType = normalizeRule(patch.RepeatType.Value)
	}
	if patch.NotificationTime.Set {
		r.NotificationTime = normalizeTime(patch.NotificationTime.Value)
	}
}

func validateReminder(r model.Reminder) error {
	if r.Title == "" {
		return validation("title is required")
	}
	if r.UserID == 0 {
		return validation("user_id is required")
	}
	if r.ChatID == 0 {
		return validation("chat_id is required")
	}
	return scheduleError(schedule.Validate(r.Timing()))
}

// normalizeRule stores a parsable rule in its canonical form, so equal rules
// are stored identically. A blank rule means one-shot. An unparsable rule is
// kept with whitespace collapsed and rejected by validateReminder.
func normalizeRule(rule *string) *string {
	if rule == nil {
		return nil
	}
	normalized := strings.Join(strings.Fields(*rule), " ")
	if normalized == "" {
		return nil
	}
	if parsed, err := schedule.ParseRule(normalized); err == nil {
		normalized = parsed.String()
	}
	return &normalized
}

func loadReminder(db *gorm.DB, id uint, out *model.Reminder) error {
	*out = model.Reminder{}
	if err := db.Preload("Tags", orderTags).First(out, id).Error; err != nil {
		return lookupError(err, "reminder", id)
	}
	ensureTags(out)
	return nil
}

func orderTags(db *gorm.DB) *gorm.DB {
	return db.Order("tags.id ASC")
}

func ensureTags(r *model.Reminder) {
	if r.Tags == nil {
		r.Tags = []model.Tag{}
	}
}
