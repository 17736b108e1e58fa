package model

import (
	"time"

	"github.com/pathakanu/remindbot/internal/schedule"
)

// Reminder is a one-shot or recurring reminder owned by a user and delivered to a chat.
type Reminder struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"index;not null" json:"user_id"`
	ChatID           int64      `gorm:"index;not null" json:"chat_id"`
	Title            string     `gorm:"size:255;not null" json:"title"`
	Description      *string    `gorm:"type:text" json:"description"`
	EventTime        *time.Time `gorm:"index" json:"event_time"`
	RepeatType       *string    `gorm:"size:50" json:"repeat_type"`
	NotificationTime *time.Time `json:"notification_time"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	Tags             []Tag      `gorm:"many2many:reminder_tags;" json:"tags"`
}

// Timing returns the scheduling fields consumed by the schedule package.
func (r Reminder) Timing() schedule.Timing {
	t := schedule.Timing{
		EventTime:        r.EventTime,
		NotificationTime: r.NotificationTime,
	}
	if r.RepeatType != nil {
		t.Recurrence = *r.RepeatType
	}
	return t
}

// TagNames lists the reminder's tag names in association order.
func (r Reminder) TagNames() []string {
	names := make([]string, 0, len(r.Tags))
	for _, tag := range r.Tags {
		names = append(names, tag.Name)
	}
	return names
}
