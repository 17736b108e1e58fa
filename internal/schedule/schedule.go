// Package schedule computes when a reminder fires. Everything here is a pure
// function of its inputs and is safe for concurrent use.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotificationAfterEvent is returned for one-shot timings whose
// notification would fire after the event itself.
var ErrNotificationAfterEvent = errors.New("notification time is after event time")

// Timing holds the scheduling fields of a reminder.
type Timing struct {
	// EventTime is the fire time of a one-shot reminder, or the first anchor
	// of a recurring one.
	EventTime *time.Time
	// Recurrence is a Rule expression; empty means one-shot.
	Recurrence string
	// NotificationTime is the pre-event alert. For recurring reminders its
	// offset from EventTime is reapplied to every occurrence.
	NotificationTime *time.Time
}

// Recurring reports whether the timing carries a recurrence rule.
func (t Timing) Recurring() bool {
	return strings.TrimSpace(t.Recurrence) != ""
}

// Validate checks the timing invariants enforced at write time.
func Validate(t Timing) error {
	if t.Recurring() {
		_, err := ParseRule(t.Recurrence)
		return err
	}
	if t.EventTime != nil && t.NotificationTime != nil && t.NotificationTime.After(*t.EventTime) {
		return ErrNotificationAfterEvent
	}
	return nil
}

// NextOccurrence returns the next time the reminder fires strictly after now.
//
// One-shot reminders return EventTime while it is in the future and nil once
// it has passed. Recurring reminders return the earliest rule match after now
// that is not before EventTime, when EventTime is set. Rule fields are
// evaluated in now.Location().
func NextOccurrence(t Timing, now time.Time) (*time.Time, error) {
	if !t.Recurring() {
		if t.EventTime != nil && t.EventTime.After(now) {
			next := *t.EventTime
			return &next, nil
		}
		return nil, nil
	}

	rule, err := ParseRule(t.Recurrence)
	if err != nil {
		return nil, err
	}

	from := now
	if t.EventTime != nil && t.EventTime.After(now) {
		from = t.EventTime.In(now.Location()).Add(-time.Nanosecond)
	}
	next, ok := rule.Next(from)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOccurrence, rule)
	}
	return &next, nil
}

// NextNotification returns the next pre-event alert strictly after now, or
// nil when none is due.
//
// For recurring reminders with both EventTime and NotificationTime set, the
// alert leads each occurrence by EventTime-NotificationTime. Without an
// EventTime there is no offset to reapply and NotificationTime is treated as
// a single alert.
func NextNotification(t Timing, now time.Time) (*time.Time, error) {
	if t.NotificationTime == nil {
		return nil, nil
	}
	if !t.Recurring() || t.EventTime == nil {
		if t.Recurring() {
			if _, err := ParseRule(t.Recurrence); err != nil {
				return nil, err
			}
		}
		if t.NotificationTime.After(now) {
			next := *t.NotificationTime
			return &next, nil
		}
		return nil, nil
	}

	lead := t.EventTime.Sub(*t.NotificationTime)
	occurrence, err := NextOccurrence(t, now.Add(lead))
	if err != nil || occurrence == nil {
		return nil, err
	}
	next := occurrence.Add(-lead)
	return &next, nil
}
