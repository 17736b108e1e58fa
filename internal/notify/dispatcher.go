// Package notify turns stored reminders into due events on a cron tick and
// hands them to delivery sinks. Delivery is at most once: a tick's window
// advances even when a sink fails.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pathakanu/remindbot/internal/metrics"
	"github.com/pathakanu/remindbot/internal/model"
	"github.com/pathakanu/remindbot/internal/schedule"
	"github.com/pathakanu/remindbot/internal/store"
)

// maxPerReminder caps how many events one reminder may emit in a single
// window, so a long outage does not replay a minutely rule thousands of times.
const maxPerReminder = 16

// Kind tells an occurrence from its pre-event alert.
type Kind string

const (
	KindOccurrence   Kind = "occurrence"
	KindNotification Kind = "notification"
)

// Event is one due firing of a reminder.
type Event struct {
	ReminderID uint
	ChatID     int64
	Title      string
	Kind       Kind
	DueTime    time.Time
	// OccursAt is the occurrence a notification announces, when known.
	OccursAt *time.Time
}

// Sink delivers events to an external channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Source lists reminders; *store.Store implements it.
type Source interface {
	ListReminders(ctx context.Context, filter store.ReminderFilter) ([]model.Reminder, error)
}

// Options configures a Dispatcher.
type Options struct {
	Source   Source
	Sinks    []Sink
	Logger   *log.Logger
	Metrics  *metrics.Recorder
	Location *time.Location
	Now      func() time.Time
}

// Dispatcher emits every event due in (last tick, now].
type Dispatcher struct {
	source  Source
	sinks   []Sink
	logger  *log.Logger
	metrics *metrics.Recorder
	loc     *time.Location
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
	cron *cron.Cron
}

// New returns a Dispatcher whose first window starts at construction time.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		source:  opts.Source,
		sinks:   opts.Sinks,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		loc:     opts.Location,
		now:     opts.Now,
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.last = d.now()
	return d
}

// Start runs Tick on the given cron spec, e.g. "@every 1m".
func (d *Dispatcher) Start(spec string) error {
	c := cron.New(
		cron.WithLocation(d.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(d.logger))),
	)
	_, err := c.AddFunc(spec, func() {
		if _, err := d.Tick(context.Background(), d.now()); err != nil {
			d.logger.Printf("notify: tick: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("notify: schedule %q: %w", spec, err)
	}
	d.mu.Lock()
	d.cron = c
	d.mu.Unlock()
	c.Start()
	d.logger.Printf("notify: dispatcher started (%s)", spec)
	return nil
}

// Stop waits for a running tick to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	c := d.cron
	d.mu.Unlock()
	if c == nil {
		return
	}
	ctx := c.Stop()
	<-ctx.Done()
}

// Tick collects the events due since the previous tick, delivers them to
// every sink and returns them. A failed listing leaves the window unchanged.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) ([]Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	from := d.last
	if !now.After(from) {
		return nil, nil
	}
	reminders, err := d.source.ListReminders(ctx, store.ReminderFilter{})
	if err != nil {
		return nil, fmt.Errorf("notify: list reminders: %w", err)
	}

	var events []Event
	for _, r := range reminders {
		due, err := dueEvents(r, from.In(d.loc), now.In(d.loc))
		if err != nil {
			d.logger.Printf("notify: reminder %d: %v", r.ID, err)
			continue
		}
		events = append(events, due...)
	}
	d.last = now

	for _, e := range events {
		for _, sink := range d.sinks {
			err := sink.Deliver(ctx, e)
			d.metrics.ObserveNotification(sink.Name(), err)
			if err != nil {
				d.logger.Printf("notify: %s: reminder %d %s: %v", sink.Name(), e.ReminderID, e.Kind, err)
			}
		}
	}
	return events, nil
}

// dueEvents lists r's occurrences and notifications in (from, to].
func dueEvents(r model.Reminder, from, to time.Time) ([]Event, error) {
	timing := r.Timing()
	var events []Event

	cursor := from
	for i := 0; i < maxPerReminder; i++ {
		next, err := schedule.NextOccurrence(timing, cursor)
		if err != nil {
			return nil, err
		}
		if next == nil || next.After(to) {
			break
		}
		events = append(events, Event{
			ReminderID: r.ID,
			ChatID:     r.ChatID,
			Title:      r.Title,
			Kind:       KindOccurrence,
			DueTime:    *next,
		})
		if !timing.Recurring() {
			break
		}
		cursor = *next
	}

	cursor = from
	for i := 0; i < maxPerReminder; i++ {
		next, err := schedule.NextNotification(timing, cursor)
		if err != nil {
			return nil, err
		}
		if next == nil || next.After(to) {
			break
		}
		e := Event{
			ReminderID: r.ID,
			ChatID:     r.ChatID,
			Title:      r.Title,
			Kind:       KindNotification,
			DueTime:    *next,
		}
		if r.EventTime != nil && r.NotificationTime != nil {
			at := next.Add(r.EventTime.Sub(*r.NotificationTime))
			e.OccursAt = &at
		}
		events = append(events, e)
		if !timing.Recurring() {
			break
		}
		cursor = *next
	}
	return events, nil
}
