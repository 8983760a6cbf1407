package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"persona_reminder_bot/internal/domain/notifier"
	"persona_reminder_bot/internal/domain/reminder"
	idb "persona_reminder_bot/internal/infra/database" // For ErrReminderNotFound

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// taskState tracks the lifecycle of a scheduled reminder inside the arena.
type taskState int

const (
	stateIdle taskState = iota
	stateArmed
	stateFired
	stateCancelled
)

// task is the per-reminder scheduling record: at most one pending timer plus
// the bookkeeping the recurring check needs to fire at most once per day.
type task struct {
	state     taskState
	timer     *clock.Timer
	recurring bool
	armedDay  string // yyyy-mm-dd of the last day the recurring check armed
}

// TimerScheduler owns the mapping from reminder id to pending timer and the
// delay computation rules. One-shot reminders get a single timer at FireAt;
// recurring reminders are driven by a fixed-cadence check (hourly by
// default) that arms today's occurrence when the weekday matches. The active
// flag is re-read from the record store immediately before every fire, never
// cached from arm time.
type TimerScheduler struct {
	repo           reminder.Repository
	notifier       notifier.Client
	clock          clock.Clock
	logger         *logrus.Entry
	snoozeInterval time.Duration

	cronEngine *cron.Cron
	cronSpec   string

	mu    sync.Mutex
	tasks map[int64]*task
}

func NewTimerScheduler(
	repo reminder.Repository,
	nc notifier.Client,
	clk clock.Clock,
	logger *logrus.Entry,
	snoozeInterval time.Duration,
	cronSpecRecurringCheck string,
) *TimerScheduler {
	return &TimerScheduler{
		repo:           repo,
		notifier:       nc,
		clock:          clk,
		logger:         logger,
		snoozeInterval: snoozeInterval,
		cronEngine:     cron.New(cron.WithLocation(time.Local)),
		cronSpec:       cronSpecRecurringCheck,
		tasks:          make(map[int64]*task),
	}
}

// Start launches the recurring-trigger check on its cron cadence.
func (s *TimerScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.checkRecurring(s.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("could not add recurring check cron job: %w", err)
	}
	s.cronEngine.Start()
	s.logger.WithField("cron_spec", s.cronSpec).Info("Scheduler started")
	return nil
}

// Stop halts the cron engine and clears every pending timer.
func (s *TimerScheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()

	s.mu.Lock()
	for id, t := range s.tasks {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.state = stateCancelled
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	s.logger.Info("Scheduler stopped")
}

// Arm schedules future fires for the record. A one-shot whose fire time has
// already passed is skipped silently: a reminder created while the process
// was down may simply have expired, which is not an error.
func (s *TimerScheduler) Arm(rec *reminder.Reminder) error {
	switch rec.Kind {
	case reminder.KindOneShot:
		now := s.clock.Now()
		delay := rec.FireAt.Sub(now)
		if delay <= 0 {
			s.logger.WithFields(logrus.Fields{
				"reminder_id": rec.ID,
				"fire_at":     rec.FireAt,
			}).Info("One-shot fire time already passed, skipping")
			return nil
		}
		s.armTimer(rec.ID, false, delay)
		s.logger.WithFields(logrus.Fields{"reminder_id": rec.ID, "delay": delay}).Debug("One-shot armed")
		return nil

	case reminder.KindRecurring:
		s.mu.Lock()
		t := s.tasks[rec.ID]
		if t == nil {
			t = &task{recurring: true}
			s.tasks[rec.ID] = t
		}
		t.recurring = true
		if t.state == stateCancelled {
			t.state = stateIdle
		}
		s.mu.Unlock()
		// Cover today's occurrence without waiting for the next cadence tick.
		s.checkRecurringRecord(rec.ID, s.clock.Now())
		return nil

	default:
		return fmt.Errorf("cannot arm reminder %d: unknown kind %q", rec.ID, rec.Kind)
	}
}

// Cancel clears any pending timer for the id. It is idempotent and safe to
// call from within the fire callback of the same id: fires never hold the
// arena lock while running.
func (s *TimerScheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tasks[id]
	if t == nil {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.state = stateCancelled
	delete(s.tasks, id)
}

// RehydrateAll arms every active record, recomputing all delays fresh. No
// persisted next-fire time is trusted across a restart; recurring triggers
// are always derived from weekdays and time-of-day again.
func (s *TimerScheduler) RehydrateAll(recs []*reminder.Reminder) {
	for _, rec := range recs {
		if !rec.Active {
			continue
		}
		if err := s.Arm(rec); err != nil {
			s.logger.WithError(err).WithField("reminder_id", rec.ID).Warn("Failed to rehydrate reminder")
		}
	}
}

// armTimer installs the single pending timer for id, replacing any previous
// one.
func (s *TimerScheduler) armTimer(id int64, recurring bool, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tasks[id]
	if t == nil {
		t = &task{recurring: recurring}
		s.tasks[id] = t
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = s.clock.AfterFunc(delay, func() { s.fire(id) })
	t.state = stateArmed
}

// fire runs when a pending timer elapses. The record is re-read from the
// store so that a toggle or delete that happened after arm time wins: an
// inactive record never produces a visible notification, and a vanished id
// is a silent no-op.
func (s *TimerScheduler) fire(id int64) {
	s.mu.Lock()
	t := s.tasks[id]
	if t == nil || t.state == stateCancelled {
		s.mu.Unlock()
		return
	}
	t.timer = nil
	t.state = stateFired
	s.mu.Unlock()

	ctx := context.Background()
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == idb.ErrReminderNotFound {
			s.logger.WithField("reminder_id", id).Debug("Reminder removed before fire, dropping")
			s.Cancel(id)
			return
		}
		s.logger.WithError(err).WithField("reminder_id", id).Error("Failed to load reminder at fire time")
		return
	}
	if !rec.Active {
		s.logger.WithField("reminder_id", id).Info("Reminder inactive at fire time, suppressing")
		return
	}

	s.emit(ctx, rec)

	// Snooze re-fires until the record goes inactive or is deleted; each
	// snooze fire runs through the same active check above. The task is
	// re-checked under the lock so a Cancel issued during the fire callback
	// is not resurrected.
	if rec.Kind == reminder.KindOneShot && rec.SnoozeEnabled {
		s.mu.Lock()
		if t := s.tasks[id]; t != nil && t.state != stateCancelled {
			if t.timer != nil {
				t.timer.Stop()
			}
			t.timer = s.clock.AfterFunc(s.snoozeInterval, func() { s.fire(id) })
			t.state = stateArmed
			s.logger.WithFields(logrus.Fields{
				"reminder_id": id,
				"interval":    s.snoozeInterval,
			}).Debug("Snooze armed")
		}
		s.mu.Unlock()
		return
	}

	if rec.Kind == reminder.KindOneShot {
		// A completed one-shot has no further fires; drop its task.
		s.mu.Lock()
		if t := s.tasks[id]; t != nil && t.state == stateFired {
			delete(s.tasks, id)
		}
		s.mu.Unlock()
	}
}

// emit asks for permission and shows the notification. Missing permission
// suppresses the fire with a warning; scheduling itself stays intact.
func (s *TimerScheduler) emit(ctx context.Context, rec *reminder.Reminder) {
	perm, err := s.notifier.RequestPermission(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("reminder_id", rec.ID).Error("Permission check failed")
		return
	}
	if perm != notifier.PermissionGranted {
		s.logger.WithFields(logrus.Fields{
			"reminder_id": rec.ID,
			"permission":  perm,
		}).Warn("Notification permission not granted, fire suppressed")
		return
	}

	n := notifier.Notification{
		Title:              rec.Persona.DisplayName(),
		Body:               rec.Message,
		Tag:                strconv.FormatInt(rec.ID, 10),
		RequireInteraction: true,
	}
	if err := s.notifier.Show(ctx, n); err != nil {
		s.logger.WithError(err).WithField("reminder_id", rec.ID).Error("Failed to show notification")
		return
	}
	s.logger.WithField("reminder_id", rec.ID).Info("Notification fired")
}

// checkRecurring is the fixed-cadence pass over every recurring task.
func (s *TimerScheduler) checkRecurring(now time.Time) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.tasks))
	for id, t := range s.tasks {
		if t.recurring && t.state != stateCancelled {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.checkRecurringRecord(id, now)
	}
}

// checkRecurringRecord arms today's occurrence for one recurring reminder if
// today's weekday is in its set and the time-of-day is still ahead. The
// armedDay guard keeps this to at most one fire per qualifying day even
// though the check runs every hour.
func (s *TimerScheduler) checkRecurringRecord(id int64, now time.Time) {
	rec, err := s.repo.GetByID(context.Background(), id)
	if err != nil {
		if err == idb.ErrReminderNotFound {
			s.Cancel(id)
			return
		}
		s.logger.WithError(err).WithField("reminder_id", id).Error("Failed to load recurring reminder")
		return
	}
	if !rec.Active || !rec.IsRecurring() {
		return
	}
	if !rec.Weekdays.Contains(now.Weekday()) {
		return
	}

	target := rec.TimeOfDay.On(now)
	if !target.After(now) {
		// Time of day already passed; the tolerance window bounded by the
		// check cadence makes this a skip, not a retroactive fire.
		return
	}

	day := now.Format("2006-01-02")
	s.mu.Lock()
	t := s.tasks[id]
	if t == nil || t.state == stateCancelled || t.armedDay == day {
		s.mu.Unlock()
		return
	}
	t.armedDay = day
	s.mu.Unlock()

	s.armTimer(id, true, target.Sub(now))
	s.logger.WithFields(logrus.Fields{
		"reminder_id": id,
		"target":      target,
	}).Debug("Recurring occurrence armed")
}
