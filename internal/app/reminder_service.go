// internal/app/reminder_service.go
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"persona_reminder_bot/internal/domain/reminder"
	idb "persona_reminder_bot/internal/infra/database" // For ErrReminderNotFound

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Timer bounds for one-shot reminders, in minutes.
const (
	MinTimerMinutes = 1
	MaxTimerMinutes = 30
)

// Scheduler is the scheduling capability the service delegates to. Arm and
// Cancel failures are scheduling failures: logged, never fatal, and never
// rolled back into the store.
type Scheduler interface {
	Arm(rec *reminder.Reminder) error
	Cancel(id int64)
	RehydrateAll(recs []*reminder.Reminder)
}

// SubmitInput is the user's submission, before validation.
type SubmitInput struct {
	Message string
	Persona reminder.Persona
	Kind    reminder.Kind

	// One-shot fields.
	DelayMinutes  int
	SnoozeEnabled bool

	// Recurring fields.
	TimeOfDay reminder.TimeOfDay
	Weekdays  reminder.WeekdaySet
}

// ReminderService orchestrates creation, validation, business limits and the
// record store / scheduler pair. It owns the in-memory mirror of the store;
// the scheduler only ever sees record snapshots.
type ReminderService struct {
	repo            reminder.Repository
	scheduler       Scheduler
	clock           clock.Clock
	logger          *logrus.Entry
	maxActive       int
	replaceOnCreate bool

	mu        sync.Mutex
	reminders []*reminder.Reminder // creation order; mutated only after store success
	latest    *reminder.Reminder   // most recently created active record
}

func NewReminderService(
	repo reminder.Repository,
	scheduler Scheduler,
	clk clock.Clock,
	logger *logrus.Entry,
	maxActive int,
	replaceOnCreate bool,
) *ReminderService {
	return &ReminderService{
		repo:            repo,
		scheduler:       scheduler,
		clock:           clk,
		logger:          logger,
		maxActive:       maxActive,
		replaceOnCreate: replaceOnCreate,
	}
}

// Submit validates the input, enforces the active-reminder policy, persists
// the record and arms it. A record whose Arm call fails stays persisted and
// active; the user retries by toggling it off and on.
func (s *ReminderService) Submit(ctx context.Context, input SubmitInput) (*reminder.Reminder, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.replaceOnCreate {
		if err := s.clearAllLocked(ctx); err != nil {
			return nil, err
		}
	} else if s.countActiveLocked() >= s.maxActive {
		return nil, ErrReminderLimitReached
	}

	now := s.clock.Now()
	rec := &reminder.Reminder{
		Message:   input.Message,
		Persona:   input.Persona,
		Kind:      input.Kind,
		Active:    true,
		CreatedAt: now,
	}
	switch input.Kind {
	case reminder.KindOneShot:
		rec.FireAt = now.Add(time.Duration(input.DelayMinutes) * time.Minute)
		rec.SnoozeEnabled = input.SnoozeEnabled
	case reminder.KindRecurring:
		rec.TimeOfDay = input.TimeOfDay
		rec.Weekdays = append(reminder.WeekdaySet(nil), input.Weekdays...)
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.WithError(err).Error("Failed to persist new reminder")
		return nil, &StorageError{Op: "create", Err: err}
	}

	s.reminders = append(s.reminders, rec)
	s.refreshLatestLocked()

	if err := s.scheduler.Arm(snapshot(rec)); err != nil {
		// Scheduling failure is non-fatal: the record stays persisted and
		// visible for manual retry.
		s.logger.WithError(err).WithField("reminder_id", rec.ID).Warn("Failed to arm reminder")
	}

	s.logger.WithFields(logrus.Fields{
		"reminder_id": rec.ID,
		"kind":        rec.Kind,
		"persona":     rec.Persona,
	}).Info("Reminder created")
	return snapshot(rec), nil
}

// Toggle flips the active flag and persists it. A pending one-shot timer is
// left armed; the fire-time active check suppresses the fire. A recurring
// reminder switched back on is re-armed, since its check loop dies with the
// process and toggling may happen long after rehydration.
func (s *ReminderService) Toggle(ctx context.Context, id int64) (*reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.findLocked(id)
	if rec == nil {
		return nil, idb.ErrReminderNotFound
	}

	updated := *rec
	updated.Active = !rec.Active
	if err := s.repo.Update(ctx, &updated); err != nil {
		s.logger.WithError(err).WithField("reminder_id", id).Error("Failed to persist toggled reminder")
		return nil, &StorageError{Op: "update", Err: err}
	}

	rec.Active = updated.Active
	s.refreshLatestLocked()

	if rec.Active && rec.IsRecurring() {
		if err := s.scheduler.Arm(snapshot(rec)); err != nil {
			s.logger.WithError(err).WithField("reminder_id", id).Warn("Failed to re-arm recurring reminder")
		}
	}

	s.logger.WithFields(logrus.Fields{"reminder_id": id, "active": rec.Active}).Info("Reminder toggled")
	return snapshot(rec), nil
}

// Remove cancels any pending timer, deletes the record and drops it from the
// mirror. Cancel runs before Delete so that no fire can dereference an id
// that has already vanished. Removing an absent id is a no-op.
func (s *ReminderService) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Cancel(id)

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.WithError(err).WithField("reminder_id", id).Error("Failed to delete reminder")
		return &StorageError{Op: "delete", Err: err}
	}

	for i, rec := range s.reminders {
		if rec.ID == id {
			s.reminders = append(s.reminders[:i], s.reminders[i+1:]...)
			break
		}
	}
	s.refreshLatestLocked()

	s.logger.WithField("reminder_id", id).Info("Reminder removed")
	return nil
}

// Rehydrate loads all persisted records into the mirror and re-arms the
// active ones. Called once at process start; all delays are recomputed
// fresh, no persisted next-fire time is trusted.
func (s *ReminderService) Rehydrate(ctx context.Context) error {
	recs, err := s.repo.ListAll(ctx)
	if err != nil {
		return &StorageError{Op: "list", Err: err}
	}

	s.mu.Lock()
	s.reminders = recs
	s.refreshLatestLocked()
	snapshots := make([]*reminder.Reminder, len(recs))
	for i, rec := range recs {
		snapshots[i] = snapshot(rec)
	}
	s.mu.Unlock()

	s.scheduler.RehydrateAll(snapshots)
	s.logger.WithField("count", len(recs)).Info("Reminders rehydrated")
	return nil
}

// List returns the reminders in creation order.
func (s *ReminderService) List() []*reminder.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*reminder.Reminder, len(s.reminders))
	for i, rec := range s.reminders {
		out[i] = snapshot(rec)
	}
	return out
}

// LatestActiveMessage returns the most recently created record that is still
// active, or false when there is none.
func (s *ReminderService) LatestActiveMessage() (*reminder.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return nil, false
	}
	return snapshot(s.latest), true
}

func validateInput(input SubmitInput) error {
	if input.Message == "" {
		return ErrEmptyMessage
	}
	if !input.Persona.Valid() {
		return ErrUnknownPersona
	}
	switch input.Kind {
	case reminder.KindOneShot:
		if input.DelayMinutes < MinTimerMinutes || input.DelayMinutes > MaxTimerMinutes {
			return ErrMinutesOutOfRange
		}
	case reminder.KindRecurring:
		if !input.TimeOfDay.Valid() {
			return ErrBadTimeOfDay
		}
		if !input.Weekdays.Valid() {
			return ErrNoWeekdays
		}
	default:
		return NewValidationError(fmt.Sprintf("unknown reminder kind %q", input.Kind))
	}
	return nil
}

// clearAllLocked implements the replace-on-create variant: every existing
// reminder is cancelled and the store emptied before the new one is created.
func (s *ReminderService) clearAllLocked(ctx context.Context) error {
	for _, rec := range s.reminders {
		s.scheduler.Cancel(rec.ID)
	}
	if err := s.repo.DeleteAll(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to clear existing reminders")
		return &StorageError{Op: "deleteAll", Err: err}
	}
	s.reminders = s.reminders[:0]
	s.refreshLatestLocked()
	return nil
}

func (s *ReminderService) countActiveLocked() int {
	n := 0
	for _, rec := range s.reminders {
		if rec.Active {
			n++
		}
	}
	return n
}

func (s *ReminderService) findLocked(id int64) *reminder.Reminder {
	for _, rec := range s.reminders {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// refreshLatestLocked recomputes the "latest active message" view. The
// mirror is kept in creation order, so the last active entry wins.
func (s *ReminderService) refreshLatestLocked() {
	s.latest = nil
	for _, rec := range s.reminders {
		if rec.Active {
			s.latest = rec
		}
	}
}

func snapshot(rec *reminder.Reminder) *reminder.Reminder {
	out := *rec
	if rec.Weekdays != nil {
		out.Weekdays = append(reminder.WeekdaySet(nil), rec.Weekdays...)
	}
	return &out
}
