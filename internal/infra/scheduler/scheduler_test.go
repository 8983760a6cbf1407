package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"persona_reminder_bot/internal/domain/notifier"
	"persona_reminder_bot/internal/domain/reminder"
	idb "persona_reminder_bot/internal/infra/database"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mondayMorning is a fixed reference point: Monday 2025-06-02 08:00 UTC.
var mondayMorning = time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu      sync.Mutex
	perm    notifier.Permission
	clk     *clock.Mock
	shown   []notifier.Notification
	shownAt []time.Time
	onShow  func(n notifier.Notification)
}

func (f *fakeNotifier) RequestPermission(context.Context) (notifier.Permission, error) {
	if f.perm == "" {
		return notifier.PermissionGranted, nil
	}
	return f.perm, nil
}

func (f *fakeNotifier) Show(_ context.Context, n notifier.Notification) error {
	f.mu.Lock()
	f.shown = append(f.shown, n)
	f.shownAt = append(f.shownAt, f.clk.Now())
	onShow := f.onShow
	f.mu.Unlock()
	if onShow != nil {
		onShow(n)
	}
	return nil
}

func (f *fakeNotifier) OnClick(func(tag, action string)) {}
func (f *fakeNotifier) OnClose(func(tag string))         {}

func (f *fakeNotifier) shownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

func newTestScheduler(t *testing.T) (*TimerScheduler, *idb.MemoryReminderRepository, *fakeNotifier, *clock.Mock) {
	t.Helper()
	repo := idb.NewMemoryReminderRepository()
	mock := clock.NewMock()
	mock.Set(mondayMorning)
	fn := &fakeNotifier{clk: mock}
	l := logrus.New()
	l.SetOutput(io.Discard)
	s := NewTimerScheduler(repo, fn, mock, l.WithField("component", "test"), 5*time.Minute, "0 * * * *")
	return s, repo, fn, mock
}

func mustCreate(t *testing.T, repo *idb.MemoryReminderRepository, rec *reminder.Reminder) *reminder.Reminder {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func oneShot(mock *clock.Mock, delay time.Duration, snooze bool) *reminder.Reminder {
	return &reminder.Reminder{
		Message:       "伝言です",
		Persona:       reminder.PersonaFriend,
		Kind:          reminder.KindOneShot,
		Active:        true,
		CreatedAt:     mock.Now(),
		FireAt:        mock.Now().Add(delay),
		SnoozeEnabled: snooze,
	}
}

func TestOneShotFiresAtFireTime(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, 10*time.Minute, false))

	require.NoError(t, s.Arm(rec))

	mock.Add(9 * time.Minute)
	assert.Equal(t, 0, fn.shownCount(), "must not fire early")

	mock.Add(time.Minute)
	require.Equal(t, 1, fn.shownCount())
	assert.Equal(t, rec.Persona.DisplayName(), fn.shown[0].Title)
	assert.Equal(t, rec.Message, fn.shown[0].Body)

	mock.Add(time.Hour)
	assert.Equal(t, 1, fn.shownCount(), "one-shot fires exactly once")
}

func TestOneShotInThePastIsSkipped(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, -time.Hour, false))

	require.NoError(t, s.Arm(rec))
	mock.Add(24 * time.Hour)
	assert.Equal(t, 0, fn.shownCount(), "no retroactive fire for an expired one-shot")
}

func TestInactiveAtFireTimeIsSuppressed(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, 10*time.Minute, false))
	require.NoError(t, s.Arm(rec))

	// Deactivate strictly before the pending fire executes. The armed timer
	// stays in place; the fire-time check must win.
	rec.Active = false
	require.NoError(t, repo.Update(context.Background(), rec))

	mock.Add(time.Hour)
	assert.Equal(t, 0, fn.shownCount())
}

func TestCancelPreventsPendingFire(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, 10*time.Minute, false))
	require.NoError(t, s.Arm(rec))

	s.Cancel(rec.ID)
	s.Cancel(rec.ID) // idempotent

	mock.Add(time.Hour)
	assert.Equal(t, 0, fn.shownCount())
}

func TestFireForDeletedRecordIsNoOp(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, 10*time.Minute, false))
	require.NoError(t, s.Arm(rec))

	// Record deleted without Cancel: the pending fire dereferences a vanished
	// id and must drop silently.
	require.NoError(t, repo.Delete(context.Background(), rec.ID))

	mock.Add(time.Hour)
	assert.Equal(t, 0, fn.shownCount())
}

func TestSnoozeRepeatsUntilDeactivated(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, 5*time.Minute, true))
	require.NoError(t, s.Arm(rec))

	mock.Add(5 * time.Minute)
	require.Equal(t, 1, fn.shownCount())

	mock.Add(5 * time.Minute)
	require.Equal(t, 2, fn.shownCount(), "snooze re-fires after the snooze interval")
	assert.Equal(t, fn.shownAt[0].Add(5*time.Minute), fn.shownAt[1])

	mock.Add(5 * time.Minute)
	require.Equal(t, 3, fn.shownCount())

	rec.Active = false
	require.NoError(t, repo.Update(context.Background(), rec))

	mock.Add(time.Hour)
	assert.Equal(t, 3, fn.shownCount(), "no further fires once deactivated")
}

func TestRecurringWeeklySchedule(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, &reminder.Reminder{
		Message:   "ゴミ出しの日",
		Persona:   reminder.PersonaAuntie,
		Kind:      reminder.KindRecurring,
		Active:    true,
		CreatedAt: mock.Now(),
		TimeOfDay: reminder.TimeOfDay{Hour: 9, Minute: 0},
		Weekdays:  reminder.WeekdaySet{time.Monday, time.Wednesday, time.Friday},
	})

	// Monday 08:00. Arm runs an immediate check and schedules today's 09:00.
	require.NoError(t, s.Arm(rec))

	// Walk the clock hour by hour, running the cadence check after each step
	// exactly as the cron job would.
	advanceDay := func() {
		for i := 0; i < 24; i++ {
			mock.Add(time.Hour)
			s.checkRecurring(mock.Now())
		}
	}

	advanceDay() // rest of Monday into Tuesday morning
	require.Equal(t, 1, fn.shownCount(), "exactly one fire on Monday")
	assert.Equal(t, time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC), fn.shownAt[0])

	advanceDay() // Tuesday
	assert.Equal(t, 1, fn.shownCount(), "no fire on Tuesday")

	advanceDay() // Wednesday
	require.Equal(t, 2, fn.shownCount(), "one fire on Wednesday")
	assert.False(t, fn.shownAt[1].Before(time.Date(2025, time.June, 4, 9, 0, 0, 0, time.UTC)))
}

func TestRecurringInactiveIsSkipped(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, &reminder.Reminder{
		Message:   "a",
		Persona:   reminder.PersonaUncle,
		Kind:      reminder.KindRecurring,
		Active:    true,
		CreatedAt: mock.Now(),
		TimeOfDay: reminder.TimeOfDay{Hour: 9},
		Weekdays:  reminder.WeekdaySet{time.Monday},
	})
	require.NoError(t, s.Arm(rec))

	rec.Active = false
	require.NoError(t, repo.Update(context.Background(), rec))

	mock.Add(2 * time.Hour)
	s.checkRecurring(mock.Now())
	assert.Equal(t, 0, fn.shownCount())
}

func TestPermissionDeniedSuppressesFire(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	fn.perm = notifier.PermissionDenied
	rec := mustCreate(t, repo, oneShot(mock, 5*time.Minute, false))
	require.NoError(t, s.Arm(rec))

	mock.Add(time.Hour)
	assert.Equal(t, 0, fn.shownCount())
}

func TestCancelFromWithinFireCallback(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, 5*time.Minute, true))

	// Cancelling the currently-firing id from inside its own fire callback
	// must not deadlock, and must also drop the snooze chain.
	fn.onShow = func(n notifier.Notification) {
		s.Cancel(rec.ID)
	}

	require.NoError(t, s.Arm(rec))
	mock.Add(5 * time.Minute)
	require.Equal(t, 1, fn.shownCount())

	mock.Add(time.Hour)
	assert.Equal(t, 1, fn.shownCount())
}

func TestRehydrateAllSkipsExpiredAndInactive(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)

	expired := mustCreate(t, repo, oneShot(mock, -time.Hour, false))
	pending := mustCreate(t, repo, oneShot(mock, 30*time.Minute, false))
	inactive := mustCreate(t, repo, oneShot(mock, 30*time.Minute, false))
	inactive.Active = false
	require.NoError(t, repo.Update(context.Background(), inactive))

	recs, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	s.RehydrateAll(recs)

	mock.Add(24 * time.Hour)
	require.Equal(t, 1, fn.shownCount())
	assert.Equal(t, pending.Message, fn.shown[0].Body)
	_ = expired
}

func TestStopClearsPendingTimers(t *testing.T) {
	s, repo, fn, mock := newTestScheduler(t)
	rec := mustCreate(t, repo, oneShot(mock, 10*time.Minute, false))
	require.NoError(t, s.Start())
	require.NoError(t, s.Arm(rec))

	s.Stop()
	mock.Add(time.Hour)
	assert.Equal(t, 0, fn.shownCount())
}
