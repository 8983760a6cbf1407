// internal/infra/database/memory_reminder_repository.go
package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"persona_reminder_bot/internal/domain/reminder"
)

// MemoryReminderRepository is an in-process implementation of
// reminder.Repository. It backs tests and local development without a
// database. IDs are monotonically increasing and never reused, matching the
// durable store's contract.
type MemoryReminderRepository struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]reminder.Reminder
}

func NewMemoryReminderRepository() *MemoryReminderRepository {
	return &MemoryReminderRepository{
		nextID: 1,
		items:  make(map[int64]reminder.Reminder),
	}
}

func (r *MemoryReminderRepository) Create(_ context.Context, rec *reminder.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.ID = r.nextID
	r.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	r.items[rec.ID] = clone(rec)
	return nil
}

func (r *MemoryReminderRepository) GetByID(_ context.Context, id int64) (*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[id]
	if !ok {
		return nil, ErrReminderNotFound
	}
	out := clone(&rec)
	return &out, nil
}

func (r *MemoryReminderRepository) ListAll(_ context.Context) ([]*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*reminder.Reminder, 0, len(r.items))
	for _, rec := range r.items {
		c := clone(&rec)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryReminderRepository) Update(_ context.Context, rec *reminder.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[rec.ID]; !ok {
		return ErrReminderNotFound
	}
	r.items[rec.ID] = clone(rec)
	return nil
}

func (r *MemoryReminderRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
	return nil
}

func (r *MemoryReminderRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make(map[int64]reminder.Reminder)
	return nil
}

// clone copies the record so callers only ever see snapshots, never the
// stored value itself.
func clone(rec *reminder.Reminder) reminder.Reminder {
	out := *rec
	if rec.Weekdays != nil {
		out.Weekdays = append(reminder.WeekdaySet(nil), rec.Weekdays...)
	}
	return out
}
