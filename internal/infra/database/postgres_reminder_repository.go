// internal/infra/database/postgres_reminder_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"persona_reminder_bot/internal/domain/reminder"

	"github.com/lib/pq" // For pq.Int64Array and driver registration
)

// ErrReminderNotFound is returned when a reminder id is absent from the store.
var ErrReminderNotFound = fmt.Errorf("reminder not found")

type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

func (r *PostgresReminderRepository) Create(ctx context.Context, rec *reminder.Reminder) error {
	query := `INSERT INTO reminders (message, persona, kind, active, created_at, fire_at, snooze_enabled, fire_hour, fire_minute, weekdays)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		rec.Message, rec.Persona, rec.Kind, rec.Active, rec.CreatedAt,
		nullTime(rec.FireAt), rec.SnoozeEnabled,
		nullHour(rec), nullMinute(rec), weekdayArray(rec.Weekdays),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("error creating reminder: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) GetByID(ctx context.Context, id int64) (*reminder.Reminder, error) {
	query := `SELECT id, message, persona, kind, active, created_at, fire_at, snooze_enabled, fire_hour, fire_minute, weekdays
               FROM reminders WHERE id = $1`
	rec, err := scanReminder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReminderNotFound
		}
		return nil, fmt.Errorf("error getting reminder by ID: %w", err)
	}
	return rec, nil
}

func (r *PostgresReminderRepository) ListAll(ctx context.Context) ([]*reminder.Reminder, error) {
	// Creation order keeps the list stable within a session.
	query := `SELECT id, message, persona, kind, active, created_at, fire_at, snooze_enabled, fire_hour, fire_minute, weekdays
               FROM reminders ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying reminders: %w", err)
	}
	defer rows.Close()

	reminders := make([]*reminder.Reminder, 0)
	for rows.Next() {
		rec, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reminder row: %w", err)
		}
		reminders = append(reminders, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder rows: %w", err)
	}
	return reminders, nil
}

func (r *PostgresReminderRepository) Update(ctx context.Context, rec *reminder.Reminder) error {
	query := `UPDATE reminders
               SET message = $1, persona = $2, kind = $3, active = $4, fire_at = $5, snooze_enabled = $6, fire_hour = $7, fire_minute = $8, weekdays = $9
               WHERE id = $10
               RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		rec.Message, rec.Persona, rec.Kind, rec.Active,
		nullTime(rec.FireAt), rec.SnoozeEnabled,
		nullHour(rec), nullMinute(rec), weekdayArray(rec.Weekdays),
		rec.ID,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrReminderNotFound
		}
		return fmt.Errorf("error updating reminder: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) Delete(ctx context.Context, id int64) error {
	// Idempotent: deleting an absent id is not an error.
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting reminder: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminders`)
	if err != nil {
		return fmt.Errorf("error deleting all reminders: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	rec := &reminder.Reminder{}
	var fireAt sql.NullTime
	var hour, minute sql.NullInt64
	var weekdays pq.Int64Array
	if err := row.Scan(
		&rec.ID, &rec.Message, &rec.Persona, &rec.Kind, &rec.Active, &rec.CreatedAt,
		&fireAt, &rec.SnoozeEnabled, &hour, &minute, &weekdays,
	); err != nil {
		return nil, err
	}
	if fireAt.Valid {
		rec.FireAt = fireAt.Time
	}
	if hour.Valid {
		rec.TimeOfDay.Hour = int(hour.Int64)
	}
	if minute.Valid {
		rec.TimeOfDay.Minute = int(minute.Int64)
	}
	if len(weekdays) > 0 {
		rec.Weekdays = make(reminder.WeekdaySet, len(weekdays))
		for i, w := range weekdays {
			rec.Weekdays[i] = time.Weekday(w)
		}
	}
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullHour(rec *reminder.Reminder) sql.NullInt64 {
	if !rec.IsRecurring() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(rec.TimeOfDay.Hour), Valid: true}
}

func nullMinute(rec *reminder.Reminder) sql.NullInt64 {
	if !rec.IsRecurring() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(rec.TimeOfDay.Minute), Valid: true}
}

func weekdayArray(set reminder.WeekdaySet) pq.Int64Array {
	if len(set) == 0 {
		return nil
	}
	arr := make(pq.Int64Array, len(set))
	for i, w := range set {
		arr[i] = int64(w)
	}
	return arr
}
