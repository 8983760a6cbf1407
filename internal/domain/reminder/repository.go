// internal/domain/reminder/repository.go
package reminder

import (
	"context"
)

// Repository defines the operations for persisting and retrieving Reminder
// records. Implementations must assign ID on Create and keep ListAll order
// stable within a session (creation order).
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id int64) (*Reminder, error)
	ListAll(ctx context.Context) ([]*Reminder, error)
	// Update fully replaces the stored record. Fails with ErrReminderNotFound
	// if the id is absent.
	Update(ctx context.Context, r *Reminder) error
	// Delete is idempotent: deleting an absent id is not an error.
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
}
