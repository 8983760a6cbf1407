// internal/domain/reminder/reminder.go
package reminder

import (
	"fmt"
	"time"
)

// Kind distinguishes the two trigger variants a reminder can carry.
type Kind string

const (
	KindOneShot   Kind = "ONE_SHOT"  // fires once at FireAt
	KindRecurring Kind = "RECURRING" // fires weekly at TimeOfDay on Weekdays
)

// Persona is the character a reminder is delivered as. The set is fixed at
// product level; a reminder's persona never changes after creation.
type Persona string

const (
	PersonaFriend Persona = "FRIEND"
	PersonaAuntie Persona = "AUNTIE"
	PersonaUncle  Persona = "UNCLE"
)

// Personas lists every valid persona, in carousel order.
var Personas = []Persona{PersonaFriend, PersonaAuntie, PersonaUncle}

func (p Persona) Valid() bool {
	for _, known := range Personas {
		if p == known {
			return true
		}
	}
	return false
}

// DisplayName returns the user-facing character name.
func (p Persona) DisplayName() string {
	switch p {
	case PersonaFriend:
		return "親友"
	case PersonaAuntie:
		return "おばちゃん"
	case PersonaUncle:
		return "おじさん"
	default:
		return string(p)
	}
}

// TimeOfDay is a wall-clock time without a date, for recurring triggers.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On anchors the time-of-day to the date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// WeekdaySet is the set of weekdays a recurring reminder fires on.
// Ordinals follow time.Weekday (Sunday = 0).
type WeekdaySet []time.Weekday

func (s WeekdaySet) Contains(d time.Weekday) bool {
	for _, w := range s {
		if w == d {
			return true
		}
	}
	return false
}

func (s WeekdaySet) Valid() bool {
	if len(s) == 0 {
		return false
	}
	for _, w := range s {
		if w < time.Sunday || w > time.Saturday {
			return false
		}
	}
	return true
}

// Reminder is the sole persisted entity: a user message plus its delivery
// trigger. ID is assigned by the record store at creation and never reused.
type Reminder struct {
	ID        int64
	Message   string
	Persona   Persona
	Kind      Kind
	Active    bool
	CreatedAt time.Time

	// One-shot trigger. FireAt is derived once at creation time as
	// CreatedAt + delay and is never recomputed.
	FireAt        time.Time
	SnoozeEnabled bool

	// Recurring trigger.
	TimeOfDay TimeOfDay
	Weekdays  WeekdaySet
}

// IsRecurring reports whether this reminder fires on a weekly cadence.
func (r *Reminder) IsRecurring() bool {
	return r.Kind == KindRecurring
}
