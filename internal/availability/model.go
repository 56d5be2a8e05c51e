package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Slot is one candidate bookable interval of fixed duration. Occupied
// slots are returned with Available=false so calendars can render them
// greyed out rather than missing.
type Slot struct {
	ProfessionalID uuid.UUID `json:"professional_id"`
	Date           time.Time `json:"date"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Available      bool      `json:"available"`
}

// Window is an enabled recurring open-hours interval for one weekday.
type Window struct {
	StartTime string
	EndTime   string
}

// Blocked is a recurring break or unavailability interval.
type Blocked struct {
	StartTime string
	EndTime   string
}

// Booked is an occupying appointment on a concrete date. Cancelled
// appointments are never returned by a Source.
type Booked struct {
	AppointmentID uuid.UUID
	StartTime     string
	EndTime       string
}

// Source provides the three inputs of the slot computation. The engine
// never writes; schedule and appointment data stay owned by their own
// repositories.
type Source interface {
	Windows(ctx context.Context, professionalID uuid.UUID, weekday int) ([]Window, error)
	TimeOff(ctx context.Context, professionalID uuid.UUID, weekday int) ([]Blocked, error)
	Booked(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Booked, error)
}

// Exclusions carries request-specific suppression used while
// rescheduling: the appointment being moved is ignored in conflict
// checks, and its current slot is hidden from the returned list so it
// does not reappear as a choice.
type Exclusions struct {
	AppointmentID *uuid.UUID

	// Exact-match slot suppression. Applied only when OwnerProfessionalID
	// matches the professional being queried; this is display state, not
	// an availability fact.
	OwnerProfessionalID uuid.UUID
	SlotDate            *time.Time
	SlotTime            string
}

func (e *Exclusions) empty() bool {
	return e == nil || (e.AppointmentID == nil && e.SlotDate == nil && e.SlotTime == "")
}
