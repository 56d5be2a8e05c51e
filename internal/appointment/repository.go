package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")

	// ErrSlotTaken is detected at the persistence boundary: the
	// conditional insert found an overlapping non-cancelled appointment.
	ErrSlotTaken = errors.New("slot already occupied")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByToken(ctx context.Context, token string) (*Appointment, error)
	ListByProfessionalAndDate(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error)

	// CreateIfSlotFree inserts only when no non-cancelled appointment
	// overlaps the interval, excluding excludeID (the appointment being
	// rescheduled). Returns ErrSlotTaken otherwise.
	CreateIfSlotFree(ctx context.Context, a Appointment, excludeID *uuid.UUID) (*Appointment, error)

	// UpdateStatus is a compare-and-swap on status; ErrAppointmentNotFound
	// when the row is gone or no longer in the expected state.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
