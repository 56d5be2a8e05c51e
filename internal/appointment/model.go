package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of appointment states. Only cancelled
// appointments free their interval; every other status occupies it.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

type Professional struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	DefaultDuration int // minutes, used when a booking names no service
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID                uuid.UUID
	ProfessionalID    uuid.UUID
	PatientID         *uuid.UUID
	ServiceID         *uuid.UUID
	Date              time.Time // calendar day, midnight UTC
	StartTime         string    // "HH:MM"
	EndTime           string
	Status            Status
	CancellationToken string
	RescheduledFromID *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
