package waitlist

import (
	"time"

	"github.com/google/uuid"
)

// Status transitions are one-directional:
// pending -> notified -> fulfilled | expired, and pending/notified ->
// cancelled by explicit action. fulfilled, expired and cancelled are
// terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusNotified  Status = "notified"
	StatusFulfilled Status = "fulfilled"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Entry is one client's request to be told when a slot frees up.
// Preferred times are optional; nil means any time that day. The
// Offered fields hold the concrete slot extended during the priority
// window.
type Entry struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	PatientID      *uuid.UUID
	ServiceID      *uuid.UUID
	PreferredDate  time.Time
	PreferredStart *string
	PreferredEnd   *string
	Status         Status
	Token          string
	NotifiedAt     *time.Time
	ExpiresAt      *time.Time
	OfferedDate    *time.Time
	OfferedStart   *string
	OfferedEnd     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
