package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	ProfessionalID string `json:"professional_id"`
	PatientID      string `json:"patient_id,omitempty"`
	ServiceID      string `json:"service_id,omitempty"`
	Date           string `json:"date"`       // "2006-01-02"
	StartTime      string `json:"start_time"` // "HH:MM"
	Duration       int    `json:"duration,omitempty"`
	Draft          bool   `json:"draft,omitempty"`
}

type RescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

type AppointmentResponse struct {
	ID                uuid.UUID  `json:"id"`
	ProfessionalID    uuid.UUID  `json:"professional_id"`
	PatientID         *uuid.UUID `json:"patient_id,omitempty"`
	ServiceID         *uuid.UUID `json:"service_id,omitempty"`
	Date              string     `json:"date"`
	StartTime         string     `json:"start_time"`
	EndTime           string     `json:"end_time"`
	Status            string     `json:"status"`
	CancellationToken string     `json:"cancellation_token,omitempty"`
	RescheduledFromID *uuid.UUID `json:"rescheduled_from_id,omitempty"`
}

type SlotResponse struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type JoinWaitlistRequest struct {
	ProfessionalID string  `json:"professional_id"`
	PatientID      string  `json:"patient_id,omitempty"`
	ServiceID      string  `json:"service_id,omitempty"`
	PreferredDate  string  `json:"preferred_date"`
	PreferredStart *string `json:"preferred_start,omitempty"`
	PreferredEnd   *string `json:"preferred_end,omitempty"`
}

type RedeemWaitlistRequest struct {
	PatientID string `json:"patient_id,omitempty"`
}

type WaitlistEntryResponse struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	Token        string     `json:"token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	OfferedDate  string     `json:"offered_date,omitempty"`
	OfferedStart string     `json:"offered_start,omitempty"`
	OfferedEnd   string     `json:"offered_end,omitempty"`
}

type ScheduleWindowRequest struct {
	ID        string `json:"id,omitempty"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Enabled   bool   `json:"enabled"`
}

type TimeOffRequest struct {
	ID        string `json:"id,omitempty"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Kind      string `json:"kind,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Populated for notice-policy refusals so the UI can explain them.
	RequiredHours  float64 `json:"required_hours,omitempty"`
	RemainingHours float64 `json:"remaining_hours,omitempty"`
}
