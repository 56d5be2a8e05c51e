package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/config"
	"github.com/gobering/scheduling-service/internal/interval"
	redisclient "github.com/gobering/scheduling-service/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

var (
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ValidationError rejects malformed input before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NoticePolicyError reports a cancellation attempted inside the
// minimum-notice window, with the hours the UI needs to explain the
// refusal.
type NoticePolicyError struct {
	Required  time.Duration
	Remaining time.Duration
}

func (e *NoticePolicyError) Error() string {
	return fmt.Sprintf("cancellation requires %.0fh notice, only %.1fh remain", e.Required.Hours(), e.Remaining.Hours())
}

// Dispatcher is the waitlist hook run after an interval is freed.
// Dispatch is a best-effort side effect; its failure never rolls back
// the cancellation that triggered it.
type Dispatcher interface {
	DispatchFreedSlot(ctx context.Context, professionalID uuid.UUID, serviceID *uuid.UUID, date time.Time, startTime, endTime string) error
}

// CacheInvalidator drops cached slots for a professional after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, professionalID uuid.UUID)
}

type BookingRequest struct {
	ProfessionalID    uuid.UUID
	PatientID         *uuid.UUID
	ServiceID         *uuid.UUID
	Date              time.Time
	StartTime         string
	Duration          int // minutes; 0 means the professional's default
	Draft             bool
	RescheduledFromID *uuid.UUID
}

type Service struct {
	repo       Repository
	locker     redisclient.Locker
	cache      CacheInvalidator
	dispatcher Dispatcher
	cfg        config.Config
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cache CacheInvalidator, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cache:  cache,
		cfg:    cfg,
		log:    log.With().Str("component", "appointment").Logger(),
		now:    time.Now,
	}
}

// SetDispatcher wires the waitlist after both services exist; the
// waitlist books through this service, so construction order forces a
// late bind.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Book reserves a concrete slot. The per-slot Redis lock serializes
// racing requests and the conditional insert inside it is the final
// word on conflicts, so a lost race surfaces as ErrSlotTaken rather
// than a double booking.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	prof, err := s.repo.GetProfessionalByID(ctx, req.ProfessionalID)
	if err != nil {
		if errors.Is(err, ErrProfessionalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load professional: %w", err)
	}

	if req.PatientID != nil {
		if _, err := s.repo.GetPatientByID(ctx, *req.PatientID); err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}

	duration := req.Duration
	if duration == 0 {
		duration = prof.DefaultDuration
	}
	if duration <= 0 {
		return nil, &ValidationError{Field: "duration", Reason: "must be positive"}
	}

	status := StatusPending
	if req.Draft {
		status = StatusDraft
	}

	start := interval.Minutes(req.StartTime)
	appt := Appointment{
		ProfessionalID:    req.ProfessionalID,
		PatientID:         req.PatientID,
		ServiceID:         req.ServiceID,
		Date:              req.Date,
		StartTime:         req.StartTime,
		EndTime:           interval.Clock(start + duration),
		Status:            status,
		CancellationToken: uuid.NewString(),
		RescheduledFromID: req.RescheduledFromID,
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, req.ProfessionalID, req.Date, req.StartTime, func(lockCtx context.Context) error {
		a, err := s.repo.CreateIfSlotFree(lockCtx, appt, req.RescheduledFromID)
		if err != nil {
			return err
		}
		created = a

		s.logEvent(lockCtx, a.ID, EventAppointmentBooked, map[string]any{
			"professional_id": req.ProfessionalID.String(),
			"date":            req.Date.Format("2006-01-02"),
			"start_time":      req.StartTime,
			"end_time":        a.EndTime,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, created.ProfessionalID)
	}

	return created, nil
}

// Confirm moves a draft or pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status != StatusDraft && appt.Status != StatusPending {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})

	return updated, nil
}

// Complete marks a confirmed appointment as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})

	return updated, nil
}

// Cancel frees the appointment's interval and hands it to the waitlist
// dispatcher. The minimum-notice policy applies to booked appointments;
// drafts cancel freely.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return s.cancel(ctx, appt)
}

// CancelByToken resolves the emailed cancellation link.
func (s *Service) CancelByToken(ctx context.Context, token string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return s.cancel(ctx, appt)
}

func (s *Service) cancel(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if appt.Status == StatusCancelled || appt.Status == StatusCompleted {
		return nil, ErrInvalidStatusTransition
	}

	if appt.Status != StatusDraft {
		startAt := appt.Date.Add(time.Duration(interval.Minutes(appt.StartTime)) * time.Minute)
		remaining := startAt.Sub(s.now())
		if remaining < s.cfg.CancelMinNotice {
			return nil, &NoticePolicyError{Required: s.cfg.CancelMinNotice, Remaining: remaining}
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"freed_date":  updated.Date.Format("2006-01-02"),
		"freed_start": updated.StartTime,
		"freed_end":   updated.EndTime,
	})

	if s.cache != nil {
		s.cache.Invalidate(ctx, updated.ProfessionalID)
	}

	s.dispatchFreed(ctx, updated)

	return updated, nil
}

// Reschedule books the new slot first, ignoring the original in the
// conflict check, then cancels the original. The notice policy does not
// apply; the patient keeps an appointment throughout.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStartTime string) (*Appointment, error) {
	orig, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if orig.Status != StatusPending && orig.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	duration := interval.Minutes(orig.EndTime) - interval.Minutes(orig.StartTime)

	created, err := s.Book(ctx, BookingRequest{
		ProfessionalID:    orig.ProfessionalID,
		PatientID:         orig.PatientID,
		ServiceID:         orig.ServiceID,
		Date:              newDate,
		StartTime:         newStartTime,
		Duration:          duration,
		RescheduledFromID: &orig.ID,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.UpdateStatus(ctx, orig.ID, orig.Status, StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel original after reschedule: %w", err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentRescheduled, map[string]any{
		"rescheduled_from": orig.ID.String(),
	})

	if s.cache != nil {
		s.cache.Invalidate(ctx, orig.ProfessionalID)
	}

	s.dispatchFreed(ctx, &Appointment{
		ProfessionalID: orig.ProfessionalID,
		ServiceID:      orig.ServiceID,
		Date:           orig.Date,
		StartTime:      orig.StartTime,
		EndTime:        orig.EndTime,
	})

	return created, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) dispatchFreed(ctx context.Context, appt *Appointment) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.DispatchFreedSlot(ctx, appt.ProfessionalID, appt.ServiceID, appt.Date, appt.StartTime, appt.EndTime)
	if err != nil {
		s.log.Warn().Err(err).
			Str("professional_id", appt.ProfessionalID.String()).
			Str("date", appt.Date.Format("2006-01-02")).
			Str("start_time", appt.StartTime).
			Msg("waitlist dispatch failed")
	}
}

func (s *Service) validate(req *BookingRequest) error {
	if req.ProfessionalID == uuid.Nil {
		return &ValidationError{Field: "professional_id", Reason: "required"}
	}
	if req.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "required"}
	}
	if !interval.Valid(req.StartTime) {
		return &ValidationError{Field: "start_time", Reason: "must be HH:MM"}
	}
	if req.Duration < 0 {
		return &ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Str("appointment_id", appointmentID.String()).Msg("insert event log")
	}
}
