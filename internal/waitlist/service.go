package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/appointment"
	"github.com/gobering/scheduling-service/internal/config"
	"github.com/gobering/scheduling-service/internal/interval"
)

var (
	ErrNotRedeemable         = errors.New("waitlist entry is not awaiting redemption")
	ErrPriorityWindowExpired = errors.New("priority window has expired")
	ErrEntryClosed           = errors.New("waitlist entry already reached a terminal state")
)

// ValidationError rejects a malformed join request before any state
// change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Booker is the normal appointment-creation path. Redeeming a token
// books through it so the slot is revalidated at the persistence
// boundary; a raced-away slot surfaces as a conflict, never a silent
// double booking.
type Booker interface {
	Book(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
}

// FreeChecker confirms a freed interval is still bookable before an
// entry is offered it. The availability engine implements it.
type FreeChecker interface {
	SlotFree(ctx context.Context, professionalID uuid.UUID, date time.Time, startTime, endTime string) (bool, error)
}

type JoinRequest struct {
	ProfessionalID uuid.UUID
	PatientID      *uuid.UUID
	ServiceID      *uuid.UUID
	PreferredDate  time.Time
	PreferredStart *string
	PreferredEnd   *string
}

type Service struct {
	repo     Repository
	booker   Booker
	checker  FreeChecker
	notifier Notifier
	cfg      config.Config
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, booker Booker, checker FreeChecker, notifier Notifier, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		booker:   booker,
		checker:  checker,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "waitlist").Logger(),
		now:      time.Now,
	}
}

// Join creates a pending entry with a fresh token for the one-click
// priority booking link.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*Entry, error) {
	if err := validateJoin(&req); err != nil {
		return nil, err
	}

	entry, err := s.repo.CreateEntry(ctx, Entry{
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		ServiceID:      req.ServiceID,
		PreferredDate:  req.PreferredDate,
		PreferredStart: req.PreferredStart,
		PreferredEnd:   req.PreferredEnd,
		Status:         StatusPending,
		Token:          uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}

	return entry, nil
}

// DispatchFreedSlot offers a freed interval to the oldest eligible
// pending entry. Exactly one entry is notified per freed slot; the next
// is only reached after this one expires or cancels. Notification
// delivery failure is logged and swallowed, the entry stays notified
// and expires on schedule.
func (s *Service) DispatchFreedSlot(ctx context.Context, professionalID uuid.UUID, serviceID *uuid.UUID, date time.Time, startTime, endTime string) error {
	if s.checker != nil {
		free, err := s.checker.SlotFree(ctx, professionalID, date, startTime, endTime)
		if err != nil {
			return fmt.Errorf("check freed slot: %w", err)
		}
		if !free {
			return nil
		}
	}

	entry, err := s.repo.OldestEligiblePending(ctx, professionalID, serviceID, date, startTime, endTime)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil
		}
		return fmt.Errorf("select dispatch target: %w", err)
	}

	notifiedAt := s.now()
	expiresAt := notifiedAt.Add(s.cfg.WaitlistPriority)

	notified, err := s.repo.MarkNotified(ctx, entry.ID, notifiedAt, expiresAt, date, startTime, endTime)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// Lost a race with a cancel; the slot stays free for regular
			// booking.
			return nil
		}
		return fmt.Errorf("mark entry notified: %w", err)
	}

	if err := s.notifier.Notify(ctx, *notified); err != nil {
		s.log.Warn().Err(err).
			Str("entry_id", notified.ID.String()).
			Msg("waitlist notification delivery failed")
	}

	return nil
}

// Redeem books the offered slot for a notified entry. Expiration is
// checked lazily here: a lapsed window expires the entry, cascades the
// offer to the next in line and rejects the redemption.
func (s *Service) Redeem(ctx context.Context, token string, patientID uuid.UUID) (*appointment.Appointment, error) {
	entry, err := s.repo.GetEntryByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if entry.Status != StatusNotified {
		return nil, ErrNotRedeemable
	}

	if entry.ExpiresAt != nil && entry.ExpiresAt.Before(s.now()) {
		s.expireAndCascade(ctx, entry)
		return nil, ErrPriorityWindowExpired
	}

	if entry.OfferedDate == nil || entry.OfferedStart == nil || entry.OfferedEnd == nil {
		return nil, ErrNotRedeemable
	}

	bookFor := entry.PatientID
	if patientID != uuid.Nil {
		bookFor = &patientID
	}

	appt, err := s.booker.Book(ctx, appointment.BookingRequest{
		ProfessionalID: entry.ProfessionalID,
		PatientID:      bookFor,
		ServiceID:      entry.ServiceID,
		Date:           *entry.OfferedDate,
		StartTime:      *entry.OfferedStart,
		Duration:       interval.Minutes(*entry.OfferedEnd) - interval.Minutes(*entry.OfferedStart),
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.UpdateStatus(ctx, entry.ID, StatusNotified, StatusFulfilled); err != nil {
		s.log.Warn().Err(err).
			Str("entry_id", entry.ID.String()).
			Msg("entry booked but not marked fulfilled")
	}

	return appt, nil
}

// Cancel closes an entry from pending or notified. Cancelling a
// notified entry releases its offered slot to the next in line.
func (s *Service) Cancel(ctx context.Context, token string) (*Entry, error) {
	entry, err := s.repo.GetEntryByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if entry.Status != StatusPending && entry.Status != StatusNotified {
		return nil, ErrEntryClosed
	}

	updated, err := s.repo.UpdateStatus(ctx, entry.ID, entry.Status, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel waitlist entry: %w", err)
	}

	if entry.Status == StatusNotified {
		s.cascade(ctx, entry)
	}

	return updated, nil
}

// ExpireLapsed is the worker sweep: every notified entry past its
// window expires, each followed by a cascade dispatch for the slot it
// was holding. Redeem performs the same check lazily, so the sweep and
// the lazy path are interchangeable.
func (s *Service) ExpireLapsed(ctx context.Context) error {
	lapsed, err := s.repo.FindLapsedNotified(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find lapsed entries: %w", err)
	}

	for _, entry := range lapsed {
		s.expireAndCascade(ctx, &entry)
	}

	return nil
}

func (s *Service) expireAndCascade(ctx context.Context, entry *Entry) {
	if _, err := s.repo.UpdateStatus(ctx, entry.ID, StatusNotified, StatusExpired); err != nil {
		if !errors.Is(err, ErrEntryNotFound) {
			s.log.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("expire waitlist entry")
		}
		return
	}

	s.log.Info().
		Str("entry_id", entry.ID.String()).
		Msg("waitlist priority window expired")

	s.cascade(ctx, entry)
}

func (s *Service) cascade(ctx context.Context, entry *Entry) {
	if entry.OfferedDate == nil || entry.OfferedStart == nil || entry.OfferedEnd == nil {
		return
	}
	err := s.DispatchFreedSlot(ctx, entry.ProfessionalID, entry.ServiceID, *entry.OfferedDate, *entry.OfferedStart, *entry.OfferedEnd)
	if err != nil {
		s.log.Warn().Err(err).
			Str("entry_id", entry.ID.String()).
			Msg("cascade dispatch failed")
	}
}

func validateJoin(req *JoinRequest) error {
	if req.ProfessionalID == uuid.Nil {
		return &ValidationError{Field: "professional_id", Reason: "required"}
	}
	if req.PreferredDate.IsZero() {
		return &ValidationError{Field: "preferred_date", Reason: "required"}
	}
	if req.PreferredStart != nil && !interval.Valid(*req.PreferredStart) {
		return &ValidationError{Field: "preferred_start", Reason: "must be HH:MM"}
	}
	if req.PreferredEnd != nil && !interval.Valid(*req.PreferredEnd) {
		return &ValidationError{Field: "preferred_end", Reason: "must be HH:MM"}
	}
	if req.PreferredStart != nil && req.PreferredEnd != nil && *req.PreferredEnd <= *req.PreferredStart {
		return &ValidationError{Field: "preferred_end", Reason: "must be after preferred_start"}
	}
	return nil
}
