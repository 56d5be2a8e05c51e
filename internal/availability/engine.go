package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gobering/scheduling-service/internal/interval"
)

var ErrInvalidDuration = errors.New("service duration must be positive")

// Engine computes bookable slots from weekly windows, time off and
// occupying appointments. It is read-only and safe for concurrent use.
type Engine struct {
	src   Source
	cache Cache
	log   zerolog.Logger
	now   func() time.Time
}

func NewEngine(src Source, cache Cache, log zerolog.Logger) *Engine {
	return &Engine{
		src:   src,
		cache: cache,
		log:   log.With().Str("component", "availability").Logger(),
		now:   time.Now,
	}
}

// ComputeSlots walks every date in [from, to] and expands the
// professional's enabled windows for that weekday into
// serviceDuration-minute slots. A slot is available iff it overlaps no
// time-off entry and no non-cancelled appointment on that date.
//
// Days strictly before today are skipped, but only when they fall in
// the current week; the cutoff is whole-day, never time-of-day.
// A professional with no schedule yields an empty result, not an error.
func (e *Engine) ComputeSlots(ctx context.Context, professionalID uuid.UUID, from, to time.Time, serviceDuration int, excl *Exclusions) ([]Slot, error) {
	if serviceDuration <= 0 {
		return nil, ErrInvalidDuration
	}

	from = truncateDay(from)
	to = truncateDay(to)
	today := truncateDay(e.now())

	var result []Slot

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if day.Before(today) && sameWeek(day, today) {
			continue
		}

		slots, err := e.daySlots(ctx, professionalID, day, serviceDuration, excl)
		if err != nil {
			return nil, err
		}
		result = append(result, slots...)
	}

	return result, nil
}

func (e *Engine) daySlots(ctx context.Context, professionalID uuid.UUID, day time.Time, serviceDuration int, excl *Exclusions) ([]Slot, error) {
	// Exclusions are request-specific display state, so cached entries
	// only serve exclusion-free queries.
	cacheable := excl.empty()
	if cacheable && e.cache != nil {
		if slots, ok := e.cache.GetDay(ctx, professionalID, day, serviceDuration); ok {
			return slots, nil
		}
	}

	weekday := int(day.Weekday())

	windows, err := e.src.Windows(ctx, professionalID, weekday)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}

	timeOff, err := e.src.TimeOff(ctx, professionalID, weekday)
	if err != nil {
		return nil, fmt.Errorf("load time off: %w", err)
	}

	booked, err := e.src.Booked(ctx, professionalID, day)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	var slots []Slot

	for _, w := range windows {
		winStart := interval.Minutes(w.StartTime)
		winEnd := interval.Minutes(w.EndTime)

		// No partial trailing slot: the last increment must end inside
		// the window.
		for s := winStart; s+serviceDuration <= winEnd; s += serviceDuration {
			slotStart, slotEnd := s, s+serviceDuration

			if suppressed(excl, professionalID, day, interval.Clock(slotStart)) {
				continue
			}

			slots = append(slots, Slot{
				ProfessionalID: professionalID,
				Date:           day,
				StartTime:      interval.Clock(slotStart),
				EndTime:        interval.Clock(slotEnd),
				Available:      e.slotOpen(slotStart, slotEnd, timeOff, booked, excl),
			})
		}
	}

	if cacheable && e.cache != nil {
		e.cache.SetDay(ctx, professionalID, day, serviceDuration, slots)
	}

	return slots, nil
}

func (e *Engine) slotOpen(slotStart, slotEnd int, timeOff []Blocked, booked []Booked, excl *Exclusions) bool {
	for _, b := range timeOff {
		if interval.Overlaps(slotStart, slotEnd, interval.Minutes(b.StartTime), interval.Minutes(b.EndTime)) {
			return false
		}
	}
	for _, a := range booked {
		if excl != nil && excl.AppointmentID != nil && a.AppointmentID == *excl.AppointmentID {
			continue
		}
		if interval.Overlaps(slotStart, slotEnd, interval.Minutes(a.StartTime), interval.Minutes(a.EndTime)) {
			return false
		}
	}
	return true
}

// SlotFree reports whether a concrete interval is still bookable: it
// must lie inside an enabled window and overlap neither time off nor a
// non-cancelled appointment. The waitlist dispatcher uses this before
// offering a freed slot.
func (e *Engine) SlotFree(ctx context.Context, professionalID uuid.UUID, date time.Time, startTime, endTime string) (bool, error) {
	date = truncateDay(date)
	weekday := int(date.Weekday())
	start, end := interval.Minutes(startTime), interval.Minutes(endTime)
	if end <= start {
		return false, nil
	}

	windows, err := e.src.Windows(ctx, professionalID, weekday)
	if err != nil {
		return false, fmt.Errorf("load windows: %w", err)
	}

	inWindow := false
	for _, w := range windows {
		if interval.Minutes(w.StartTime) <= start && end <= interval.Minutes(w.EndTime) {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return false, nil
	}

	timeOff, err := e.src.TimeOff(ctx, professionalID, weekday)
	if err != nil {
		return false, fmt.Errorf("load time off: %w", err)
	}
	for _, b := range timeOff {
		if interval.Overlaps(start, end, interval.Minutes(b.StartTime), interval.Minutes(b.EndTime)) {
			return false, nil
		}
	}

	booked, err := e.src.Booked(ctx, professionalID, date)
	if err != nil {
		return false, fmt.Errorf("load appointments: %w", err)
	}
	for _, a := range booked {
		if interval.Overlaps(start, end, interval.Minutes(a.StartTime), interval.Minutes(a.EndTime)) {
			return false, nil
		}
	}

	return true, nil
}

func suppressed(excl *Exclusions, professionalID uuid.UUID, day time.Time, startTime string) bool {
	if excl == nil || excl.SlotDate == nil || excl.SlotTime == "" {
		return false
	}
	if excl.OwnerProfessionalID != professionalID {
		return false
	}
	return truncateDay(*excl.SlotDate).Equal(day) && excl.SlotTime == startTime
}

// truncateDay normalizes to midnight UTC so dates parsed from requests
// and dates derived from the wall clock compare by calendar day.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sameWeek treats Sunday as the first day of the week, matching the
// weekday numbering of the schedule model.
func sameWeek(a, b time.Time) bool {
	return weekStart(a).Equal(weekStart(b))
}

func weekStart(t time.Time) time.Time {
	t = truncateDay(t)
	return t.AddDate(0, 0, -int(t.Weekday()))
}
