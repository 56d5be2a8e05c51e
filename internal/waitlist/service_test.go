package waitlist

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobering/scheduling-service/internal/appointment"
	"github.com/gobering/scheduling-service/internal/config"
	"github.com/gobering/scheduling-service/internal/interval"
)

// In-memory repository mirroring the FIFO selection and conditional
// updates of the Postgres implementation.
type memRepo struct {
	entries map[uuid.UUID]*Entry
	seq     int
}

func newMemRepo() *memRepo {
	return &memRepo{entries: map[uuid.UUID]*Entry{}}
}

func (r *memRepo) CreateEntry(_ context.Context, e Entry) (*Entry, error) {
	e.ID = uuid.New()
	// Strictly increasing creation times keep FIFO order deterministic.
	e.CreatedAt = time.Date(2026, 9, 1, 8, 0, r.seq, 0, time.UTC)
	e.UpdatedAt = e.CreatedAt
	r.seq++
	r.entries[e.ID] = &e
	cp := e
	return &cp, nil
}

func (r *memRepo) GetEntryByToken(_ context.Context, token string) (*Entry, error) {
	for _, e := range r.entries {
		if e.Token == token {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *memRepo) OldestEligiblePending(_ context.Context, professionalID uuid.UUID, serviceID *uuid.UUID, date time.Time, startTime, endTime string) (*Entry, error) {
	var candidates []*Entry
	for _, e := range r.entries {
		if e.Status != StatusPending || e.ProfessionalID != professionalID || !e.PreferredDate.Equal(date) {
			continue
		}
		if e.ServiceID != nil && (serviceID == nil || *e.ServiceID != *serviceID) {
			continue
		}
		prefStart, prefEnd := 0, 24*60
		if e.PreferredStart != nil {
			prefStart = interval.Minutes(*e.PreferredStart)
		}
		if e.PreferredEnd != nil {
			prefEnd = interval.Minutes(*e.PreferredEnd)
		}
		if !interval.Overlaps(prefStart, prefEnd, interval.Minutes(startTime), interval.Minutes(endTime)) {
			continue
		}
		candidates = append(candidates, e)
	}

	if len(candidates) == 0 {
		return nil, ErrEntryNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})
	cp := *candidates[0]
	return &cp, nil
}

func (r *memRepo) MarkNotified(_ context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time, date time.Time, startTime, endTime string) (*Entry, error) {
	e, ok := r.entries[id]
	if !ok || e.Status != StatusPending {
		return nil, ErrEntryNotFound
	}
	e.Status = StatusNotified
	e.NotifiedAt = &notifiedAt
	e.ExpiresAt = &expiresAt
	e.OfferedDate = &date
	e.OfferedStart = &startTime
	e.OfferedEnd = &endTime
	cp := *e
	return &cp, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Entry, error) {
	e, ok := r.entries[id]
	if !ok || e.Status != from {
		return nil, ErrEntryNotFound
	}
	e.Status = to
	cp := *e
	return &cp, nil
}

func (r *memRepo) FindLapsedNotified(_ context.Context, now time.Time) ([]Entry, error) {
	var lapsed []Entry
	for _, e := range r.entries {
		if e.Status == StatusNotified && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			lapsed = append(lapsed, *e)
		}
	}
	return lapsed, nil
}

type recordingBooker struct {
	requests []appointment.BookingRequest
	err      error
}

func (b *recordingBooker) Book(_ context.Context, req appointment.BookingRequest) (*appointment.Appointment, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.requests = append(b.requests, req)
	return &appointment.Appointment{
		ID:             uuid.New(),
		ProfessionalID: req.ProfessionalID,
		PatientID:      req.PatientID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		EndTime:        interval.Clock(interval.Minutes(req.StartTime) + req.Duration),
		Status:         appointment.StatusPending,
	}, nil
}

type stubChecker struct {
	free bool
	err  error
}

func (c stubChecker) SlotFree(context.Context, uuid.UUID, time.Time, string, string) (bool, error) {
	return c.free, c.err
}

type recordingNotifier struct {
	notified []Entry
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, e Entry) error {
	n.notified = append(n.notified, e)
	return n.err
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	booker   *recordingBooker
	notifier *recordingNotifier
	clock    time.Time
	profID   uuid.UUID
	slotDate time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     newMemRepo(),
		booker:   &recordingBooker{},
		notifier: &recordingNotifier{},
		clock:    time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
		profID:   uuid.New(),
		slotDate: time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
	}

	f.svc = NewService(f.repo, f.booker, stubChecker{free: true}, f.notifier, config.Config{
		WaitlistPriority: 24 * time.Hour,
	}, zerolog.Nop())
	f.svc.now = func() time.Time { return f.clock }

	return f
}

func (f *fixture) join(t *testing.T, start, end *string, serviceID *uuid.UUID) *Entry {
	t.Helper()
	entry, err := f.svc.Join(context.Background(), JoinRequest{
		ProfessionalID: f.profID,
		ServiceID:      serviceID,
		PreferredDate:  f.slotDate,
		PreferredStart: start,
		PreferredEnd:   end,
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) entry(t *testing.T, id uuid.UUID) *Entry {
	t.Helper()
	e, ok := f.repo.entries[id]
	require.True(t, ok)
	return e
}

func strPtr(s string) *string { return &s }

func TestJoin(t *testing.T) {
	f := newFixture(t)

	entry := f.join(t, strPtr("09:00"), strPtr("12:00"), nil)
	assert.Equal(t, StatusPending, entry.Status)
	assert.NotEmpty(t, entry.Token)
	assert.Nil(t, entry.NotifiedAt)
}

func TestJoin_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var validationErr *ValidationError

	_, err := f.svc.Join(ctx, JoinRequest{PreferredDate: f.slotDate})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "professional_id", validationErr.Field)

	_, err = f.svc.Join(ctx, JoinRequest{ProfessionalID: f.profID})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "preferred_date", validationErr.Field)

	_, err = f.svc.Join(ctx, JoinRequest{
		ProfessionalID: f.profID,
		PreferredDate:  f.slotDate,
		PreferredStart: strPtr("noon"),
	})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "preferred_start", validationErr.Field)

	_, err = f.svc.Join(ctx, JoinRequest{
		ProfessionalID: f.profID,
		PreferredDate:  f.slotDate,
		PreferredStart: strPtr("12:00"),
		PreferredEnd:   strPtr("10:00"),
	})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "preferred_end", validationErr.Field)
}

func TestDispatch_NotifiesOldestOnly(t *testing.T) {
	f := newFixture(t)
	first := f.join(t, strPtr("09:00"), strPtr("12:00"), nil)
	second := f.join(t, strPtr("09:00"), strPtr("12:00"), nil)

	err := f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00")
	require.NoError(t, err)

	assert.Equal(t, StatusNotified, f.entry(t, first.ID).Status)
	assert.Equal(t, StatusPending, f.entry(t, second.ID).Status, "exactly one entry per freed slot")

	require.Len(t, f.notifier.notified, 1)
	assert.Equal(t, first.ID, f.notifier.notified[0].ID)

	got := f.entry(t, first.ID)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, f.clock.Add(24*time.Hour), *got.ExpiresAt)
	assert.Equal(t, "09:00", *got.OfferedStart)
	assert.Equal(t, "10:00", *got.OfferedEnd)
}

func TestDispatch_PreferredRangeGatesEligibility(t *testing.T) {
	f := newFixture(t)
	morning := f.join(t, strPtr("08:00"), strPtr("10:00"), nil)
	afternoon := f.join(t, strPtr("14:00"), strPtr("17:00"), nil)
	anytime := f.join(t, nil, nil, nil)

	err := f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "15:00", "16:00")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, f.entry(t, morning.ID).Status)
	assert.Equal(t, StatusNotified, f.entry(t, afternoon.ID).Status)
	assert.Equal(t, StatusPending, f.entry(t, anytime.ID).Status, "afternoon joined earlier than anytime")
}

func TestDispatch_NoPreferenceMatchesAnySlot(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, nil, nil, nil)

	err := f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "06:30", "07:00")
	require.NoError(t, err)
	assert.Equal(t, StatusNotified, f.entry(t, entry.ID).Status)
}

func TestDispatch_ServiceMustMatch(t *testing.T) {
	f := newFixture(t)
	wanted := uuid.New()
	other := uuid.New()

	specific := f.join(t, nil, nil, &wanted)
	flexible := f.join(t, nil, nil, nil)

	err := f.svc.DispatchFreedSlot(context.Background(), f.profID, &other, f.slotDate, "09:00", "10:00")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, f.entry(t, specific.ID).Status, "entry wants a different service")
	assert.Equal(t, StatusNotified, f.entry(t, flexible.ID).Status, "no service preference matches anything")
}

func TestDispatch_SlotNoLongerFree(t *testing.T) {
	f := newFixture(t)
	f.svc.checker = stubChecker{free: false}
	entry := f.join(t, nil, nil, nil)

	err := f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, f.entry(t, entry.ID).Status)
	assert.Empty(t, f.notifier.notified)
}

func TestDispatch_EmptyWaitlistIsNoop(t *testing.T) {
	f := newFixture(t)

	err := f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00")
	assert.NoError(t, err)
	assert.Empty(t, f.notifier.notified)
}

func TestDispatch_NotificationFailureKeepsEntryNotified(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	entry := f.join(t, nil, nil, nil)

	err := f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00")
	require.NoError(t, err, "delivery failure is swallowed")

	got := f.entry(t, entry.ID)
	assert.Equal(t, StatusNotified, got.Status)
	require.NotNil(t, got.ExpiresAt, "the window still opens and will expire on schedule")
}

func TestRedeem_BooksOfferedSlot(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, nil, nil, nil)

	require.NoError(t, f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:30"))

	patientID := uuid.New()
	appt, err := f.svc.Redeem(context.Background(), entry.Token, patientID)
	require.NoError(t, err)

	assert.Equal(t, f.profID, appt.ProfessionalID)
	assert.Equal(t, "09:00", appt.StartTime)
	assert.Equal(t, "10:30", appt.EndTime)

	require.Len(t, f.booker.requests, 1)
	assert.Equal(t, 90, f.booker.requests[0].Duration, "duration derived from the offered interval")
	require.NotNil(t, f.booker.requests[0].PatientID)
	assert.Equal(t, patientID, *f.booker.requests[0].PatientID)

	assert.Equal(t, StatusFulfilled, f.entry(t, entry.ID).Status)
}

func TestRedeem_FallsBackToEntryPatient(t *testing.T) {
	f := newFixture(t)
	joinedPatient := uuid.New()
	entry, err := f.svc.Join(context.Background(), JoinRequest{
		ProfessionalID: f.profID,
		PatientID:      &joinedPatient,
		PreferredDate:  f.slotDate,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00"))

	_, err = f.svc.Redeem(context.Background(), entry.Token, uuid.Nil)
	require.NoError(t, err)

	require.Len(t, f.booker.requests, 1)
	require.NotNil(t, f.booker.requests[0].PatientID)
	assert.Equal(t, joinedPatient, *f.booker.requests[0].PatientID)
}

func TestRedeem_AfterWindowExpires(t *testing.T) {
	f := newFixture(t)
	first := f.join(t, nil, nil, nil)
	second := f.join(t, nil, nil, nil)

	require.NoError(t, f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00"))

	// 25 hours later, one past the 24-hour window.
	f.clock = f.clock.Add(25 * time.Hour)

	_, err := f.svc.Redeem(context.Background(), first.Token, uuid.New())
	assert.ErrorIs(t, err, ErrPriorityWindowExpired)

	assert.Equal(t, StatusExpired, f.entry(t, first.ID).Status)
	assert.Equal(t, StatusNotified, f.entry(t, second.ID).Status, "expiry cascades the offer to the next in line")
	assert.Empty(t, f.booker.requests)
}

func TestRedeem_PendingEntryNotRedeemable(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, nil, nil, nil)

	_, err := f.svc.Redeem(context.Background(), entry.Token, uuid.New())
	assert.ErrorIs(t, err, ErrNotRedeemable)
}

func TestRedeem_UnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Redeem(context.Background(), "no-such-token", uuid.New())
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRedeem_BookingConflictPropagates(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, nil, nil, nil)

	require.NoError(t, f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00"))

	f.booker.err = appointment.ErrSlotTaken

	_, err := f.svc.Redeem(context.Background(), entry.Token, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrSlotTaken)
	assert.Equal(t, StatusNotified, f.entry(t, entry.ID).Status, "entry is not consumed by a failed booking")
}

func TestExpireLapsed_SweepCascades(t *testing.T) {
	f := newFixture(t)
	first := f.join(t, nil, nil, nil)
	second := f.join(t, nil, nil, nil)

	require.NoError(t, f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00"))
	require.Equal(t, StatusNotified, f.entry(t, first.ID).Status)

	f.clock = f.clock.Add(25 * time.Hour)

	require.NoError(t, f.svc.ExpireLapsed(context.Background()))

	assert.Equal(t, StatusExpired, f.entry(t, first.ID).Status)
	assert.Equal(t, StatusNotified, f.entry(t, second.ID).Status)

	// Second sweep 25 hours later expires the cascaded offer too.
	f.clock = f.clock.Add(25 * time.Hour)
	require.NoError(t, f.svc.ExpireLapsed(context.Background()))
	assert.Equal(t, StatusExpired, f.entry(t, second.ID).Status)
}

func TestExpireLapsed_WindowStillOpen(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, nil, nil, nil)

	require.NoError(t, f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00"))

	f.clock = f.clock.Add(23 * time.Hour)

	require.NoError(t, f.svc.ExpireLapsed(context.Background()))
	assert.Equal(t, StatusNotified, f.entry(t, entry.ID).Status)
}

func TestCancel_Pending(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, nil, nil, nil)

	cancelled, err := f.svc.Cancel(context.Background(), entry.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancel_NotifiedReleasesSlotToNext(t *testing.T) {
	f := newFixture(t)
	first := f.join(t, nil, nil, nil)
	second := f.join(t, nil, nil, nil)

	require.NoError(t, f.svc.DispatchFreedSlot(context.Background(), f.profID, nil, f.slotDate, "09:00", "10:00"))

	_, err := f.svc.Cancel(context.Background(), first.Token)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, f.entry(t, first.ID).Status)
	assert.Equal(t, StatusNotified, f.entry(t, second.ID).Status)
}

func TestCancel_ClosedEntryRejected(t *testing.T) {
	f := newFixture(t)
	entry := f.join(t, nil, nil, nil)

	_, err := f.svc.Cancel(context.Background(), entry.Token)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), entry.Token)
	assert.ErrorIs(t, err, ErrEntryClosed)
}
