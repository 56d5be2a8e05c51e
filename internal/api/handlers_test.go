package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobering/scheduling-service/internal/appointment"
	"github.com/gobering/scheduling-service/internal/availability"
	"github.com/gobering/scheduling-service/internal/config"
	"github.com/gobering/scheduling-service/internal/waitlist"
)

// Stub repositories with overridable hooks; unset hooks answer
// not-found so each test only wires the calls it cares about.

type stubApptRepo struct {
	getProfessional func(uuid.UUID) (*appointment.Professional, error)
	getAppointment  func(uuid.UUID) (*appointment.Appointment, error)
	getByToken      func(string) (*appointment.Appointment, error)
	create          func(appointment.Appointment) (*appointment.Appointment, error)
	updateStatus    func(uuid.UUID, appointment.Status, appointment.Status) (*appointment.Appointment, error)
}

func (r *stubApptRepo) GetProfessionalByID(_ context.Context, id uuid.UUID) (*appointment.Professional, error) {
	if r.getProfessional != nil {
		return r.getProfessional(id)
	}
	return nil, appointment.ErrProfessionalNotFound
}

func (r *stubApptRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	return &appointment.Patient{ID: id}, nil
}

func (r *stubApptRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if r.getAppointment != nil {
		return r.getAppointment(id)
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *stubApptRepo) GetAppointmentByToken(_ context.Context, token string) (*appointment.Appointment, error) {
	if r.getByToken != nil {
		return r.getByToken(token)
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *stubApptRepo) ListByProfessionalAndDate(context.Context, uuid.UUID, time.Time) ([]appointment.Appointment, error) {
	return nil, nil
}

func (r *stubApptRepo) CreateIfSlotFree(_ context.Context, a appointment.Appointment, _ *uuid.UUID) (*appointment.Appointment, error) {
	if r.create != nil {
		return r.create(a)
	}
	return nil, appointment.ErrSlotTaken
}

func (r *stubApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	if r.updateStatus != nil {
		return r.updateStatus(id, from, to)
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (r *stubApptRepo) InsertEvent(context.Context, appointment.EventLog) error { return nil }

type stubWaitlistRepo struct {
	getByToken func(string) (*waitlist.Entry, error)
}

func (r *stubWaitlistRepo) CreateEntry(_ context.Context, e waitlist.Entry) (*waitlist.Entry, error) {
	e.ID = uuid.New()
	return &e, nil
}

func (r *stubWaitlistRepo) GetEntryByToken(_ context.Context, token string) (*waitlist.Entry, error) {
	if r.getByToken != nil {
		return r.getByToken(token)
	}
	return nil, waitlist.ErrEntryNotFound
}

func (r *stubWaitlistRepo) OldestEligiblePending(context.Context, uuid.UUID, *uuid.UUID, time.Time, string, string) (*waitlist.Entry, error) {
	return nil, waitlist.ErrEntryNotFound
}

func (r *stubWaitlistRepo) MarkNotified(context.Context, uuid.UUID, time.Time, time.Time, time.Time, string, string) (*waitlist.Entry, error) {
	return nil, waitlist.ErrEntryNotFound
}

func (r *stubWaitlistRepo) UpdateStatus(context.Context, uuid.UUID, waitlist.Status, waitlist.Status) (*waitlist.Entry, error) {
	return nil, waitlist.ErrEntryNotFound
}

func (r *stubWaitlistRepo) FindLapsedNotified(context.Context, time.Time) ([]waitlist.Entry, error) {
	return nil, nil
}

type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, _ time.Time, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type stubSource struct {
	windows []availability.Window
}

func (s *stubSource) Windows(context.Context, uuid.UUID, int) ([]availability.Window, error) {
	return s.windows, nil
}

func (s *stubSource) TimeOff(context.Context, uuid.UUID, int) ([]availability.Blocked, error) {
	return nil, nil
}

func (s *stubSource) Booked(context.Context, uuid.UUID, time.Time) ([]availability.Booked, error) {
	return nil, nil
}

func newTestRouter(apptRepo *stubApptRepo, wlRepo *stubWaitlistRepo) http.Handler {
	cfg := config.Config{
		CancelMinNotice:  24 * time.Hour,
		WaitlistPriority: 24 * time.Hour,
	}
	log := zerolog.Nop()

	engine := availability.NewEngine(&stubSource{
		windows: []availability.Window{{StartTime: "09:00", EndTime: "12:00"}},
	}, nil, log)

	apptSvc := appointment.NewService(apptRepo, passLocker{}, nil, cfg, log)
	wlSvc := waitlist.NewService(wlRepo, apptSvc, engine, waitlist.NewLogNotifier(log), cfg, log)

	return NewRouter(RouterConfig{
		Appointments: apptSvc,
		Waitlist:     wlSvc,
		Availability: engine,
		Logger:       log,
		Env:          "test",
		Version:      "test",
	})
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var errResp ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &errResp)
	return rec, errResp
}

func TestListSlots(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})
	profID := uuid.New()

	rec, _ := doRequest(t, router, http.MethodGet,
		"/professionals/"+profID.String()+"/slots?from=2027-06-07&duration=60", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var slots []SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	require.Len(t, slots, 3)
	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.True(t, slots[0].Available)
}

func TestListSlots_BadInput(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})
	profID := uuid.New()

	rec, errResp := doRequest(t, router, http.MethodGet,
		"/professionals/not-a-uuid/slots?from=2027-06-07&duration=60", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_professional_id", errResp.Error)

	rec, errResp = doRequest(t, router, http.MethodGet,
		"/professionals/"+profID.String()+"/slots?from=tomorrow&duration=60", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_from", errResp.Error)

	rec, errResp = doRequest(t, router, http.MethodGet,
		"/professionals/"+profID.String()+"/slots?from=2027-06-07", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_duration", errResp.Error)
}

func TestBookAppointment_Success(t *testing.T) {
	profID := uuid.New()
	repo := &stubApptRepo{
		getProfessional: func(uuid.UUID) (*appointment.Professional, error) {
			return &appointment.Professional{ID: profID, DefaultDuration: 30}, nil
		},
		create: func(a appointment.Appointment) (*appointment.Appointment, error) {
			a.ID = uuid.New()
			return &a, nil
		},
	}
	router := newTestRouter(repo, &stubWaitlistRepo{})

	rec, _ := doRequest(t, router, http.MethodPost, "/appointments",
		`{"professional_id":"`+profID.String()+`","date":"2027-06-07","start_time":"09:00","duration":60}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "10:00", resp.EndTime)
	assert.NotEmpty(t, resp.CancellationToken)
}

func TestBookAppointment_BadRequests(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})

	rec, errResp := doRequest(t, router, http.MethodPost, "/appointments", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", errResp.Error)

	rec, errResp = doRequest(t, router, http.MethodPost, "/appointments",
		`{"professional_id":"nope","date":"2027-06-07","start_time":"09:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_professional_id", errResp.Error)

	rec, errResp = doRequest(t, router, http.MethodPost, "/appointments",
		`{"professional_id":"`+uuid.NewString()+`","date":"June 7th","start_time":"09:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date", errResp.Error)
}

func TestBookAppointment_SlotTaken(t *testing.T) {
	profID := uuid.New()
	repo := &stubApptRepo{
		getProfessional: func(uuid.UUID) (*appointment.Professional, error) {
			return &appointment.Professional{ID: profID, DefaultDuration: 30}, nil
		},
		// create hook unset: the conditional insert reports the conflict
	}
	router := newTestRouter(repo, &stubWaitlistRepo{})

	rec, errResp := doRequest(t, router, http.MethodPost, "/appointments",
		`{"professional_id":"`+profID.String()+`","date":"2027-06-07","start_time":"09:00","duration":60}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", errResp.Error)
}

func TestBookAppointment_UnknownProfessional(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})

	rec, errResp := doRequest(t, router, http.MethodPost, "/appointments",
		`{"professional_id":"`+uuid.NewString()+`","date":"2027-06-07","start_time":"09:00","duration":60}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "professional_not_found", errResp.Error)
}

func TestGetAppointment_NotFound(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})

	rec, errResp := doRequest(t, router, http.MethodGet, "/appointments/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", errResp.Error)

	rec, errResp = doRequest(t, router, http.MethodGet, "/appointments/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_appointment_id", errResp.Error)
}

func TestCancelAppointment_NoticePolicy(t *testing.T) {
	apptID := uuid.New()
	repo := &stubApptRepo{
		getAppointment: func(uuid.UUID) (*appointment.Appointment, error) {
			// Starts 12 hours from now, inside the 24-hour notice window.
			start := time.Now().UTC().Add(12 * time.Hour)
			day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
			return &appointment.Appointment{
				ID:             apptID,
				ProfessionalID: uuid.New(),
				Date:           day,
				StartTime:      start.Format("15:04"),
				EndTime:        "23:59",
				Status:         appointment.StatusConfirmed,
			}, nil
		},
	}
	router := newTestRouter(repo, &stubWaitlistRepo{})

	rec, errResp := doRequest(t, router, http.MethodPost, "/appointments/"+apptID.String()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cancellation_notice_too_short", errResp.Error)
	assert.Equal(t, 24.0, errResp.RequiredHours)
	assert.Greater(t, errResp.RemainingHours, 0.0)
}

func TestJoinWaitlist_Validation(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})

	rec, errResp := doRequest(t, router, http.MethodPost, "/waitlist",
		`{"professional_id":"`+uuid.NewString()+`","preferred_date":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_preferred_date", errResp.Error)

	rec, errResp = doRequest(t, router, http.MethodPost, "/waitlist",
		`{"professional_id":"`+uuid.NewString()+`","preferred_date":"2027-06-07","preferred_start":"noon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", errResp.Error)
}

func TestJoinWaitlist_Success(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})

	rec, _ := doRequest(t, router, http.MethodPost, "/waitlist",
		`{"professional_id":"`+uuid.NewString()+`","preferred_date":"2027-06-07","preferred_start":"09:00","preferred_end":"12:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp WaitlistEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.NotEmpty(t, resp.Token)
}

func TestRedeemWaitlist_UnknownToken(t *testing.T) {
	router := newTestRouter(&stubApptRepo{}, &stubWaitlistRepo{})

	rec, errResp := doRequest(t, router, http.MethodPost, "/waitlist/redeem/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_token", errResp.Error)
}

func TestRedeemWaitlist_Expired(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	wlRepo := &stubWaitlistRepo{
		getByToken: func(token string) (*waitlist.Entry, error) {
			return &waitlist.Entry{
				ID:             uuid.New(),
				ProfessionalID: uuid.New(),
				Status:         waitlist.StatusNotified,
				Token:          token,
				ExpiresAt:      &expired,
			}, nil
		},
	}
	router := newTestRouter(&stubApptRepo{}, wlRepo)

	rec, errResp := doRequest(t, router, http.MethodPost, "/waitlist/redeem/some-token", "")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "priority_window_expired", errResp.Error)
}

func TestCancelWaitlist_ClosedEntry(t *testing.T) {
	wlRepo := &stubWaitlistRepo{
		getByToken: func(token string) (*waitlist.Entry, error) {
			return &waitlist.Entry{
				ID:     uuid.New(),
				Status: waitlist.StatusFulfilled,
				Token:  token,
			}, nil
		},
	}
	router := newTestRouter(&stubApptRepo{}, wlRepo)

	rec, errResp := doRequest(t, router, http.MethodPost, "/waitlist/cancel/some-token", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "entry_not_actionable", errResp.Error)
}
