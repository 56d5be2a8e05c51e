package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gobering/scheduling-service/internal/appointment"
	"github.com/gobering/scheduling-service/internal/availability"
	redisclient "github.com/gobering/scheduling-service/internal/redis"
	"github.com/gobering/scheduling-service/internal/waitlist"
)

const dateLayout = "2006-01-02"

func listSlotsHandler(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()

		from, err := time.Parse(dateLayout, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
			return
		}
		to := from
		if v := q.Get("to"); v != "" {
			to, err = time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
		}

		duration, err := strconv.Atoi(q.Get("duration"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be whole minutes")
			return
		}

		excl, err := parseExclusions(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exclusions", err.Error())
			return
		}

		slots, err := engine.ComputeSlots(r.Context(), professionalID, from, to, duration, excl)
		if err != nil {
			if errors.Is(err, availability.ErrInvalidDuration) {
				writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				Date:      s.Date.Format(dateLayout),
				StartTime: s.StartTime,
				EndTime:   s.EndTime,
				Available: s.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		professionalID, err := uuid.Parse(req.ProfessionalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
			return
		}

		patientID, err := optionalUUID(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		serviceID, err := optionalUUID(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookingRequest{
			ProfessionalID: professionalID,
			PatientID:      patientID,
			ServiceID:      serviceID,
			Date:           date,
			StartTime:      req.StartTime,
			Duration:       req.Duration,
			Draft:          req.Draft,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentTransitionHandler(svc.Confirm)
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentTransitionHandler(svc.Complete)
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentTransitionHandler(svc.Cancel)
}

func appointmentTransitionHandler(fn func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelByTokenHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.CancelByToken(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, date, req.StartTime)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func joinWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		professionalID, err := uuid.Parse(req.ProfessionalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
			return
		}

		patientID, err := optionalUUID(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		serviceID, err := optionalUUID(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		preferredDate, err := time.Parse(dateLayout, req.PreferredDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_preferred_date", "preferred_date must be YYYY-MM-DD")
			return
		}

		entry, err := svc.Join(r.Context(), waitlist.JoinRequest{
			ProfessionalID: professionalID,
			PatientID:      patientID,
			ServiceID:      serviceID,
			PreferredDate:  preferredDate,
			PreferredStart: req.PreferredStart,
			PreferredEnd:   req.PreferredEnd,
		})
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toWaitlistResponse(entry))
	}
}

func redeemWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RedeemWaitlistRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		patientID := uuid.Nil
		if req.PatientID != "" {
			id, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = id
		}

		appt, err := svc.Redeem(r.Context(), chi.URLParam(r, "token"), patientID)
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := svc.Cancel(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toWaitlistResponse(entry))
	}
}

// Error mapping

func handleAppointmentError(w http.ResponseWriter, err error) {
	var validationErr *appointment.ValidationError
	var policyErr *appointment.NoticePolicyError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.As(err, &policyErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:          "cancellation_notice_too_short",
			Details:        policyErr.Error(),
			RequiredHours:  policyErr.Required.Hours(),
			RemainingHours: policyErr.Remaining.Hours(),
		})
	case errors.Is(err, appointment.ErrProfessionalNotFound):
		writeError(w, http.StatusNotFound, "professional_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot is already occupied, refresh the slot list")
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleWaitlistError(w http.ResponseWriter, err error) {
	var validationErr *waitlist.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "unknown_token", "no waitlist entry for this token")
	case errors.Is(err, waitlist.ErrPriorityWindowExpired):
		writeError(w, http.StatusGone, "priority_window_expired", err.Error())
	case errors.Is(err, waitlist.ErrNotRedeemable),
		errors.Is(err, waitlist.ErrEntryClosed):
		writeError(w, http.StatusConflict, "entry_not_actionable", err.Error())
	default:
		// Redemption books through the appointment path, so its errors
		// surface here too.
		handleAppointmentError(w, err)
	}
}

// Helpers

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseExclusions(q map[string][]string) (*availability.Exclusions, error) {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	excl := &availability.Exclusions{}
	set := false

	if v := get("exclude_appointment"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, errors.New("exclude_appointment must be a valid UUID")
		}
		excl.AppointmentID = &id
		set = true
	}

	if v := get("exclude_date"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, errors.New("exclude_date must be YYYY-MM-DD")
		}
		excl.SlotDate = &d
		excl.SlotTime = get("exclude_time")
		owner, err := uuid.Parse(get("exclude_professional"))
		if err != nil {
			return nil, errors.New("exclude_professional must accompany exclude_date")
		}
		excl.OwnerProfessionalID = owner
		set = true
	}

	if !set {
		return nil, nil
	}
	return excl, nil
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                a.ID,
		ProfessionalID:    a.ProfessionalID,
		PatientID:         a.PatientID,
		ServiceID:         a.ServiceID,
		Date:              a.Date.Format(dateLayout),
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		Status:            string(a.Status),
		CancellationToken: a.CancellationToken,
		RescheduledFromID: a.RescheduledFromID,
	}
}

func toWaitlistResponse(e *waitlist.Entry) WaitlistEntryResponse {
	resp := WaitlistEntryResponse{
		ID:        e.ID,
		Status:    string(e.Status),
		Token:     e.Token,
		ExpiresAt: e.ExpiresAt,
	}
	if e.OfferedDate != nil {
		resp.OfferedDate = e.OfferedDate.Format(dateLayout)
	}
	if e.OfferedStart != nil {
		resp.OfferedStart = *e.OfferedStart
	}
	if e.OfferedEnd != nil {
		resp.OfferedEnd = *e.OfferedEnd
	}
	return resp
}
