package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gobering/scheduling-service/internal/interval"
	"github.com/gobering/scheduling-service/internal/schedule"
)

// ScheduleHandler owns the professional's weekly windows and time off.
// Every write drops the professional's cached slots so the next slot
// query recomputes from the source of truth.
type ScheduleHandler struct {
	repo  schedule.Repository
	cache schedule.CacheInvalidator
}

func NewScheduleHandler(repo schedule.Repository, cache schedule.CacheInvalidator) *ScheduleHandler {
	return &ScheduleHandler{repo: repo, cache: cache}
}

func (h *ScheduleHandler) ListWindows(w http.ResponseWriter, r *http.Request) {
	professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
		return
	}

	windows, err := h.repo.ListWindows(r.Context(), professionalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, windows)
}

func (h *ScheduleHandler) UpsertWindow(w http.ResponseWriter, r *http.Request) {
	professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
		return
	}

	var req ScheduleWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	if msg, ok := validWindow(req.Weekday, req.StartTime, req.EndTime); !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", msg)
		return
	}

	entry := schedule.WeeklyWindow{
		ProfessionalID: professionalID,
		Weekday:        req.Weekday,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Enabled:        req.Enabled,
	}
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window_id", "id must be a valid UUID")
			return
		}
		entry.ID = id
	}

	saved, err := h.repo.UpsertWindow(r.Context(), entry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.invalidate(r, professionalID)
	writeJSON(w, http.StatusOK, saved)
}

func (h *ScheduleHandler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
		return
	}
	windowID, err := uuid.Parse(chi.URLParam(r, "windowID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window_id", "windowID must be a valid UUID")
		return
	}

	if err := h.repo.DeleteWindow(r.Context(), professionalID, windowID); err != nil {
		if errors.Is(err, schedule.ErrWindowNotFound) {
			writeError(w, http.StatusNotFound, "window_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.invalidate(r, professionalID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
		return
	}

	entries, err := h.repo.ListTimeOff(r.Context(), professionalID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *ScheduleHandler) UpsertTimeOff(w http.ResponseWriter, r *http.Request) {
	professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
		return
	}

	var req TimeOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	if msg, ok := validWindow(req.Weekday, req.StartTime, req.EndTime); !ok {
		writeError(w, http.StatusBadRequest, "validation_failed", msg)
		return
	}

	kind := schedule.TimeOffKind(req.Kind)
	if kind != "" && kind != schedule.KindBreak && kind != schedule.KindUnavailability {
		writeError(w, http.StatusBadRequest, "validation_failed", "kind must be break or unavailability")
		return
	}

	entry := schedule.TimeOff{
		ProfessionalID: professionalID,
		Weekday:        req.Weekday,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Kind:           kind,
	}
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_off_id", "id must be a valid UUID")
			return
		}
		entry.ID = id
	}

	saved, err := h.repo.UpsertTimeOff(r.Context(), entry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.invalidate(r, professionalID)
	writeJSON(w, http.StatusOK, saved)
}

func (h *ScheduleHandler) DeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	professionalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_professional_id", "id must be a valid UUID")
		return
	}
	timeOffID, err := uuid.Parse(chi.URLParam(r, "timeOffID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time_off_id", "timeOffID must be a valid UUID")
		return
	}

	if err := h.repo.DeleteTimeOff(r.Context(), professionalID, timeOffID); err != nil {
		if errors.Is(err, schedule.ErrTimeOffNotFound) {
			writeError(w, http.StatusNotFound, "time_off_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.invalidate(r, professionalID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) invalidate(r *http.Request, professionalID uuid.UUID) {
	if h.cache != nil {
		h.cache.Invalidate(r.Context(), professionalID)
	}
}

func validWindow(weekday int, startTime, endTime string) (string, bool) {
	if weekday < 0 || weekday > 6 {
		return "weekday must be 0 (Sunday) through 6 (Saturday)", false
	}
	if !interval.Valid(startTime) {
		return "start_time must be HH:MM", false
	}
	if !interval.Valid(endTime) {
		return "end_time must be HH:MM", false
	}
	if endTime <= startTime {
		return "end_time must be after start_time", false
	}
	return "", true
}
