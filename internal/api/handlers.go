package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/menteagenda/agenda-scheduling/internal/scheduling"
)

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeAppointmentRequest(w, r)
		if !ok {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), in)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		in, okReq := decodeAppointmentRequest(w, r)
		if !okReq {
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), id, in)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		ownerID, ok := parseOwnerParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), ownerID, id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		ownerID, ok := parseOwnerParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), ownerID, id); err != nil {
			handleSchedulingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		ownerID, ok := parseOwnerParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), ownerID, id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := parseOwnerParam(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()

		// Default window: the next 30 days.
		from := time.Now()
		to := from.Add(30 * 24 * time.Hour)

		if v := q.Get("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC 3339")
				return
			}
			from = t
		}
		if v := q.Get("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC 3339")
				return
			}
			to = t
		}

		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		appts, err := svc.ListAppointments(r.Context(), ownerID, from, to, limit, offset)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func checkConflictHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := parseOwnerParam(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()

		start, err := time.Parse(time.RFC3339, q.Get("start_time"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC 3339")
			return
		}

		duration, err := strconv.Atoi(q.Get("duration_minutes"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be an integer")
			return
		}

		var excludeID *uuid.UUID
		if v := q.Get("exclude_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude_id must be a valid UUID")
				return
			}
			excludeID = &id
		}

		check, err := svc.CheckConflict(r.Context(), ownerID, start, duration, excludeID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConflictCheckResponse{
			HasConflict: check.HasConflict,
			Conflicts:   toConflictEntries(check.Conflicts),
		})
	}
}

// Request parsing helpers

func decodeAppointmentRequest(w http.ResponseWriter, r *http.Request) (scheduling.AppointmentInput, bool) {
	var req AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return scheduling.AppointmentInput{}, false
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
		return scheduling.AppointmentInput{}, false
	}

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
		return scheduling.AppointmentInput{}, false
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC 3339")
		return scheduling.AppointmentInput{}, false
	}

	return scheduling.AppointmentInput{
		OwnerID:         ownerID,
		ClientID:        clientID,
		StartTime:       startTime,
		DurationMinutes: req.DurationMinutes,
		Modality:        scheduling.Modality(req.Modality),
		Status:          scheduling.Status(req.Status),
		Notes:           req.Notes,
	}, true
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOwnerParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
		return uuid.Nil, false
	}
	return ownerID, true
}

// Error mapping

func handleSchedulingError(w http.ResponseWriter, err error) {
	var verr *scheduling.ValidationError
	var cerr *scheduling.ConflictError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.As(err, &cerr):
		writeConflict(w, cerr)
	case errors.Is(err, scheduling.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is currently being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// writeConflict surfaces a human message quoting the earliest conflict while
// still returning the full list, so clients can render either.
func writeConflict(w http.ResponseWriter, cerr *scheduling.ConflictError) {
	details := "the proposed time overlaps an existing appointment"
	if len(cerr.Conflicts) > 0 {
		details = fmt.Sprintf("you already have an appointment at %s, please choose another time",
			cerr.Conflicts[0].StartTime.Format("15:04"))
	}

	writeJSON(w, http.StatusConflict, ErrorResponse{
		Error:     "schedule_conflict",
		Details:   details,
		Conflicts: toConflictEntries(cerr.Conflicts),
	})
}
