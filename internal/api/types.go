package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/menteagenda/agenda-scheduling/internal/scheduling"
)

// AppointmentRequest is the JSON body for create and update. Owner ID travels
// in the body because authentication is handled upstream of this service.
type AppointmentRequest struct {
	OwnerID         string  `json:"owner_id"`
	ClientID        string  `json:"client_id"`
	StartTime       string  `json:"start_time"` // RFC 3339
	DurationMinutes int     `json:"duration_minutes"`
	Modality        string  `json:"modality"`
	Status          string  `json:"status,omitempty"`
	Notes           *string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	ClientID        uuid.UUID `json:"client_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Modality        string    `json:"modality"`
	Status          string    `json:"status"`
	Notes           *string   `json:"notes,omitempty"`
	ReminderSent    bool      `json:"reminder_sent"`
}

type ConflictEntry struct {
	ID              uuid.UUID `json:"id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

type ConflictCheckResponse struct {
	HasConflict bool            `json:"has_conflict"`
	Conflicts   []ConflictEntry `json:"conflicts"`
}

type ErrorResponse struct {
	Error     string          `json:"error"`
	Details   string          `json:"details,omitempty"`
	Conflicts []ConflictEntry `json:"conflicts,omitempty"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		OwnerID:         a.OwnerID,
		ClientID:        a.ClientID,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime(),
		DurationMinutes: a.DurationMinutes,
		Modality:        string(a.Modality),
		Status:          string(a.Status),
		Notes:           a.Notes,
		ReminderSent:    a.ReminderSent,
	}
}

func toConflictEntries(appts []scheduling.Appointment) []ConflictEntry {
	entries := make([]ConflictEntry, 0, len(appts))
	for _, a := range appts {
		entries = append(entries, ConflictEntry{
			ID:              a.ID,
			StartTime:       a.StartTime,
			DurationMinutes: a.DurationMinutes,
		})
	}
	return entries
}
