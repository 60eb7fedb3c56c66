package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

type Modality string

const (
	ModalityInPerson  Modality = "in_person"
	ModalityVideoCall Modality = "video_call"
	ModalityPhoneCall Modality = "phone_call"
)

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 300
)

// Client is a consultante: someone a professional sees. Appointments must
// reference a client owned by the same professional.
type Client struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	FullName  string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Professional struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	ClientID        uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Modality        Modality
	Status          Status
	Notes           *string
	ReminderSent    bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EndTime is derived, never stored: start plus duration.
func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// IsActive reports whether the appointment occupies its time slot for
// conflict purposes. Cancelled frees the slot, completed is history.
func (a Appointment) IsActive() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}
