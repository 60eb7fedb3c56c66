package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)

	// ClientBelongsToOwner is the ownership gate for admission: it must not
	// reveal whether a client exists under a different owner.
	ClientBelongsToOwner(ctx context.Context, clientID, ownerID uuid.UUID) (bool, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindActiveInWindow returns the owner's pending/confirmed appointments
	// whose interval intersects [windowStart, windowEnd), ordered by start
	// time, excluding excludeID when non-nil. A superset is acceptable; the
	// overlap algorithm re-verifies exactly.
	FindActiveInWindow(ctx context.Context, ownerID uuid.UUID, windowStart, windowEnd time.Time, excludeID *uuid.UUID) ([]Appointment, error)

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id, ownerID uuid.UUID) error

	ListAppointmentsByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]Appointment, error)

	// Reminder worker
	FindReminderDue(ctx context.Context, now, horizon time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}
