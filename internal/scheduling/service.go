package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/menteagenda/agenda-scheduling/internal/config"
	redisclient "github.com/menteagenda/agenda-scheduling/internal/redis"
)

// ConflictCheck is the result of a pure conflict query: no mutation happens.
type ConflictCheck struct {
	HasConflict bool
	Conflicts   []Appointment
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	validate *validator.Validate
	cfg      config.Config
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		validate: newValidator(),
		cfg:      cfg,
	}
}

// CheckConflict reports which of the owner's active appointments overlap the
// proposed [start, start+duration) window, excluding excludeID when given
// (the update case, so an appointment never conflicts with itself).
func (s *Service) CheckConflict(ctx context.Context, ownerID uuid.UUID, start time.Time, durationMinutes int, excludeID *uuid.UUID) (*ConflictCheck, error) {
	if durationMinutes < MinDurationMinutes || durationMinutes > MaxDurationMinutes {
		return nil, &ValidationError{
			Field:  "DurationMinutes",
			Reason: fmt.Sprintf("must be between %d and %d", MinDurationMinutes, MaxDurationMinutes),
		}
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	candidates, err := s.repo.FindActiveInWindow(ctx, ownerID, start, end, excludeID)
	if err != nil {
		return nil, &StorageError{Op: "find active appointments", Err: err}
	}

	conflicts := FindConflicts(start, durationMinutes, candidates)

	return &ConflictCheck{
		HasConflict: len(conflicts) > 0,
		Conflicts:   conflicts,
	}, nil
}

// Admit validates a proposed appointment and decides whether it may be
// persisted. On success it returns the approved record with status defaulted;
// it never writes — persistence is an explicit separate step so callers can
// run the whole admission inside a critical section.
func (s *Service) Admit(ctx context.Context, in AppointmentInput, excludeID *uuid.UUID) (*Appointment, error) {
	if err := checkInput(s.validate, in); err != nil {
		return nil, err
	}

	owned, err := s.repo.ClientBelongsToOwner(ctx, in.ClientID, in.OwnerID)
	if err != nil {
		return nil, &StorageError{Op: "check client ownership", Err: err}
	}
	if !owned {
		return nil, ErrClientNotFound
	}

	check, err := s.CheckConflict(ctx, in.OwnerID, in.StartTime, in.DurationMinutes, excludeID)
	if err != nil {
		return nil, err
	}
	if check.HasConflict {
		return nil, &ConflictError{Conflicts: check.Conflicts}
	}

	status := in.Status
	if status == "" {
		status = StatusPending
	}

	return &Appointment{
		OwnerID:         in.OwnerID,
		ClientID:        in.ClientID,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		Modality:        in.Modality,
		Status:          status,
		Notes:           in.Notes,
	}, nil
}

// CreateAppointment admits and persists a new appointment. The per-owner
// lock closes the check-then-act window: two concurrent bookings for the
// same professional cannot both pass the conflict check.
func (s *Service) CreateAppointment(ctx context.Context, in AppointmentInput) (*Appointment, error) {
	var created *Appointment

	err := s.locker.WithOwnerLock(ctx, in.OwnerID, func(lockCtx context.Context) error {
		appt, err := s.Admit(lockCtx, in, nil)
		if err != nil {
			return err
		}

		created, err = s.repo.CreateAppointment(lockCtx, *appt)
		if err != nil {
			return &StorageError{Op: "create appointment", Err: err}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return created, nil
}

// UpdateAppointment re-runs the full admission for an existing appointment,
// excluding its own prior interval from the conflict candidates.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in AppointmentInput) (*Appointment, error) {
	// Field validation comes before the existence load: a malformed request
	// is a validation failure even when the target id is unknown.
	if err := checkInput(s.validate, in); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "load appointment", Err: err}
	}
	if existing.OwnerID != in.OwnerID {
		// Same opacity rule as clients: foreign appointments do not exist.
		return nil, ErrAppointmentNotFound
	}

	var updated *Appointment

	err = s.locker.WithOwnerLock(ctx, in.OwnerID, func(lockCtx context.Context) error {
		appt, err := s.Admit(lockCtx, in, &id)
		if err != nil {
			return err
		}

		appt.ID = id
		appt.ReminderSent = existing.ReminderSent

		updated, err = s.repo.UpdateAppointment(lockCtx, *appt)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return &StorageError{Op: "update appointment", Err: err}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return updated, nil
}

// CancelAppointment frees the slot permanently. No conflict check needed:
// cancelling only shrinks the conflict universe.
func (s *Service) CancelAppointment(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	existing, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	existing.Status = StatusCancelled

	updated, err := s.repo.UpdateAppointment(ctx, *existing)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "cancel appointment", Err: err}
	}
	return updated, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.repo.DeleteAppointment(ctx, id, ownerID); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return &StorageError{Op: "delete appointment", Err: err}
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	return s.getOwned(ctx, ownerID, id)
}

// ListAppointments returns the owner's appointments starting in [from, to).
func (s *Service) ListAppointments(ctx context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListAppointmentsByOwner(ctx, ownerID, from, to, limit, offset)
	if err != nil {
		return nil, &StorageError{Op: "list appointments", Err: err}
	}
	return appts, nil
}

// SendDueReminders is called by the reminder worker periodically. It marks
// active appointments starting within the configured lead window so they are
// not reminded twice; actual delivery is a downstream concern.
func (s *Service) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	horizon := now.Add(s.cfg.ReminderLead)

	due, err := s.repo.FindReminderDue(ctx, now, horizon)
	if err != nil {
		return 0, &StorageError{Op: "find due reminders", Err: err}
	}

	sent := 0
	for _, appt := range due {
		if err := s.repo.MarkReminderSent(ctx, appt.ID); err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			return sent, &StorageError{Op: "mark reminder sent", Err: err}
		}
		sent++
	}

	return sent, nil
}

func (s *Service) getOwned(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "load appointment", Err: err}
	}
	if appt.OwnerID != ownerID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}
