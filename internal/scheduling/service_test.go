package scheduling

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menteagenda/agenda-scheduling/internal/config"
	redisclient "github.com/menteagenda/agenda-scheduling/internal/redis"
)

// fakeRepo is an in-memory Repository so service behavior can be tested
// without Postgres.
type fakeRepo struct {
	clients      map[uuid.UUID]Client
	appointments map[uuid.UUID]Appointment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clients:      make(map[uuid.UUID]Client),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *fakeRepo) addClient(ownerID uuid.UUID) uuid.UUID {
	id := uuid.New()
	r.clients[id] = Client{ID: id, OwnerID: ownerID, FullName: "Test Client"}
	return id
}

func (r *fakeRepo) addAppointment(a Appointment) Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appointments[a.ID] = a
	return a
}

func (r *fakeRepo) GetClientByID(_ context.Context, id uuid.UUID) (*Client, error) {
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (r *fakeRepo) ClientBelongsToOwner(_ context.Context, clientID, ownerID uuid.UUID) (bool, error) {
	c, ok := r.clients[clientID]
	return ok && c.OwnerID == ownerID, nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *fakeRepo) FindActiveInWindow(_ context.Context, ownerID uuid.UUID, windowStart, windowEnd time.Time, excludeID *uuid.UUID) ([]Appointment, error) {
	var result []Appointment
	for _, a := range r.appointments {
		if a.OwnerID != ownerID || !a.IsActive() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if Overlaps(windowStart, windowEnd, a.StartTime, a.EndTime()) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *fakeRepo) UpdateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	if _, ok := r.appointments[a.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	a.UpdatedAt = time.Now()
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *fakeRepo) DeleteAppointment(_ context.Context, id, ownerID uuid.UUID) error {
	a, ok := r.appointments[id]
	if !ok || a.OwnerID != ownerID {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *fakeRepo) ListAppointmentsByOwner(_ context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]Appointment, error) {
	var result []Appointment
	for _, a := range r.appointments {
		if a.OwnerID != ownerID {
			continue
		}
		if a.StartTime.Before(from) || !a.StartTime.Before(to) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeRepo) FindReminderDue(_ context.Context, now, horizon time.Time) ([]Appointment, error) {
	var result []Appointment
	for _, a := range r.appointments {
		if !a.IsActive() || a.ReminderSent {
			continue
		}
		if a.StartTime.After(now) && !a.StartTime.After(horizon) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *fakeRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.ReminderSent = true
	r.appointments[id] = a
	return nil
}

// passLocker runs the critical section inline; lock behavior itself is
// Redis's concern, not the service's.
type passLocker struct{}

func (passLocker) WithOwnerLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithOwnerLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, passLocker{}, config.Config{ReminderLead: 24 * time.Hour})
}

func validInput(ownerID, clientID uuid.UUID, start time.Time, duration int) AppointmentInput {
	return AppointmentInput{
		OwnerID:         ownerID,
		ClientID:        clientID,
		StartTime:       start,
		DurationMinutes: duration,
		Modality:        ModalityInPerson,
	}
}

func TestCreateAppointmentDefaultsStatusToPending(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	appt, err := svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:00"), 50))

	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.False(t, appt.ReminderSent)
}

func TestCreateAppointmentDurationBoundaries(t *testing.T) {
	tests := []struct {
		duration int
		wantErr  bool
	}{
		{14, true},
		{15, false},
		{300, false},
		{301, true},
	}

	for _, tc := range tests {
		repo := newFakeRepo()
		owner := uuid.New()
		client := repo.addClient(owner)
		svc := newTestService(repo)

		_, err := svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:00"), tc.duration))

		if tc.wantErr {
			var verr *ValidationError
			require.ErrorAs(t, err, &verr, "duration %d should be rejected", tc.duration)
			assert.Equal(t, "DurationMinutes", verr.Field)
		} else {
			require.NoError(t, err, "duration %d should be accepted", tc.duration)
		}
	}
}

func TestCreateAppointmentRejectsBadModality(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	in := validInput(owner, client, at(t, "10:00"), 50)
	in.Modality = "carrier_pigeon"

	_, err := svc.CreateAppointment(context.Background(), in)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Modality", verr.Field)
}

func TestCreateAppointmentRejectsBadStatus(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	in := validInput(owner, client, at(t, "10:00"), 50)
	in.Status = "rescheduled"

	_, err := svc.CreateAppointment(context.Background(), in)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Status", verr.Field)
}

func TestCreateAppointmentRequiresOwnedClient(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	otherOwner := uuid.New()
	foreignClient := repo.addClient(otherOwner)
	svc := newTestService(repo)

	t.Run("client of another professional", func(t *testing.T) {
		_, err := svc.CreateAppointment(context.Background(), validInput(owner, foreignClient, at(t, "10:00"), 50))
		assert.ErrorIs(t, err, ErrClientNotFound)
	})

	t.Run("client does not exist", func(t *testing.T) {
		_, err := svc.CreateAppointment(context.Background(), validInput(owner, uuid.New(), at(t, "10:00"), 50))
		assert.ErrorIs(t, err, ErrClientNotFound)
	})
}

func TestCreateAppointmentConflictScenario(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	// Existing confirmed appointment 10:00 for 50 minutes, ends 10:50.
	existing := repo.addAppointment(Appointment{
		OwnerID:         owner,
		ClientID:        client,
		StartTime:       at(t, "10:00"),
		DurationMinutes: 50,
		Modality:        ModalityInPerson,
		Status:          StatusConfirmed,
	})

	_, err := svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:30"), 30))

	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Conflicts, 1)
	assert.Equal(t, existing.ID, cerr.Conflicts[0].ID)
	assert.Equal(t, at(t, "10:00"), cerr.Conflicts[0].StartTime)
	assert.Equal(t, 50, cerr.Conflicts[0].DurationMinutes)
}

func TestCreateAppointmentBackToBackAllowed(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	repo.addAppointment(Appointment{
		OwnerID:         owner,
		ClientID:        client,
		StartTime:       at(t, "10:00"),
		DurationMinutes: 30,
		Status:          StatusConfirmed,
	})

	// Starts exactly when the existing one ends.
	_, err := svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:30"), 30))

	assert.NoError(t, err)
}

func TestCreateAppointmentCrossOwnerIsolation(t *testing.T) {
	repo := newFakeRepo()
	owner1 := uuid.New()
	owner2 := uuid.New()
	client1 := repo.addClient(owner1)
	client2 := repo.addClient(owner2)
	svc := newTestService(repo)

	repo.addAppointment(Appointment{
		OwnerID:         owner1,
		ClientID:        client1,
		StartTime:       at(t, "10:00"),
		DurationMinutes: 60,
		Status:          StatusConfirmed,
	})

	// Identical window, different professional: never a conflict.
	_, err := svc.CreateAppointment(context.Background(), validInput(owner2, client2, at(t, "10:00"), 60))

	assert.NoError(t, err)
}

func TestCreateAppointmentIgnoresInactiveStatuses(t *testing.T) {
	for _, status := range []Status{StatusCancelled, StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			repo := newFakeRepo()
			owner := uuid.New()
			client := repo.addClient(owner)
			svc := newTestService(repo)

			repo.addAppointment(Appointment{
				OwnerID:         owner,
				ClientID:        client,
				StartTime:       at(t, "10:00"),
				DurationMinutes: 60,
				Status:          status,
			})

			_, err := svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:00"), 60))

			assert.NoError(t, err)
		})
	}
}

func TestCreateAppointmentScheduleBusy(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := NewService(repo, busyLocker{}, config.Config{})

	_, err := svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:00"), 50))

	assert.ErrorIs(t, err, ErrScheduleBusy)
}

func TestUpdateAppointmentExcludesItself(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	existing := repo.addAppointment(Appointment{
		OwnerID:         owner,
		ClientID:        client,
		StartTime:       at(t, "14:00"),
		DurationMinutes: 50,
		Modality:        ModalityVideoCall,
		Status:          StatusConfirmed,
	})

	// Re-submitting the exact same window must not conflict with itself.
	in := validInput(owner, client, at(t, "14:00"), 50)
	in.Status = StatusConfirmed

	updated, err := svc.UpdateAppointment(context.Background(), existing.ID, in)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, at(t, "14:00"), updated.StartTime)
}

func TestUpdateAppointmentStillDetectsOtherConflicts(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	blocker := repo.addAppointment(Appointment{
		OwnerID:         owner,
		ClientID:        client,
		StartTime:       at(t, "09:00"),
		DurationMinutes: 60,
		Status:          StatusConfirmed,
	})
	target := repo.addAppointment(Appointment{
		OwnerID:         owner,
		ClientID:        client,
		StartTime:       at(t, "14:00"),
		DurationMinutes: 50,
		Status:          StatusPending,
	})

	// Moving the 14:00 appointment onto the 09:00 one.
	_, err := svc.UpdateAppointment(context.Background(), target.ID, validInput(owner, client, at(t, "09:30"), 30))

	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Conflicts, 1)
	assert.Equal(t, blocker.ID, cerr.Conflicts[0].ID)
}

func TestUpdateAppointmentValidatesFieldsBeforeExistence(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	// Malformed duration against an id that does not exist: field
	// validation must win, not the missing appointment.
	_, err := svc.UpdateAppointment(context.Background(), uuid.New(), validInput(owner, client, at(t, "10:00"), 5))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "DurationMinutes", verr.Field)
}

func TestUpdateAppointmentForeignOwnerLooksMissing(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	intruder := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	target := repo.addAppointment(Appointment{
		OwnerID:         owner,
		ClientID:        client,
		StartTime:       at(t, "14:00"),
		DurationMinutes: 50,
		Status:          StatusPending,
	})

	intruderClient := repo.addClient(intruder)
	_, err := svc.UpdateAppointment(context.Background(), target.ID, validInput(intruder, intruderClient, at(t, "15:00"), 50))

	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCancelAppointmentFreesSlot(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	existing, err := svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:00"), 60))
	require.NoError(t, err)

	cancelled, err := svc.CancelAppointment(context.Background(), owner, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// The slot is free again for the same window.
	_, err = svc.CreateAppointment(context.Background(), validInput(owner, client, at(t, "10:00"), 60))
	assert.NoError(t, err)
}

func TestCheckConflictIsPure(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	repo.addAppointment(Appointment{
		OwnerID:         owner,
		ClientID:        client,
		StartTime:       at(t, "10:00"),
		DurationMinutes: 50,
		Status:          StatusConfirmed,
	})
	before := len(repo.appointments)

	check, err := svc.CheckConflict(context.Background(), owner, at(t, "10:30"), 30, nil)

	require.NoError(t, err)
	assert.True(t, check.HasConflict)
	require.Len(t, check.Conflicts, 1)
	assert.Len(t, repo.appointments, before, "conflict query must not mutate storage")
}

func TestCheckConflictReturnsAllConflictsOrdered(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	second := repo.addAppointment(Appointment{
		OwnerID: owner, ClientID: client,
		StartTime: at(t, "11:00"), DurationMinutes: 50, Status: StatusPending,
	})
	first := repo.addAppointment(Appointment{
		OwnerID: owner, ClientID: client,
		StartTime: at(t, "10:00"), DurationMinutes: 50, Status: StatusConfirmed,
	})

	check, err := svc.CheckConflict(context.Background(), owner, at(t, "10:15"), 120, nil)

	require.NoError(t, err)
	require.Len(t, check.Conflicts, 2)
	assert.Equal(t, first.ID, check.Conflicts[0].ID)
	assert.Equal(t, second.ID, check.Conflicts[1].ID)
}

func TestCheckConflictValidatesDuration(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.CheckConflict(context.Background(), uuid.New(), at(t, "10:00"), 0, nil)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSendDueRemindersMarksOnlyUpcomingActive(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	now := at(t, "08:00")

	due := repo.addAppointment(Appointment{
		OwnerID: owner, ClientID: client,
		StartTime: now.Add(2 * time.Hour), DurationMinutes: 50, Status: StatusConfirmed,
	})
	cancelled := repo.addAppointment(Appointment{
		OwnerID: owner, ClientID: client,
		StartTime: now.Add(3 * time.Hour), DurationMinutes: 50, Status: StatusCancelled,
	})
	farFuture := repo.addAppointment(Appointment{
		OwnerID: owner, ClientID: client,
		StartTime: now.Add(72 * time.Hour), DurationMinutes: 50, Status: StatusConfirmed,
	})

	sent, err := svc.SendDueReminders(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, repo.appointments[due.ID].ReminderSent)
	assert.False(t, repo.appointments[cancelled.ID].ReminderSent)
	assert.False(t, repo.appointments[farFuture.ID].ReminderSent)
}

func TestGetAppointmentScopedToOwner(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	existing := repo.addAppointment(Appointment{
		OwnerID: owner, ClientID: client,
		StartTime: at(t, "10:00"), DurationMinutes: 50, Status: StatusPending,
	})

	got, err := svc.GetAppointment(context.Background(), owner, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)

	_, err = svc.GetAppointment(context.Background(), uuid.New(), existing.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestListAppointmentsClampsLimit(t *testing.T) {
	repo := newFakeRepo()
	owner := uuid.New()
	client := repo.addClient(owner)
	svc := newTestService(repo)

	base := at(t, "08:00")
	for i := 0; i < 30; i++ {
		repo.addAppointment(Appointment{
			OwnerID: owner, ClientID: client,
			StartTime: base.Add(time.Duration(i) * time.Hour), DurationMinutes: 30, Status: StatusPending,
		})
	}

	appts, err := svc.ListAppointments(context.Background(), owner, base, base.Add(100*time.Hour), 0, 0)

	require.NoError(t, err)
	assert.Len(t, appts, 20, "limit should default to 20")
}
