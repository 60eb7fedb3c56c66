package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/menteagenda/agenda-scheduling/internal/db"
	"github.com/menteagenda/agenda-scheduling/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	owners, err := seedProfessionals(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed professionals: %v", err)
	}
	clients, err := seedClients(context.Background(), pool, owners, 40)
	if err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, clients, 10); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d professionals", count)

	specialties := []string{
		"Clinical Psychology",
		"Psychiatry",
		"Child & Adolescent Therapy",
		"Couples Therapy",
		"Cognitive Behavioral Therapy",
		"Psychoanalysis",
		"Trauma Therapy",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("professionals seeded")
	return ids, nil
}

// seededClient keeps the owner association so appointments can be booked
// against the right schedule.
type seededClient struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, owners []uuid.UUID, perOwner int) ([]seededClient, error) {
	log.Printf("seeding %d clients per professional", perOwner)

	const batchSize = 500
	all := make([]seededClient, 0, len(owners)*perOwner)

	pending := make([]seededClient, 0, batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		for _, c := range pending {
			_, err := tx.Exec(ctx, `
				INSERT INTO clients (id, owner_id, full_name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, c.ID, c.OwnerID, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		pending = pending[:0]
		return nil
	}

	for _, owner := range owners {
		for i := 0; i < perOwner; i++ {
			c := seededClient{ID: uuid.New(), OwnerID: owner}
			all = append(all, c)
			pending = append(pending, c)
			if len(pending) >= batchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	log.Printf("clients seeded: %d", len(all))
	return all, nil
}

// seedAppointments lays out back-to-back future slots per owner so the seed
// data never violates the no-overlap invariant: half-open intervals that
// touch do not conflict.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, clients []seededClient, perOwner int) error {
	log.Printf("seeding %d appointments per professional", perOwner)

	byOwner := make(map[uuid.UUID][]seededClient)
	for _, c := range clients {
		byOwner[c.OwnerID] = append(byOwner[c.OwnerID], c)
	}

	modalities := []scheduling.Modality{
		scheduling.ModalityInPerson,
		scheduling.ModalityVideoCall,
		scheduling.ModalityPhoneCall,
	}
	durations := []int{30, 45, 50, 60}

	dayStart := time.Now().Truncate(24 * time.Hour).Add(24*time.Hour + 9*time.Hour)

	total := 0
	for owner, ownerClients := range byOwner {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		cursor := dayStart
		for i := 0; i < perOwner; i++ {
			client := ownerClients[gofakeit.Number(0, len(ownerClients)-1)]
			duration := durations[gofakeit.Number(0, len(durations)-1)]
			modality := modalities[gofakeit.Number(0, len(modalities)-1)]

			status := scheduling.StatusPending
			if gofakeit.Bool() {
				status = scheduling.StatusConfirmed
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, owner_id, client_id, start_time, duration_minutes, modality, status, notes, reminder_sent, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, false, now(), now())
			`, uuid.New(), owner, client.ID, cursor, duration, modality, status)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			cursor = cursor.Add(time.Duration(duration) * time.Minute)
			total++
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Printf("appointments seeded: %d", total)
	return nil
}
