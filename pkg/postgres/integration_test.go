package postgres

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/services"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
)

// These tests need a disposable database:
//
//	TEST_DATABASE_URL=postgres://localhost:5432/teamclean_test go test ./pkg/postgres/...

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, msg notify.Message) error { return nil }

func newIntegrationDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	d, err := NewDB(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(d.Close)
	require.NoError(t, d.RunMigrations(ctx))
	return d
}

func insertUser(t *testing.T, d *DB, role model.Role) model.Actor {
	t.Helper()
	var id int64
	err := d.pool.QueryRow(context.Background(), `INSERT INTO users (role) VALUES ($1) RETURNING id`, role).Scan(&id)
	require.NoError(t, err)
	return model.Actor{ID: id, Role: role}
}

type integrationFixture struct {
	svc         *services.Service
	client      model.Actor
	coordinator model.Actor
	workers     []model.Actor
	apptID      int64
}

// seedIntegration writes fresh users, a home and an appointment assigned to the coordinator
func seedIntegration(t *testing.T, d *DB, workers int) *integrationFixture {
	t.Helper()
	ctx := context.Background()

	f := &integrationFixture{
		svc:         services.New(d, nopNotifier{}, zap.NewNop(), services.Options{}),
		client:      insertUser(t, d, model.RoleClient),
		coordinator: insertUser(t, d, model.RoleWorker),
	}
	for i := 0; i < workers; i++ {
		f.workers = append(f.workers, insertUser(t, d, model.RoleWorker))
	}

	home := &model.Home{OwnerID: f.client.ID, Name: "Integration", Beds: 3, Baths: 2, AddressHash: uuid.NewString()}
	require.NoError(t, d.InTx(ctx, func(tx db.Tx) error { return tx.InsertHome(ctx, home) }))

	err := d.pool.QueryRow(ctx, `
		INSERT INTO appointments (home_id, requester_id, date, assigned_worker_id, coordination_state)
		VALUES ($1, $2, $3::date, $4, 'assigned')
		RETURNING id
	`, home.ID, f.client.ID, "2030-03-12", f.coordinator.ID).Scan(&f.apptID)
	require.NoError(t, err)
	return f
}

func (f *integrationFixture) createJob(t *testing.T, total int) *model.Job {
	t.Helper()
	job, err := f.svc.CreateJob(context.Background(), f.coordinator, services.CreateJobInput{
		AppointmentID: f.apptID,
		TotalRequired: total,
		CoordinatorID: f.coordinator.ID,
	})
	require.NoError(t, err)
	return job
}

// runTogether starts every fn at once and waits for all of them
func runTogether(fns ...func() error) []error {
	errs := make([]error, len(fns))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func(i int, fn func() error) {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}(i, fn)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestIntegration_ConcurrentLastSlotApprovals(t *testing.T) {
	d := newIntegrationDB(t)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		f := seedIntegration(t, d, 2)
		job := f.createJob(t, 2)

		a, err := f.svc.Submit(ctx, f.workers[0], job.ID, nil)
		require.NoError(t, err)
		b, err := f.svc.Submit(ctx, f.workers[1], job.ID, nil)
		require.NoError(t, err)

		errs := runTogether(
			func() error { _, err := f.svc.Approve(ctx, f.coordinator, a.ID); return err },
			func() error { _, err := f.svc.Approve(ctx, f.coordinator, b.ID); return err },
		)

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, services.ErrNoSlotsRemaining, "round %d", round)
		}
		assert.Equal(t, 1, succeeded, "round %d", round)

		stored, err := d.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.ConfirmedCount)
		assert.Equal(t, model.JobStatusFilled, stored.Status)
	}
}

func TestIntegration_SubmitRacesApprove(t *testing.T) {
	d := newIntegrationDB(t)
	ctx := context.Background()
	f := seedIntegration(t, d, 3)
	job := f.createJob(t, 4)

	first, err := f.svc.Submit(ctx, f.workers[0], job.ID, []model.Unit{{Type: model.UnitBedroom, Number: 1}})
	require.NoError(t, err)

	errs := runTogether(
		func() error { _, err := f.svc.Approve(ctx, f.coordinator, first.ID); return err },
		func() error {
			_, err := f.svc.Submit(ctx, f.workers[1], job.ID, []model.Unit{{Type: model.UnitBedroom, Number: 2}})
			return err
		},
		func() error {
			_, err := f.svc.Submit(ctx, f.workers[2], job.ID, []model.Unit{{Type: model.UnitBathroom, Number: 1}})
			return err
		},
	)
	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}

	stored, err := d.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ConfirmedCount)

	pending, err := d.ListJoinRequests(ctx, db.JoinRequestFilter{AppointmentID: f.apptID, Status: model.RequestStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestIntegration_IncrementConfirmedRefusesClosedJob(t *testing.T) {
	d := newIntegrationDB(t)
	ctx := context.Background()
	f := seedIntegration(t, d, 0)
	job := f.createJob(t, 3)

	var ok bool
	require.NoError(t, d.InTx(ctx, func(tx db.Tx) error {
		if err := tx.UpdateJobStatus(ctx, job.ID, model.JobStatusCancelled); err != nil {
			return err
		}
		var err error
		_, ok, err = tx.IncrementConfirmed(ctx, job.ID)
		return err
	}))
	assert.False(t, ok)
}

func TestIntegration_InsertHomeRejectsDuplicateAddress(t *testing.T) {
	d := newIntegrationDB(t)
	ctx := context.Background()
	owner := insertUser(t, d, model.RoleClient)
	hash := uuid.NewString()

	insert := func() error {
		return d.InTx(ctx, func(tx db.Tx) error {
			return tx.InsertHome(ctx, &model.Home{OwnerID: owner.ID, AddressHash: hash})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), db.ErrConflict)

	found, err := d.FindHomeByAddressHash(ctx, owner.ID, hash)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, found.OwnerID)
}
