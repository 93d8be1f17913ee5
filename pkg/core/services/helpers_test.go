package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
)

var (
	testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	client      = model.Actor{ID: 100, Role: model.RoleClient}
	coordinator = model.Actor{ID: 200, Role: model.RoleWorker}
	alice       = model.Actor{ID: 301, Role: model.RoleWorker}
	bob         = model.Actor{ID: 302, Role: model.RoleWorker}
	carol       = model.Actor{ID: 303, Role: model.RoleWorker}
	admin       = model.Actor{ID: 900, Role: model.RoleAdmin}
)

// mockNotifier records every message and can be told to fail
type mockNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	fail     bool
}

func (m *mockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if m.fail {
		return errors.New("notification channel down")
	}
	return nil
}

func (m *mockNotifier) ofType(typ string) []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Message
	for _, msg := range m.messages {
		if msg.Payload.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

type fixture struct {
	store    *db.MemoryDB
	notifier *mockNotifier
	svc      *Service
	apptID   int64
	homeID   int64

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// newFixture seeds a home with 3 beds and 2 baths and an appointment assigned to the coordinator
func newFixture() *fixture {
	store := db.NewMemoryDB()
	homeID := store.SeedHome(model.Home{OwnerID: client.ID, Name: "Lake house", Beds: 3, Baths: 2})
	apptID := store.SeedAppointment(model.Appointment{
		HomeID:           homeID,
		RequesterID:      client.ID,
		Date:             "2025-03-12",
		PriceCents:       24000,
		AssignedWorkerID: coordinator.ID,
		State:            model.StateAssigned,
	})
	f := &fixture{store: store, notifier: &mockNotifier{}, apptID: apptID, homeID: homeID, now: testNow}
	f.svc = New(store, f.notifier, zap.NewNop(), Options{Clock: f.clock})
	return f
}

func (f *fixture) createJob(total int) *model.Job {
	job, err := f.svc.CreateJob(context.Background(), coordinator, CreateJobInput{
		AppointmentID: f.apptID,
		TotalRequired: total,
		CoordinatorID: coordinator.ID,
	})
	if err != nil {
		panic(err)
	}
	return job
}

func bedroom(n int) model.Unit  { return model.Unit{Type: model.UnitBedroom, Number: n} }
func bathroom(n int) model.Unit { return model.Unit{Type: model.UnitBathroom, Number: n} }

// seedUnstaffed adds an appointment at the fixture home with no worker and an
// auto-generated job the requester owns
func (f *fixture) seedUnstaffed(total int) (int64, *model.Job) {
	apptID := f.store.SeedAppointment(model.Appointment{
		HomeID:      f.homeID,
		RequesterID: client.ID,
		Date:        "2025-03-14",
		State:       model.StateUnassigned,
	})
	job, err := f.svc.CreateJob(context.Background(), admin, CreateJobInput{
		AppointmentID: apptID,
		TotalRequired: total,
		AutoGenerated: true,
	})
	if err != nil {
		panic(err)
	}
	return apptID, job
}

// lockRecorder records which rows transactions read, in order. Inside a
// transaction every one of these reads takes a row lock in Postgres.
type lockRecorder struct {
	*db.MemoryDB

	mu   sync.Mutex
	rows []string
}

func (r *lockRecorder) InTx(ctx context.Context, fn func(tx db.Tx) error) error {
	return r.MemoryDB.InTx(ctx, func(tx db.Tx) error {
		return fn(&recordingTx{Tx: tx, rec: r})
	})
}

func (r *lockRecorder) record(row string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
}

// take returns the recorded rows and starts a new recording
func (r *lockRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.rows
	r.rows = nil
	return out
}

type recordingTx struct {
	db.Tx
	rec *lockRecorder
}

func (t *recordingTx) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	t.rec.record("job")
	return t.Tx.GetJob(ctx, id)
}

func (t *recordingTx) GetJoinRequest(ctx context.Context, id int64) (*model.JoinRequest, error) {
	t.rec.record("request")
	return t.Tx.GetJoinRequest(ctx, id)
}

func (t *recordingTx) ListJoinRequestsForJob(ctx context.Context, jobID int64) ([]model.JoinRequest, error) {
	t.rec.record("request")
	return t.Tx.ListJoinRequestsForJob(ctx, jobID)
}

func (t *recordingTx) GetOffer(ctx context.Context, id int64) (*model.Offer, error) {
	t.rec.record("offer")
	return t.Tx.GetOffer(ctx, id)
}

func (t *recordingTx) ListOffersForJob(ctx context.Context, jobID int64) ([]model.Offer, error) {
	t.rec.record("offer")
	return t.Tx.ListOffersForJob(ctx, jobID)
}

// recordLocks routes the fixture's service through a lockRecorder
func (f *fixture) recordLocks() *lockRecorder {
	rec := &lockRecorder{MemoryDB: f.store}
	f.svc = New(rec, f.notifier, zap.NewNop(), Options{Clock: f.clock})
	return rec
}
