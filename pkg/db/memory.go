package db

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

// MemoryDB is an in-process store used for local runs and tests.
// A single mutex serialises every transaction, and a failed transaction
// restores the snapshot taken when it began.
type MemoryDB struct {
	mu sync.Mutex

	appointments  map[int64]model.Appointment
	homes         map[int64]model.Home
	jobs          map[int64]model.Job
	joinRequests  map[int64]model.JoinRequest
	offers        map[int64]model.Offer
	assignments   map[int64]model.RoomAssignment
	notifications []model.Notification

	seq int64
}

// NewMemoryDB creates an empty in-memory store
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		appointments: make(map[int64]model.Appointment),
		homes:        make(map[int64]model.Home),
		jobs:         make(map[int64]model.Job),
		joinRequests: make(map[int64]model.JoinRequest),
		offers:       make(map[int64]model.Offer),
		assignments:  make(map[int64]model.RoomAssignment),
	}
}

type memorySnapshot struct {
	appointments  map[int64]model.Appointment
	homes         map[int64]model.Home
	jobs          map[int64]model.Job
	joinRequests  map[int64]model.JoinRequest
	offers        map[int64]model.Offer
	assignments   map[int64]model.RoomAssignment
	notifications []model.Notification
	seq           int64
}

func (m *MemoryDB) snapshot() memorySnapshot {
	return memorySnapshot{
		appointments:  maps.Clone(m.appointments),
		homes:         maps.Clone(m.homes),
		jobs:          maps.Clone(m.jobs),
		joinRequests:  maps.Clone(m.joinRequests),
		offers:        maps.Clone(m.offers),
		assignments:   maps.Clone(m.assignments),
		notifications: slices.Clone(m.notifications),
		seq:           m.seq,
	}
}

func (m *MemoryDB) restore(s memorySnapshot) {
	m.appointments = s.appointments
	m.homes = s.homes
	m.jobs = s.jobs
	m.joinRequests = s.joinRequests
	m.offers = s.offers
	m.assignments = s.assignments
	m.notifications = s.notifications
	m.seq = s.seq
}

func (m *MemoryDB) nextID() int64 {
	m.seq++
	return m.seq
}

// InTx runs fn while holding the store lock
func (m *MemoryDB) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&memoryTx{db: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// SeedAppointment stores an appointment as-is, assigning an ID when it has none
func (m *MemoryDB) SeedAppointment(appt model.Appointment) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if appt.ID == 0 {
		appt.ID = m.nextID()
	} else if appt.ID > m.seq {
		m.seq = appt.ID
	}
	if appt.State == "" {
		appt.State = model.StateUnassigned
	}
	if appt.ClientResponse == "" {
		appt.ClientResponse = model.ClientResponseNone
	}
	m.appointments[appt.ID] = appt
	return appt.ID
}

// SeedHome stores a home as-is, assigning an ID when it has none
func (m *MemoryDB) SeedHome(home model.Home) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if home.ID == 0 {
		home.ID = m.nextID()
	} else if home.ID > m.seq {
		m.seq = home.ID
	}
	m.homes[home.ID] = home
	return home.ID
}

// Notifications returns a copy of every stored notification
func (m *MemoryDB) Notifications() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.notifications)
}

// Reader methods outside a transaction

func (m *MemoryDB) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).GetAppointment(ctx, id)
}

func (m *MemoryDB) GetHome(ctx context.Context, id int64) (*model.Home, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).GetHome(ctx, id)
}

func (m *MemoryDB) FindHomeByAddressHash(ctx context.Context, ownerID int64, hash string) (*model.Home, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).FindHomeByAddressHash(ctx, ownerID, hash)
}

func (m *MemoryDB) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).GetJob(ctx, id)
}

func (m *MemoryDB) GetJobByAppointment(ctx context.Context, appointmentID int64) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).GetJobByAppointment(ctx, appointmentID)
}

func (m *MemoryDB) GetJoinRequest(ctx context.Context, id int64) (*model.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).GetJoinRequest(ctx, id)
}

func (m *MemoryDB) GetOffer(ctx context.Context, id int64) (*model.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).GetOffer(ctx, id)
}

func (m *MemoryDB) ListJoinRequestsForJob(ctx context.Context, jobID int64) ([]model.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).ListJoinRequestsForJob(ctx, jobID)
}

func (m *MemoryDB) ListOffersForJob(ctx context.Context, jobID int64) ([]model.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).ListOffersForJob(ctx, jobID)
}

func (m *MemoryDB) ListRoomAssignments(ctx context.Context, jobID int64) ([]model.RoomAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{db: m}).ListRoomAssignments(ctx, jobID)
}

// Queries

func (m *MemoryDB) ListJoinRequests(ctx context.Context, filter JoinRequestFilter) ([]model.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.JoinRequest
	for _, req := range m.joinRequests {
		if filter.CandidateID != 0 && req.CandidateID != filter.CandidateID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.OwnerID != 0 || filter.AppointmentID != 0 {
			job, ok := m.jobs[req.JobID]
			if !ok {
				continue
			}
			if filter.OwnerID != 0 && model.OwnerOf(job, m.appointments[job.AppointmentID]) != filter.OwnerID {
				continue
			}
			if filter.AppointmentID != 0 && job.AppointmentID != filter.AppointmentID {
				continue
			}
		}
		out = append(out, cloneRequest(req))
	}
	sortRequests(out)
	return out, nil
}

func (m *MemoryDB) ListOffersForCandidate(ctx context.Context, candidateID int64, status model.OfferStatus) ([]model.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Offer
	for _, offer := range m.offers {
		if offer.CandidateID != candidateID {
			continue
		}
		if status != "" && offer.Status != status {
			continue
		}
		out = append(out, cloneOffer(offer))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDB) ListOpenJobs(ctx context.Context, fromDate string) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Job
	for _, job := range m.jobs {
		if job.Status != model.JobStatusOpen {
			continue
		}
		appt, ok := m.appointments[job.AppointmentID]
		if !ok || appt.Cancelled || appt.Completed || appt.Date < fromDate {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDB) FindExpiredClientResponses(ctx context.Context, now time.Time) ([]model.Appointment, error) {
	return m.findAppointments(func(a model.Appointment) bool {
		return a.State == model.StateAwaitingClient &&
			a.ResponseExpiresAt != nil && a.ResponseExpiresAt.Before(now)
	}), nil
}

func (m *MemoryDB) FindTimedOutBackups(ctx context.Context, now time.Time) ([]model.Appointment, error) {
	return m.findAppointments(func(a model.Appointment) bool {
		return a.State == model.StateBackupNotified && !a.Cancelled && !a.Completed &&
			a.BackupExpiresAt != nil && a.BackupExpiresAt.Before(now)
	}), nil
}

func (m *MemoryDB) FindUnassignedBetween(ctx context.Context, fromDate, toDate string, remindedBefore time.Time) ([]model.Appointment, error) {
	return m.findAppointments(func(a model.Appointment) bool {
		return a.State != model.StateAssigned && !a.Cancelled && !a.Completed &&
			a.Date >= fromDate && a.Date <= toDate &&
			(a.LastReminderAt == nil || a.LastReminderAt.Before(remindedBefore))
	}), nil
}

func (m *MemoryDB) findAppointments(match func(model.Appointment) bool) []model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Appointment
	for _, a := range m.appointments {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryDB) FindExpiredJoinRequests(ctx context.Context, now time.Time) ([]model.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.JoinRequest
	for _, req := range m.joinRequests {
		if req.IsExpiredAt(now) {
			out = append(out, cloneRequest(req))
		}
	}
	sortRequests(out)
	return out, nil
}

func (m *MemoryDB) FindExpiredOffers(ctx context.Context, now time.Time) ([]model.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Offer
	for _, offer := range m.offers {
		if offer.Status == model.OfferStatusPending && now.After(offer.ExpiresAt) {
			out = append(out, cloneOffer(offer))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDB) InsertNotification(ctx context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *MemoryDB) MarkNotificationsActioned(ctx context.Context, appointmentID int64, types []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for i, n := range m.notifications {
		if n.AppointmentID != appointmentID || !n.ActionRequired || n.Actioned {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, n.Type) {
			continue
		}
		m.notifications[i].Actioned = true
		count++
	}
	return count, nil
}

func (m *MemoryDB) ExpireNotifications(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for i, n := range m.notifications {
		if n.ActionRequired && !n.Actioned && n.ExpiresAt != nil && n.ExpiresAt.Before(now) {
			m.notifications[i].Actioned = true
			count++
		}
	}
	return count, nil
}

var (
	_ Database = (*MemoryDB)(nil)
	_ Tx       = (*memoryTx)(nil)
)

// memoryTx runs with MemoryDB.mu already held
type memoryTx struct {
	db *MemoryDB
}

func (t *memoryTx) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	appt, ok := t.db.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	return &appt, nil
}

func (t *memoryTx) GetHome(ctx context.Context, id int64) (*model.Home, error) {
	home, ok := t.db.homes[id]
	if !ok {
		return nil, fmt.Errorf("home %d: %w", id, ErrNotFound)
	}
	return &home, nil
}

func (t *memoryTx) FindHomeByAddressHash(ctx context.Context, ownerID int64, hash string) (*model.Home, error) {
	if hash != "" {
		for _, h := range t.db.homes {
			if h.OwnerID == ownerID && h.AddressHash == hash {
				return &h, nil
			}
		}
	}
	return nil, fmt.Errorf("home with address hash for owner %d: %w", ownerID, ErrNotFound)
}

func (t *memoryTx) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	job, ok := t.db.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	return &job, nil
}

func (t *memoryTx) GetJobByAppointment(ctx context.Context, appointmentID int64) (*model.Job, error) {
	for _, job := range t.db.jobs {
		if job.AppointmentID == appointmentID {
			j := job
			return &j, nil
		}
	}
	return nil, fmt.Errorf("job for appointment %d: %w", appointmentID, ErrNotFound)
}

func (t *memoryTx) GetJoinRequest(ctx context.Context, id int64) (*model.JoinRequest, error) {
	req, ok := t.db.joinRequests[id]
	if !ok {
		return nil, fmt.Errorf("join request %d: %w", id, ErrNotFound)
	}
	req = cloneRequest(req)
	return &req, nil
}

func (t *memoryTx) GetOffer(ctx context.Context, id int64) (*model.Offer, error) {
	offer, ok := t.db.offers[id]
	if !ok {
		return nil, fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	offer = cloneOffer(offer)
	return &offer, nil
}

func (t *memoryTx) ListJoinRequestsForJob(ctx context.Context, jobID int64) ([]model.JoinRequest, error) {
	var out []model.JoinRequest
	for _, req := range t.db.joinRequests {
		if req.JobID == jobID {
			out = append(out, cloneRequest(req))
		}
	}
	sortRequests(out)
	return out, nil
}

func (t *memoryTx) ListOffersForJob(ctx context.Context, jobID int64) ([]model.Offer, error) {
	var out []model.Offer
	for _, offer := range t.db.offers {
		if offer.JobID == jobID {
			out = append(out, cloneOffer(offer))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) ListRoomAssignments(ctx context.Context, jobID int64) ([]model.RoomAssignment, error) {
	var out []model.RoomAssignment
	for _, a := range t.db.assignments {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) UpdateAppointment(ctx context.Context, appt *model.Appointment) error {
	if _, ok := t.db.appointments[appt.ID]; !ok {
		return fmt.Errorf("appointment %d: %w", appt.ID, ErrNotFound)
	}
	t.db.appointments[appt.ID] = *appt
	return nil
}

func (t *memoryTx) InsertHome(ctx context.Context, home *model.Home) error {
	if _, err := t.FindHomeByAddressHash(ctx, home.OwnerID, home.AddressHash); err == nil {
		return fmt.Errorf("owner %d already has this address: %w", home.OwnerID, ErrConflict)
	}
	home.ID = t.db.nextID()
	t.db.homes[home.ID] = *home
	return nil
}

func (t *memoryTx) InsertJob(ctx context.Context, job *model.Job) error {
	for _, existing := range t.db.jobs {
		if existing.AppointmentID == job.AppointmentID {
			return fmt.Errorf("appointment %d already has job %d: %w", job.AppointmentID, existing.ID, ErrConflict)
		}
	}
	job.ID = t.db.nextID()
	t.db.jobs[job.ID] = *job
	return nil
}

func (t *memoryTx) UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error {
	job, ok := t.db.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	job.Status = status
	t.db.jobs[jobID] = job
	return nil
}

func (t *memoryTx) IncrementConfirmed(ctx context.Context, jobID int64) (*model.Job, bool, error) {
	job, ok := t.db.jobs[jobID]
	if !ok {
		return nil, false, fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	// Same condition as the Postgres UPDATE
	if job.ConfirmedCount >= job.TotalRequired || job.IsClosed() {
		return &job, false, nil
	}
	job.ConfirmedCount++
	job.SyncStatus()
	t.db.jobs[jobID] = job
	return &job, true, nil
}

func (t *memoryTx) InsertJoinRequest(ctx context.Context, req *model.JoinRequest) error {
	if req.Status == model.RequestStatusPending {
		for _, existing := range t.db.joinRequests {
			if existing.JobID == req.JobID && existing.CandidateID == req.CandidateID &&
				existing.Status == model.RequestStatusPending {
				return fmt.Errorf("candidate %d already has pending request %d: %w", req.CandidateID, existing.ID, ErrConflict)
			}
		}
	}
	req.ID = t.db.nextID()
	t.db.joinRequests[req.ID] = cloneRequest(*req)
	return nil
}

func (t *memoryTx) UpdateJoinRequest(ctx context.Context, req *model.JoinRequest) error {
	if _, ok := t.db.joinRequests[req.ID]; !ok {
		return fmt.Errorf("join request %d: %w", req.ID, ErrNotFound)
	}
	t.db.joinRequests[req.ID] = cloneRequest(*req)
	return nil
}

func (t *memoryTx) InsertOffer(ctx context.Context, offer *model.Offer) error {
	offer.ID = t.db.nextID()
	t.db.offers[offer.ID] = cloneOffer(*offer)
	return nil
}

func (t *memoryTx) UpdateOffer(ctx context.Context, offer *model.Offer) error {
	if _, ok := t.db.offers[offer.ID]; !ok {
		return fmt.Errorf("offer %d: %w", offer.ID, ErrNotFound)
	}
	t.db.offers[offer.ID] = cloneOffer(*offer)
	return nil
}

func (t *memoryTx) InsertRoomAssignments(ctx context.Context, assignments []model.RoomAssignment) error {
	for i := range assignments {
		a := &assignments[i]
		for _, existing := range t.db.assignments {
			if existing.JobID == a.JobID && existing.Unit.Type == a.Unit.Type && existing.Unit.Number == a.Unit.Number {
				return fmt.Errorf("%s %d in job %d: %w", a.Unit.Type, a.Unit.Number, a.JobID, ErrConflict)
			}
		}
		a.ID = t.db.nextID()
		t.db.assignments[a.ID] = *a
	}
	return nil
}

func cloneRequest(r model.JoinRequest) model.JoinRequest {
	r.ProposedUnits = slices.Clone(r.ProposedUnits)
	return r
}

func cloneOffer(o model.Offer) model.Offer {
	o.OfferedUnits = slices.Clone(o.OfferedUnits)
	return o
}

func sortRequests(reqs []model.JoinRequest) {
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
}
