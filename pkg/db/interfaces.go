package db

import (
	"context"
	"errors"
	"time"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness rule
	// (unit already assigned, duplicate pending request, second job for an appointment)
	ErrConflict = errors.New("conflict")
)

// Reader defines the lookups available both inside and outside a transaction.
// Inside a transaction the appointment, job, join request and offer lookups lock the row.
// Transactions lock a job, then its appointment, then the job's requests and offers.
type Reader interface {
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	GetHome(ctx context.Context, id int64) (*model.Home, error)
	// FindHomeByAddressHash returns the owner's home registered under hash
	FindHomeByAddressHash(ctx context.Context, ownerID int64, hash string) (*model.Home, error)
	GetJob(ctx context.Context, id int64) (*model.Job, error)
	GetJobByAppointment(ctx context.Context, appointmentID int64) (*model.Job, error)
	GetJoinRequest(ctx context.Context, id int64) (*model.JoinRequest, error)
	GetOffer(ctx context.Context, id int64) (*model.Offer, error)
	ListJoinRequestsForJob(ctx context.Context, jobID int64) ([]model.JoinRequest, error)
	ListOffersForJob(ctx context.Context, jobID int64) ([]model.Offer, error)
	ListRoomAssignments(ctx context.Context, jobID int64) ([]model.RoomAssignment, error)
}

// Tx defines the operations available inside a transaction
type Tx interface {
	Reader

	UpdateAppointment(ctx context.Context, appt *model.Appointment) error

	// InsertHome returns ErrConflict when the owner already has a home with the same address hash
	InsertHome(ctx context.Context, home *model.Home) error

	InsertJob(ctx context.Context, job *model.Job) error
	UpdateJobStatus(ctx context.Context, jobID int64, status model.JobStatus) error
	// IncrementConfirmed adds one confirmed worker only while a slot remains.
	// It returns the updated job and false when the job was already full.
	IncrementConfirmed(ctx context.Context, jobID int64) (*model.Job, bool, error)

	InsertJoinRequest(ctx context.Context, req *model.JoinRequest) error
	UpdateJoinRequest(ctx context.Context, req *model.JoinRequest) error

	InsertOffer(ctx context.Context, offer *model.Offer) error
	UpdateOffer(ctx context.Context, offer *model.Offer) error

	InsertRoomAssignments(ctx context.Context, assignments []model.RoomAssignment) error
}

// JoinRequestFilter narrows ListJoinRequests. Zero values are ignored.
// OwnerID matches the job coordinator, or the appointment requester for jobs without one.
type JoinRequestFilter struct {
	CandidateID   int64
	OwnerID       int64
	AppointmentID int64
	Status        model.RequestStatus
}

// Database defines every operation of the store.
// Both the in-memory MemoryDB and postgres.DB implement this interface.
type Database interface {
	Reader

	// InTx runs fn in a single transaction, rolling back if fn returns an error
	InTx(ctx context.Context, fn func(tx Tx) error) error

	ListJoinRequests(ctx context.Context, filter JoinRequestFilter) ([]model.JoinRequest, error)
	ListOffersForCandidate(ctx context.Context, candidateID int64, status model.OfferStatus) ([]model.Offer, error)
	ListOpenJobs(ctx context.Context, fromDate string) ([]model.Job, error)

	FindExpiredClientResponses(ctx context.Context, now time.Time) ([]model.Appointment, error)
	FindTimedOutBackups(ctx context.Context, now time.Time) ([]model.Appointment, error)
	FindUnassignedBetween(ctx context.Context, fromDate, toDate string, remindedBefore time.Time) ([]model.Appointment, error)
	FindExpiredJoinRequests(ctx context.Context, now time.Time) ([]model.JoinRequest, error)
	FindExpiredOffers(ctx context.Context, now time.Time) ([]model.Offer, error)

	InsertNotification(ctx context.Context, n *model.Notification) error
	MarkNotificationsActioned(ctx context.Context, appointmentID int64, types []string) (int, error)
	ExpireNotifications(ctx context.Context, now time.Time) (int, error)
}
