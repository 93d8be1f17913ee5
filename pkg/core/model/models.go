package model

import "time"

type Role string

const (
	RoleWorker Role = "worker"
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleWorker || r == RoleClient || r == RoleAdmin
}

// Actor is the caller resolved by the request layer before any mutation runs
type Actor struct {
	ID   int64
	Role Role
}

// Appointment represents one scheduled booking for a home
type Appointment struct {
	ID          int64
	HomeID      int64
	RequesterID int64
	Date        string     // YYYY-MM-DD, no time of day
	StartsAt    *time.Time // optional authoritative start, preferred over Date when set
	PriceCents  int64
	Completed   bool
	Cancelled   bool

	AssignedWorkerID int64 // 0 when nobody is assigned
	State            CoordinationState
	ClientResponse   ClientResponse

	ResponseExpiresAt *time.Time
	BackupExpiresAt   *time.Time

	LastReminderAt *time.Time
	RemindersSent  int
}

// Home represents the property being cleaned.
// Address, PostalCode, AccessCode, AccessNotes and ContactPhone are stored encrypted.
type Home struct {
	ID                int64
	OwnerID           int64
	Name              string
	Address           string
	PostalCode        string
	City              string
	State             string
	AccessCode        string
	AccessNotes       string
	ContactPhone      string
	HasGate           bool
	Beds              int
	Baths             int
	AreaSqFt          int
	HasPets           bool
	PetNotes          string
	PreferredWorkerID int64
	TimeToCleanMins   int
	SchedulingNotes   string
	AddressHash       string // digest of the plaintext address and postal code
}

type JobStatus string

const (
	JobStatusOpen      JobStatus = "open"
	JobStatusFilled    JobStatus = "filled"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusCompleted JobStatus = "completed"
)

// Job tracks how many workers an appointment needs and how many are confirmed
type Job struct {
	ID               int64
	AppointmentID    int64
	TotalRequired    int
	ConfirmedCount   int
	Status           JobStatus
	CoordinatorID    int64
	AutoGenerated    bool
	EstimatedMinutes int
	CreatedAt        time.Time
}

// RemainingSlots returns max(0, TotalRequired - ConfirmedCount)
func (j Job) RemainingSlots() int {
	remaining := j.TotalRequired - j.ConfirmedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsFilled reports whether every required slot is confirmed
func (j Job) IsFilled() bool {
	return j.ConfirmedCount >= j.TotalRequired
}

// IsClosed reports whether the job reached a terminal status
func (j Job) IsClosed() bool {
	return j.Status == JobStatusCancelled || j.Status == JobStatusCompleted
}

// SyncStatus flips an open job to filled (and back) from its counters.
// Terminal statuses are left alone.
func (j *Job) SyncStatus() {
	if j.IsClosed() {
		return
	}
	if j.IsFilled() {
		j.Status = JobStatusFilled
	} else {
		j.Status = JobStatusOpen
	}
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusDeclined  RequestStatus = "declined"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusExpired   RequestStatus = "expired"
)

// SystemActorID marks decisions taken by a sweep rather than a person
const SystemActorID int64 = 0

// JoinRequest is a candidate's request to fill one slot of a job
type JoinRequest struct {
	ID            int64
	JobID         int64
	CandidateID   int64
	ProposedUnits []Unit
	Status        RequestStatus
	DeclineReason string
	DecidedBy     int64
	DecidedAt     *time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// IsExpiredAt reports whether a pending request has passed its deadline
func (r JoinRequest) IsExpiredAt(now time.Time) bool {
	return r.Status == RequestStatusPending && now.After(r.ExpiresAt)
}

type OfferType string

const (
	OfferTypePool   OfferType = "pool"
	OfferTypeBackup OfferType = "backup"
)

func (t OfferType) IsValid() bool {
	return t == OfferTypePool || t == OfferTypeBackup
}

type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusDeclined OfferStatus = "declined"
	OfferStatusExpired  OfferStatus = "expired"
)

// Offer advertises available work to a candidate who has not been vetted for the job yet
type Offer struct {
	ID                int64
	JobID             int64
	CandidateID       int64
	OfferType         OfferType
	CompensationCents int64
	OfferedUnits      []Unit
	Status            OfferStatus
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

type UnitType string

const (
	UnitBedroom  UnitType = "bedroom"
	UnitBathroom UnitType = "bathroom"
	UnitKitchen  UnitType = "kitchen"
	UnitLiving   UnitType = "living"
	UnitOther    UnitType = "other"
)

func (t UnitType) IsValid() bool {
	switch t {
	case UnitBedroom, UnitBathroom, UnitKitchen, UnitLiving, UnitOther:
		return true
	}
	return false
}

// Unit identifies one room of a home within a job
type Unit struct {
	Type   UnitType `json:"unitType"`
	Number int      `json:"unitNumber"`
	Label  string   `json:"label,omitempty"`
}

// RoomAssignment binds a unit to a worker within a job
type RoomAssignment struct {
	ID       int64
	JobID    int64
	WorkerID int64
	Unit     Unit
}

// Notification is the in-app record of a message sent to a user
type Notification struct {
	ID             string
	RecipientID    int64
	Type           string
	Title          string
	Body           string
	AppointmentID  int64
	JobID          int64
	ActionRequired bool
	Actioned       bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}
