package serializer

import (
	"time"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

// HomeView is the JSON shape of a home. Sensitive fields are omitted unless disclosed.
type HomeView struct {
	ID              int64  `json:"id"`
	Name            string `json:"nickName"`
	City            string `json:"city"`
	State           string `json:"state"`
	Beds            int    `json:"numBeds"`
	Baths           int    `json:"numBaths"`
	AreaSqFt        int    `json:"sqft,omitempty"`
	HasPets         bool   `json:"hasPets"`
	PetNotes        string `json:"petNotes,omitempty"`
	TimeToCleanMins int    `json:"timeToCleanMins,omitempty"`
	SchedulingNotes string `json:"schedulingNotes,omitempty"`

	Address      string `json:"address,omitempty"`
	PostalCode   string `json:"zipcode,omitempty"`
	AccessCode   string `json:"keyPadCode,omitempty"`
	AccessNotes  string `json:"keyLocation,omitempty"`
	ContactPhone string `json:"contact,omitempty"`
	HasGate      *bool  `json:"hasGate,omitempty"`

	FullAddressIncluded bool `json:"fullAddressIncluded"`
}

type AppointmentView struct {
	ID         int64      `json:"id"`
	Date       string     `json:"date"`
	StartsAt   *time.Time `json:"startsAt,omitempty"`
	PriceCents int64      `json:"priceCents"`
	Completed  bool       `json:"completed"`
	Cancelled  bool       `json:"cancelled"`
	State      string     `json:"coordinationState"`
}

type AssignmentView struct {
	WorkerID   int64          `json:"workerId"`
	UnitType   model.UnitType `json:"unitType"`
	UnitNumber int            `json:"unitNumber"`
	Label      string         `json:"label"`
}

// JobView is the JSON shape of a job with its appointment, home and room assignments
type JobView struct {
	ID               int64                  `json:"id"`
	Status           model.JobStatus        `json:"status"`
	TotalRequired    int                    `json:"totalCleanersRequired"`
	ConfirmedCount   int                    `json:"cleanersConfirmed"`
	RemainingSlots   int                    `json:"remainingSlots"`
	IsFilled         bool                   `json:"isFilled"`
	CoordinatorID    int64                  `json:"primaryCleanerId,omitempty"`
	AutoGenerated    bool                   `json:"isAutoGenerated"`
	EstimatedMinutes int                    `json:"estimatedMinutes,omitempty"`
	Appointment      AppointmentView        `json:"appointment"`
	Home             HomeView               `json:"home"`
	Assignments      []AssignmentView       `json:"roomAssignments"`
	RoomCounts       map[model.UnitType]int `json:"roomCounts"`
}

// OfferView is the JSON shape of an offer. The home never carries the exact address.
type OfferView struct {
	ID                int64             `json:"id"`
	OfferType         model.OfferType   `json:"offerType"`
	Status            model.OfferStatus `json:"status"`
	CompensationCents int64             `json:"compensationCents"`
	OfferedUnits      []model.Unit      `json:"offeredUnits"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	Job               JobView           `json:"job"`
}

// OffersResponse is the combined listing of personal offers and pool jobs
type OffersResponse struct {
	PersonalOffers []OfferView `json:"personalOffers"`
	AvailableJobs  []JobView   `json:"availableJobs"`
}
