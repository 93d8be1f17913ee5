package api

import (
	"time"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/serializer"
)

type requestView struct {
	ID            int64               `json:"id"`
	JobID         int64               `json:"jobId"`
	CandidateID   int64               `json:"candidateId"`
	ProposedUnits []model.Unit        `json:"proposedUnits"`
	Status        model.RequestStatus `json:"status"`
	DeclineReason string              `json:"declineReason,omitempty"`
	DecidedBy     int64               `json:"decidedBy,omitempty"`
	DecidedAt     *time.Time          `json:"decidedAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	ExpiresAt     time.Time           `json:"expiresAt"`
}

func newRequestView(r model.JoinRequest) requestView {
	units := r.ProposedUnits
	if units == nil {
		units = []model.Unit{}
	}
	return requestView{
		ID:            r.ID,
		JobID:         r.JobID,
		CandidateID:   r.CandidateID,
		ProposedUnits: units,
		Status:        r.Status,
		DeclineReason: r.DeclineReason,
		DecidedBy:     r.DecidedBy,
		DecidedAt:     r.DecidedAt,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
}

func newRequestViews(reqs []model.JoinRequest) []requestView {
	views := make([]requestView, 0, len(reqs))
	for _, r := range reqs {
		views = append(views, newRequestView(r))
	}
	return views
}

// jobSummary is the job shape returned by mutations; it carries no home data
type jobSummary struct {
	ID             int64           `json:"id"`
	AppointmentID  int64           `json:"appointmentId"`
	Status         model.JobStatus `json:"status"`
	TotalRequired  int             `json:"totalCleanersRequired"`
	ConfirmedCount int             `json:"cleanersConfirmed"`
	RemainingSlots int             `json:"remainingSlots"`
	IsFilled       bool            `json:"isFilled"`
	CoordinatorID  int64           `json:"primaryCleanerId,omitempty"`
}

func newJobSummary(j model.Job) jobSummary {
	return jobSummary{
		ID:             j.ID,
		AppointmentID:  j.AppointmentID,
		Status:         j.Status,
		TotalRequired:  j.TotalRequired,
		ConfirmedCount: j.ConfirmedCount,
		RemainingSlots: j.RemainingSlots(),
		IsFilled:       j.IsFilled(),
		CoordinatorID:  j.CoordinatorID,
	}
}

func newAssignmentViews(assignments []model.RoomAssignment) []serializer.AssignmentView {
	views := make([]serializer.AssignmentView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, serializer.AssignmentView{
			WorkerID:   a.WorkerID,
			UnitType:   a.Unit.Type,
			UnitNumber: a.Unit.Number,
			Label:      a.Unit.Label,
		})
	}
	return views
}

type offerSummary struct {
	ID                int64             `json:"id"`
	JobID             int64             `json:"jobId"`
	CandidateID       int64             `json:"candidateId"`
	OfferType         model.OfferType   `json:"offerType"`
	Status            model.OfferStatus `json:"status"`
	CompensationCents int64             `json:"compensationCents"`
	OfferedUnits      []model.Unit      `json:"offeredUnits"`
	ExpiresAt         time.Time         `json:"expiresAt"`
}

func newOfferSummary(o model.Offer) offerSummary {
	units := o.OfferedUnits
	if units == nil {
		units = []model.Unit{}
	}
	return offerSummary{
		ID:                o.ID,
		JobID:             o.JobID,
		CandidateID:       o.CandidateID,
		OfferType:         o.OfferType,
		Status:            o.Status,
		CompensationCents: o.CompensationCents,
		OfferedUnits:      units,
		ExpiresAt:         o.ExpiresAt,
	}
}
