// Package serializer renders jobs, offers and homes for API responses,
// applying the address visibility policy to every home it emits.
package serializer

import (
	"time"

	"github.com/jakechorley/teamclean/pkg/core/allocator"
	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/visibility"
)

// Decoder turns stored field values into plaintext. It must tolerate values
// that were never encrypted and return them unchanged.
type Decoder interface {
	Decrypt(value string) string
}

// Serializer renders views at a point in time
type Serializer struct {
	policy  visibility.Policy
	decoder Decoder
	now     func() time.Time
}

type Option func(*Serializer)

// WithClock overrides the time used to evaluate the visibility window
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) { s.now = now }
}

// New creates a serializer
func New(policy visibility.Policy, decoder Decoder, opts ...Option) *Serializer {
	s := &Serializer{policy: policy, decoder: decoder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withinWindow prefers the appointment's explicit start over its date
func (s *Serializer) withinWindow(appt model.Appointment) bool {
	now := s.now()
	if appt.StartsAt != nil {
		return s.policy.IsWithinWindowAt(*appt.StartsAt, now)
	}
	return s.policy.IsWithinWindow(appt.Date, now)
}

// SerializeOne renders a job for a confirmed viewer. With a nil include the
// address is disclosed per the visibility window; a non-nil include always wins.
func (s *Serializer) SerializeOne(d model.JobDetail, include *bool) JobView {
	reveal := visibility.ShouldRevealFullAddress(visibility.ViewConfirmed, s.withinWindow(d.Appointment), include)
	return s.jobView(d, reveal)
}

// SerializeOffer renders an offer. The exact address is never disclosed.
func (s *Serializer) SerializeOffer(d model.OfferDetail) OfferView {
	units := d.Offer.OfferedUnits
	if units == nil {
		units = []model.Unit{}
	}
	return OfferView{
		ID:                d.Offer.ID,
		OfferType:         d.Offer.OfferType,
		Status:            d.Offer.Status,
		CompensationCents: d.Offer.CompensationCents,
		OfferedUnits:      units,
		ExpiresAt:         d.Offer.ExpiresAt,
		Job:               s.jobView(d.JobDetail, visibility.ShouldRevealFullAddress(visibility.ViewPendingOffer, false, nil)),
	}
}

// SerializeOffersResponse renders a candidate's offers and the open pool.
// Neither list discloses exact addresses, whatever each job's window.
func (s *Serializer) SerializeOffersResponse(personal []model.OfferDetail, available []model.JobDetail) OffersResponse {
	resp := OffersResponse{
		PersonalOffers: make([]OfferView, 0, len(personal)),
		AvailableJobs:  make([]JobView, 0, len(available)),
	}
	for _, d := range personal {
		resp.PersonalOffers = append(resp.PersonalOffers, s.SerializeOffer(d))
	}
	for _, d := range available {
		resp.AvailableJobs = append(resp.AvailableJobs, s.jobView(d, visibility.ShouldRevealFullAddress(visibility.ViewPoolListing, false, nil)))
	}
	return resp
}

// SerializeHome renders a home. The location and access fields are disclosed together or not at all.
func (s *Serializer) SerializeHome(h model.Home, includeFullAddress bool) HomeView {
	view := HomeView{
		ID:              h.ID,
		Name:            h.Name,
		City:            h.City,
		State:           h.State,
		Beds:            h.Beds,
		Baths:           h.Baths,
		AreaSqFt:        h.AreaSqFt,
		HasPets:         h.HasPets,
		PetNotes:        h.PetNotes,
		TimeToCleanMins: h.TimeToCleanMins,
		SchedulingNotes: h.SchedulingNotes,
	}
	if !includeFullAddress {
		return view
	}

	hasGate := h.HasGate
	view.Address = s.decoder.Decrypt(h.Address)
	view.PostalCode = s.decoder.Decrypt(h.PostalCode)
	view.AccessCode = s.decoder.Decrypt(h.AccessCode)
	view.AccessNotes = s.decoder.Decrypt(h.AccessNotes)
	view.ContactPhone = s.decoder.Decrypt(h.ContactPhone)
	view.HasGate = &hasGate
	view.FullAddressIncluded = true
	return view
}

func (s *Serializer) jobView(d model.JobDetail, reveal bool) JobView {
	assignments := make([]AssignmentView, 0, len(d.Assignments))
	for _, a := range d.Assignments {
		assignments = append(assignments, AssignmentView{
			WorkerID:   a.WorkerID,
			UnitType:   a.Unit.Type,
			UnitNumber: a.Unit.Number,
			Label:      a.Unit.Label,
		})
	}

	return JobView{
		ID:               d.Job.ID,
		Status:           d.Job.Status,
		TotalRequired:    d.Job.TotalRequired,
		ConfirmedCount:   d.Job.ConfirmedCount,
		RemainingSlots:   d.Job.RemainingSlots(),
		IsFilled:         d.Job.IsFilled(),
		CoordinatorID:    d.Job.CoordinatorID,
		AutoGenerated:    d.Job.AutoGenerated,
		EstimatedMinutes: d.Job.EstimatedMinutes,
		Appointment: AppointmentView{
			ID:         d.Appointment.ID,
			Date:       d.Appointment.Date,
			StartsAt:   d.Appointment.StartsAt,
			PriceCents: d.Appointment.PriceCents,
			Completed:  d.Appointment.Completed,
			Cancelled:  d.Appointment.Cancelled,
			State:      string(d.Appointment.State),
		},
		Home:        s.SerializeHome(d.Home, reveal),
		Assignments: assignments,
		RoomCounts:  allocator.CountByType(d.Assignments),
	}
}
