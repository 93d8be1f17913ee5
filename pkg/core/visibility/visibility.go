// Package visibility decides when a worker may see the exact location of a home.
//
// Only a confirmed worker learns the exact address, and only once the appointment
// is close enough to be operationally relevant. Pool listings and pending offers
// never carry it.
package visibility

import (
	"time"
)

const (
	// DefaultWindow is how far ahead of the appointment a confirmed worker sees the address
	DefaultWindow = 48 * time.Hour

	// DefaultReferenceHour is the assumed start hour for appointments that only carry a date
	DefaultReferenceHour = 10

	dateLayout = "2006-01-02"
)

type ViewKind string

const (
	ViewConfirmed    ViewKind = "confirmed"
	ViewPoolListing  ViewKind = "pool_listing"
	ViewPendingOffer ViewKind = "pending_offer"
)

func (k ViewKind) IsConfirmed() bool {
	return k == ViewConfirmed
}

// Policy holds the window parameters
type Policy struct {
	Window        time.Duration
	ReferenceHour int
	Location      *time.Location
}

// NewPolicy returns a policy with the default 48h window and 10:00 UTC reference hour
func NewPolicy() Policy {
	return Policy{
		Window:        DefaultWindow,
		ReferenceHour: DefaultReferenceHour,
		Location:      time.UTC,
	}
}

// AppointmentStart converts a date-only value into a start instant using the reference hour
func (p Policy) AppointmentStart(appointmentDate string) (time.Time, bool) {
	if appointmentDate == "" {
		return time.Time{}, false
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(dateLayout, appointmentDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(p.ReferenceHour) * time.Hour), true
}

// IsWithinWindow reports whether the appointment starts between now and now+Window inclusive.
// An empty or unparseable date is never within the window.
func (p Policy) IsWithinWindow(appointmentDate string, now time.Time) bool {
	start, ok := p.AppointmentStart(appointmentDate)
	if !ok {
		return false
	}
	return p.IsWithinWindowAt(start, now)
}

// IsWithinWindowAt is IsWithinWindow for appointments with an authoritative start time
func (p Policy) IsWithinWindowAt(start, now time.Time) bool {
	if start.IsZero() {
		return false
	}
	until := start.Sub(now)
	return until >= 0 && until <= p.Window
}

// ShouldRevealFullAddress applies the disclosure rules. A non-nil override always wins.
func ShouldRevealFullAddress(kind ViewKind, withinWindow bool, override *bool) bool {
	if override != nil {
		return *override
	}
	if !kind.IsConfirmed() {
		return false
	}
	return withinWindow
}
