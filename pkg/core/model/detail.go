package model

// JobDetail is a job loaded together with everything needed to present it
type JobDetail struct {
	Job         Job
	Appointment Appointment
	Home        Home
	Assignments []RoomAssignment
}

// OfferDetail is an offer with its job loaded
type OfferDetail struct {
	Offer Offer
	JobDetail
}

// OwnerOf returns the user who approves requests for the job:
// the coordinator, or the requesting client when the job was generated without one.
func OwnerOf(job Job, appt Appointment) int64 {
	if job.CoordinatorID != 0 {
		return job.CoordinatorID
	}
	return appt.RequesterID
}
