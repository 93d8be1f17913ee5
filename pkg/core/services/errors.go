package services

import (
	"errors"

	"github.com/jakechorley/teamclean/pkg/core/allocator"
	"github.com/jakechorley/teamclean/pkg/db"
)

var (
	// ErrNotFound is returned for missing records and for records the caller has no relation to
	ErrNotFound = db.ErrNotFound

	// ErrForbidden is returned when the caller is related to the record but may not act on it
	ErrForbidden = errors.New("forbidden")

	ErrNoSlotsRemaining = errors.New("no slots remaining")
	ErrUnitTaken        = allocator.ErrUnitTaken
	ErrNotPending       = errors.New("request is not pending")
	ErrRequestExpired   = errors.New("request has expired")
	ErrDuplicatePending = errors.New("a pending request already exists for this job")
	ErrJobClosed        = errors.New("job is closed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrHomeExists       = errors.New("home already registered at this address")
)

// ReasonJobFilled is recorded on pending requests declined because the last slot was taken
const ReasonJobFilled = "job filled"
