package model

import (
	"errors"
	"fmt"
	"time"
)

// CoordinationState is the single source of truth for where an appointment
// stands in finding a worker. It replaces the former combination of
// response-pending, assigned, opened-to-pool and backup-notified flags.
type CoordinationState string

const (
	StateUnassigned      CoordinationState = "unassigned"
	StateBackupNotified  CoordinationState = "backup_notified"
	StateAwaitingClient  CoordinationState = "awaiting_client"
	StateResponseExpired CoordinationState = "response_expired"
	StateOpenToPool      CoordinationState = "open_to_pool"
	StateAssigned        CoordinationState = "assigned"
)

type ClientResponse string

const (
	ClientResponseNone     ClientResponse = "none"
	ClientResponsePending  ClientResponse = "pending"
	ClientResponseAccepted ClientResponse = "accepted"
	ClientResponseExpired  ClientResponse = "expired"
)

// ErrIllegalTransition is returned when a coordination change is not allowed from the current state
var ErrIllegalTransition = errors.New("illegal coordination transition")

var legalTransitions = map[CoordinationState][]CoordinationState{
	StateUnassigned:      {StateBackupNotified, StateOpenToPool, StateAssigned},
	StateBackupNotified:  {StateAwaitingClient, StateAssigned},
	StateAwaitingClient:  {StateResponseExpired, StateOpenToPool, StateUnassigned},
	StateResponseExpired: {StateOpenToPool, StateUnassigned},
	StateOpenToPool:      {StateAssigned},
	StateAssigned:        {StateUnassigned},
}

func (s CoordinationState) IsValid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is allowed
func (s CoordinationState) CanTransition(next CoordinationState) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (a *Appointment) transition(next CoordinationState) error {
	if !a.State.CanTransition(next) {
		return fmt.Errorf("%w: appointment %d %s -> %s", ErrIllegalTransition, a.ID, a.State, next)
	}
	a.State = next
	return nil
}

// ClientResponsePending reports whether the requester has been asked to choose and not answered
func (a Appointment) ClientResponsePending() bool {
	return a.State == StateAwaitingClient
}

func (a Appointment) HasBeenAssigned() bool {
	return a.State == StateAssigned
}

func (a Appointment) OpenToPublicPool() bool {
	return a.State == StateOpenToPool
}

func (a Appointment) BackupNotified() bool {
	return a.State == StateBackupNotified
}

// NotifyBackups records that backup candidates were contacted and must answer by expiresAt
func (a *Appointment) NotifyBackups(expiresAt time.Time) error {
	if err := a.transition(StateBackupNotified); err != nil {
		return err
	}
	a.BackupExpiresAt = &expiresAt
	return nil
}

// EscalateToClient asks the requester to choose between cancelling and opening to the pool
func (a *Appointment) EscalateToClient(responseExpiresAt time.Time) error {
	if err := a.transition(StateAwaitingClient); err != nil {
		return err
	}
	a.ClientResponse = ClientResponsePending
	a.ResponseExpiresAt = &responseExpiresAt
	return nil
}

// ExpireClientResponse closes an unanswered escalation
func (a *Appointment) ExpireClientResponse() error {
	if err := a.transition(StateResponseExpired); err != nil {
		return err
	}
	a.ClientResponse = ClientResponseExpired
	return nil
}

// OpenToPool makes the appointment visible to the public worker pool
func (a *Appointment) OpenToPool() error {
	wasAwaiting := a.State == StateAwaitingClient
	if err := a.transition(StateOpenToPool); err != nil {
		return err
	}
	if wasAwaiting {
		a.ClientResponse = ClientResponseAccepted
	}
	return nil
}

// Assign binds a worker to the appointment
func (a *Appointment) Assign(workerID int64) error {
	if workerID <= 0 {
		return fmt.Errorf("%w: worker id must be positive", ErrIllegalTransition)
	}
	if err := a.transition(StateAssigned); err != nil {
		return err
	}
	a.AssignedWorkerID = workerID
	return nil
}

// Unassign returns the appointment to the unassigned state
func (a *Appointment) Unassign() error {
	wasAwaiting := a.State == StateAwaitingClient
	if err := a.transition(StateUnassigned); err != nil {
		return err
	}
	if wasAwaiting {
		a.ClientResponse = ClientResponseAccepted
	}
	a.AssignedWorkerID = 0
	a.BackupExpiresAt = nil
	return nil
}

// RecordReminder stamps the reminder bookkeeping
func (a *Appointment) RecordReminder(now time.Time) {
	a.LastReminderAt = &now
	a.RemindersSent++
}

// ReminderSentSince reports whether a reminder was already stamped at or after since
func (a Appointment) ReminderSentSince(since time.Time) bool {
	return a.LastReminderAt != nil && !a.LastReminderAt.Before(since)
}
