// Package notify is the outbound notification sink. Every message is recorded
// in-app; messages that ask for it are also emailed when an email channel is configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

// Type discriminators carried in every payload
const (
	TypeJoinRequestReceived  = "join_request_received"
	TypeJoinRequestApproved  = "join_request_approved"
	TypeJoinRequestDeclined  = "join_request_declined"
	TypeJoinRequestCancelled = "join_request_cancelled"
	TypeJoinRequestExpired   = "join_request_expired"
	TypeOfferReceived        = "offer_received"
	TypeOfferExpired         = "offer_expired"
	TypeBackupTimeout        = "backup_timeout_choice"
	TypeResponseExpired      = "client_response_expired"
	TypeUnassignedReminder   = "unassigned_reminder"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

// Payload is the structured part of a message
type Payload struct {
	Type          string `json:"type"`
	AppointmentID int64  `json:"appointmentId,omitempty"`
	JobID         int64  `json:"jobId,omitempty"`
	Urgency       string `json:"urgency,omitempty"`
}

// Message is one notification to one recipient
type Message struct {
	RecipientID    int64
	Title          string
	Body           string
	Payload        Payload
	ActionRequired bool
	ExpiresAt      *time.Time
	Email          bool
}

// Store persists the in-app record
type Store interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
}

// EmailSender delivers an email
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// Directory resolves a user's email address
type Directory interface {
	EmailFor(ctx context.Context, userID int64) (string, error)
}

// Service implements the notification sink
type Service struct {
	store     Store
	email     EmailSender
	directory Directory
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithEmail enables the email channel
func WithEmail(sender EmailSender, directory Directory) Option {
	return func(s *Service) {
		s.email = sender
		s.directory = directory
	}
}

// WithClock overrides the time source used for created-at stamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a notification service
func New(store Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channels lists the channels a message will go out on
func (s *Service) Channels(msg Message) []Channel {
	channels := []Channel{ChannelInApp}
	if msg.Email && s.email != nil && s.directory != nil {
		channels = append(channels, ChannelEmail)
	}
	return channels
}

// Notify records the message and sends it on every enabled channel.
// All channels are attempted; the returned error joins every channel failure.
func (s *Service) Notify(ctx context.Context, msg Message) error {
	if msg.RecipientID <= 0 {
		return fmt.Errorf("notification %q has no recipient", msg.Payload.Type)
	}

	var errs []error

	record := &model.Notification{
		ID:             uuid.New().String(),
		RecipientID:    msg.RecipientID,
		Type:           msg.Payload.Type,
		Title:          msg.Title,
		Body:           msg.Body,
		AppointmentID:  msg.Payload.AppointmentID,
		JobID:          msg.Payload.JobID,
		ActionRequired: msg.ActionRequired,
		ExpiresAt:      msg.ExpiresAt,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, record); err != nil {
		errs = append(errs, fmt.Errorf("failed to record notification: %w", err))
	}

	if msg.Email && s.email != nil && s.directory != nil {
		if err := s.sendEmail(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Debug("Notification sent",
		zap.String("id", record.ID),
		zap.Int64("recipient_id", msg.RecipientID),
		zap.String("type", msg.Payload.Type))
	return nil
}

func (s *Service) sendEmail(ctx context.Context, msg Message) error {
	address, err := s.directory.EmailFor(ctx, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve email for user %d: %w", msg.RecipientID, err)
	}
	if address == "" {
		s.logger.Debug("No email address on file, skipping email channel", zap.Int64("recipient_id", msg.RecipientID))
		return nil
	}
	if err := s.email.SendEmail(address, msg.Title, msg.Body); err != nil {
		return fmt.Errorf("failed to email user %d: %w", msg.RecipientID, err)
	}
	return nil
}
