package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

type mockStore struct {
	records []model.Notification
	err     error
}

func (m *mockStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *n)
	return nil
}

type mockEmail struct {
	sent []string
	err  error
}

func (m *mockEmail) SendEmail(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type mockDirectory map[int64]string

func (m mockDirectory) EmailFor(ctx context.Context, userID int64) (string, error) {
	return m[userID], nil
}

func fixedClock() time.Time {
	return time.Date(2024, 2, 8, 10, 0, 0, 0, time.UTC)
}

func TestNotify_InAppOnly(t *testing.T) {
	store := &mockStore{}
	svc := New(store, zap.NewNop(), WithClock(fixedClock))

	err := svc.Notify(context.Background(), Message{
		RecipientID: 5,
		Title:       "Approved",
		Payload:     Payload{Type: TypeJoinRequestApproved, JobID: 3},
	})
	require.NoError(t, err)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(5), rec.RecipientID)
	assert.Equal(t, TypeJoinRequestApproved, rec.Type)
	assert.Equal(t, int64(3), rec.JobID)
	assert.Equal(t, fixedClock(), rec.CreatedAt)
	assert.Equal(t, []Channel{ChannelInApp}, svc.Channels(Message{Email: true}))
}

func TestNotify_EmailChannel(t *testing.T) {
	store := &mockStore{}
	email := &mockEmail{}
	svc := New(store, zap.NewNop(), WithEmail(email, mockDirectory{5: "client@example.com"}))

	err := svc.Notify(context.Background(), Message{
		RecipientID:    5,
		Title:          "Nobody accepted",
		Payload:        Payload{Type: TypeBackupTimeout, AppointmentID: 9},
		ActionRequired: true,
		Email:          true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"client@example.com"}, email.sent)
	require.Len(t, store.records, 1)
	assert.True(t, store.records[0].ActionRequired)
	assert.Equal(t, []Channel{ChannelInApp, ChannelEmail}, svc.Channels(Message{Email: true}))
}

func TestNotify_EmailFailureStillRecords(t *testing.T) {
	store := &mockStore{}
	email := &mockEmail{err: errors.New("gmail unavailable")}
	svc := New(store, zap.NewNop(), WithEmail(email, mockDirectory{5: "client@example.com"}))

	err := svc.Notify(context.Background(), Message{RecipientID: 5, Payload: Payload{Type: TypeBackupTimeout}, Email: true})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gmail unavailable")
	assert.Len(t, store.records, 1)
}

func TestNotify_RejectsMissingRecipient(t *testing.T) {
	store := &mockStore{}
	svc := New(store, zap.NewNop())

	err := svc.Notify(context.Background(), Message{Payload: Payload{Type: TypeOfferReceived}})

	assert.Error(t, err)
	assert.Empty(t, store.records)
}
