package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/teamclean/pkg/core/allocator"
	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/notify"
)

func TestSubmit_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)

	req, err := f.svc.Submit(ctx, alice, job.ID, []model.Unit{bedroom(1), bathroom(2)})
	require.NoError(t, err)

	assert.Equal(t, model.RequestStatusPending, req.Status)
	assert.Equal(t, alice.ID, req.CandidateID)
	assert.Equal(t, testNow.Add(DefaultRequestTTL), req.ExpiresAt)
	assert.Len(t, req.ProposedUnits, 2)

	msgs := f.notifier.ofType(notify.TypeJoinRequestReceived)
	require.Len(t, msgs, 1)
	assert.Equal(t, coordinator.ID, msgs[0].RecipientID)
	assert.True(t, msgs[0].ActionRequired)
	require.NotNil(t, msgs[0].ExpiresAt)
	assert.Equal(t, req.ExpiresAt, *msgs[0].ExpiresAt)
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate pending", func(t *testing.T) {
		f := newFixture()
		job := f.createJob(3)
		_, err := f.svc.Submit(ctx, alice, job.ID, nil)
		require.NoError(t, err)

		_, err = f.svc.Submit(ctx, alice, job.ID, nil)
		assert.ErrorIs(t, err, ErrDuplicatePending)
	})

	t.Run("coordinator on own job", func(t *testing.T) {
		f := newFixture()
		job := f.createJob(2)
		_, err := f.svc.Submit(ctx, coordinator, job.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("client cannot join", func(t *testing.T) {
		f := newFixture()
		job := f.createJob(2)
		_, err := f.svc.Submit(ctx, client, job.ID, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unit outside the home", func(t *testing.T) {
		f := newFixture()
		job := f.createJob(2)
		_, err := f.svc.Submit(ctx, alice, job.ID, []model.Unit{bedroom(4)})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, err, allocator.ErrInvalidUnit)
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Submit(ctx, alice, 9999, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("already confirmed", func(t *testing.T) {
		f := newFixture()
		job := f.createJob(3)
		req, err := f.svc.Submit(ctx, alice, job.ID, nil)
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, coordinator, req.ID)
		require.NoError(t, err)

		_, err = f.svc.Submit(ctx, alice, job.ID, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestApprove_FillsLastSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)
	require.Equal(t, 1, job.ConfirmedCount)

	aliceReq, err := f.svc.Submit(ctx, alice, job.ID, []model.Unit{bedroom(1)})
	require.NoError(t, err)
	bobReq, err := f.svc.Submit(ctx, bob, job.ID, []model.Unit{bedroom(2)})
	require.NoError(t, err)

	result, err := f.svc.Approve(ctx, coordinator, aliceReq.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Job.ConfirmedCount)
	assert.Equal(t, model.JobStatusFilled, result.Job.Status)
	assert.Equal(t, 0, result.Job.RemainingSlots())
	assert.Equal(t, model.RequestStatusApproved, result.Request.Status)
	assert.Equal(t, coordinator.ID, result.Request.DecidedBy)
	require.NotNil(t, result.Request.DecidedAt)

	require.Len(t, result.Assignments, 1)
	assert.Equal(t, alice.ID, result.Assignments[0].WorkerID)
	assert.Equal(t, "Bedroom 1", result.Assignments[0].Unit.Label)

	require.Len(t, result.AutoDeclined, 1)
	assert.Equal(t, bobReq.ID, result.AutoDeclined[0].ID)
	assert.Equal(t, ReasonJobFilled, result.AutoDeclined[0].DeclineReason)

	// The auto-declined request reports the lost slot
	_, err = f.svc.Approve(ctx, coordinator, bobReq.ID)
	assert.ErrorIs(t, err, ErrNoSlotsRemaining)

	assert.Len(t, f.notifier.ofType(notify.TypeJoinRequestApproved), 1)
	assert.Len(t, f.notifier.ofType(notify.TypeJoinRequestDeclined), 1)
}

func TestApprove_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)
	req, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, alice, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// An unrelated caller cannot tell the request exists
	_, err = f.svc.Approve(ctx, carol, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrForbidden))

	_, err = f.svc.Approve(ctx, coordinator, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecisions_AdminMayManage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(3)
	a, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)
	b, err := f.svc.Submit(ctx, bob, job.ID, nil)
	require.NoError(t, err)

	result, err := f.svc.Approve(ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, result.Request.Status)
	assert.Equal(t, admin.ID, result.Request.DecidedBy)

	declined, err := f.svc.Decline(ctx, admin, b.ID, "not this week")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusDeclined, declined.Status)
	assert.Equal(t, admin.ID, declined.DecidedBy)
}

func TestApprove_ExpiredRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)
	req, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)

	f.advance(DefaultRequestTTL + time.Minute)

	_, err = f.svc.Approve(ctx, coordinator, req.ID)
	assert.ErrorIs(t, err, ErrRequestExpired)
	assert.False(t, errors.Is(err, ErrNotPending))

	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ConfirmedCount)
}

func TestApprove_AlreadyDecided(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(3)
	req, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, coordinator, req.ID, "not this week")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, coordinator, req.ID)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestApprove_UnitTakenRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(3)

	aliceReq, err := f.svc.Submit(ctx, alice, job.ID, []model.Unit{bedroom(1)})
	require.NoError(t, err)
	bobReq, err := f.svc.Submit(ctx, bob, job.ID, []model.Unit{bathroom(1), bedroom(1)})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, coordinator, aliceReq.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, coordinator, bobReq.ID)
	assert.ErrorIs(t, err, ErrUnitTaken)

	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ConfirmedCount)

	storedReq, err := f.store.GetJoinRequest(ctx, bobReq.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, storedReq.Status)

	assignments, err := f.store.ListRoomAssignments(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}

func TestApprove_ConcurrentLastSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)

	aliceReq, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)
	bobReq, err := f.svc.Submit(ctx, bob, job.ID, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{aliceReq.ID, bobReq.ID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(ctx, coordinator, id)
		}(i, id)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrNoSlotsRemaining)
		}
	}
	assert.Equal(t, 1, successes)

	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ConfirmedCount)
	assert.Equal(t, model.JobStatusFilled, stored.Status)
}

func TestApprove_ConcurrentNeverOverfills(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(4)

	var reqIDs []int64
	for i := int64(0); i < 10; i++ {
		req, err := f.svc.Submit(ctx, model.Actor{ID: 400 + i, Role: model.RoleWorker}, job.ID, nil)
		require.NoError(t, err)
		reqIDs = append(reqIDs, req.ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for _, id := range reqIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := f.svc.Approve(ctx, coordinator, id); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	stored, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.TotalRequired, stored.ConfirmedCount)
}

func TestApprove_NotificationFailureKeepsApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)
	req, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)

	f.notifier.fail = true
	_, err = f.svc.Approve(ctx, coordinator, req.ID)
	require.NoError(t, err)

	stored, err := f.store.GetJoinRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, stored.Status)
}

func TestApprove_AutoGeneratedJobOwnedByRequester(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job, err := f.svc.CreateJob(ctx, admin, CreateJobInput{AppointmentID: f.apptID, TotalRequired: 2, AutoGenerated: true})
	require.NoError(t, err)

	req, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, coordinator, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	result, err := f.svc.Approve(ctx, client, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Job.ConfirmedCount)
	assert.Equal(t, model.JobStatusOpen, result.Job.Status)
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)
	req, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Decline(ctx, alice, req.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	declined, err := f.svc.Decline(ctx, coordinator, req.ID, "team is full")
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusDeclined, declined.Status)
	assert.Equal(t, "team is full", declined.DeclineReason)
	assert.Equal(t, coordinator.ID, declined.DecidedBy)

	msgs := f.notifier.ofType(notify.TypeJoinRequestDeclined)
	require.Len(t, msgs, 1)
	assert.Equal(t, alice.ID, msgs[0].RecipientID)
	assert.Contains(t, msgs[0].Body, "team is full")

	_, err = f.svc.Decline(ctx, coordinator, req.ID, "")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(2)
	req, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, coordinator, req.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Cancel(ctx, bob, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, err := f.svc.Cancel(ctx, alice, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, cancelled.Status)
	assert.Len(t, f.notifier.ofType(notify.TypeJoinRequestCancelled), 1)

	_, err = f.svc.Cancel(ctx, alice, req.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	// A new request is allowed once the old one is no longer pending
	_, err = f.svc.Submit(ctx, alice, job.ID, nil)
	assert.NoError(t, err)
}

func TestListQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job := f.createJob(3)

	aliceReq, err := f.svc.Submit(ctx, alice, job.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, bob, job.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, coordinator, aliceReq.ID, "")
	require.NoError(t, err)

	mine, err := f.svc.ListForCandidate(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, aliceReq.ID, mine[0].ID)

	pendingMine, err := f.svc.ListForCandidate(ctx, alice, model.RequestStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pendingMine)

	pending, err := f.svc.ListPendingForApprover(ctx, coordinator)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bob.ID, pending[0].CandidateID)

	all, err := f.svc.ListForAppointment(ctx, coordinator, f.apptID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.ListForAppointment(ctx, bob, f.apptID)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err = f.svc.ListForAppointment(ctx, admin, f.apptID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
