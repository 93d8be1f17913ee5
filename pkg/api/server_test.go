package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/serializer"
	"github.com/jakechorley/teamclean/pkg/core/services"
	"github.com/jakechorley/teamclean/pkg/core/visibility"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/notify"
)

var (
	testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	client      = model.Actor{ID: 100, Role: model.RoleClient}
	coordinator = model.Actor{ID: 200, Role: model.RoleWorker}
	alice       = model.Actor{ID: 301, Role: model.RoleWorker}
	bob         = model.Actor{ID: 302, Role: model.RoleWorker}
)

type plainDecoder struct{}

func (plainDecoder) Decrypt(value string) string { return value }

type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, msg notify.Message) error { return nil }

type testServer struct {
	router *gin.Engine
	store  *db.MemoryDB
	apptID int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemoryDB()
	homeID := store.SeedHome(model.Home{
		OwnerID: client.ID, Name: "Lake house", Address: "12 Elm St", PostalCode: "12345",
		City: "Springfield", Beds: 3, Baths: 2,
	})
	apptID := store.SeedAppointment(model.Appointment{
		HomeID:           homeID,
		RequesterID:      client.ID,
		Date:             "2025-03-11",
		AssignedWorkerID: coordinator.ID,
		State:            model.StateAssigned,
	})

	clock := func() time.Time { return testNow }
	svc := services.New(store, nopNotifier{}, zap.NewNop(), services.Options{Clock: clock})
	views := serializer.New(visibility.NewPolicy(), plainDecoder{}, serializer.WithClock(clock))

	return &testServer{router: NewServer(svc, views, zap.NewNop()).Router(), store: store, apptID: apptID}
}

func (ts *testServer) do(t *testing.T, method, path string, actor *model.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(HeaderActorID, strconv.FormatInt(actor.ID, 10))
		req.Header.Set(HeaderActorRole, string(actor.Role))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) createJob(t *testing.T, total int) jobSummary {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/jobs", &coordinator, createJobPayload{
		AppointmentID: ts.apptID,
		TotalRequired: total,
		CoordinatorID: coordinator.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[jobSummary](t, rec)
}

func (ts *testServer) submit(t *testing.T, jobID int64, actor model.Actor, units ...model.Unit) requestView {
	t.Helper()
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%d/requests", jobID), &actor, submitPayload{Units: units})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[requestView](t, rec)
}

func TestActorMiddleware_RejectsMissingHeaders(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/offers", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := model.Actor{ID: 5, Role: "superuser"}
	rec = ts.do(t, http.MethodGet, "/api/offers", &bad, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz_NeedsNoActor(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateJob_CoordinatorOccupiesSlot(t *testing.T) {
	ts := newTestServer(t)

	job := ts.createJob(t, 3)
	assert.Equal(t, model.JobStatusOpen, job.Status)
	assert.Equal(t, 1, job.ConfirmedCount)
	assert.Equal(t, 2, job.RemainingSlots)
}

func TestCreateJob_RejectsSingleWorker(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/jobs", &coordinator, createJobPayload{
		AppointmentID: ts.apptID, TotalRequired: 1, CoordinatorID: coordinator.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinRequestFlow_ApproveAndViewAddress(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createJob(t, 2)

	req := ts.submit(t, job.ID, alice, model.Unit{Type: model.UnitBedroom, Number: 1})
	assert.Equal(t, model.RequestStatusPending, req.Status)

	// The coordinator sees it in their queue
	rec := ts.do(t, http.MethodGet, "/api/requests/pending", &coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]requestView](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	// Before approval alice is a pool viewer and never sees the address
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d", job.ID), &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[serializer.JobView](t, rec)
	assert.False(t, view.Home.FullAddressIncluded)
	assert.Empty(t, view.Home.Address)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", req.ID), &coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[struct {
		Request requestView                 `json:"request"`
		Job     jobSummary                  `json:"job"`
		Rooms   []serializer.AssignmentView `json:"roomAssignments"`
	}](t, rec)
	assert.Equal(t, model.RequestStatusApproved, approved.Request.Status)
	assert.True(t, approved.Job.IsFilled)
	require.Len(t, approved.Rooms, 1)
	assert.Equal(t, "Bedroom 1", approved.Rooms[0].Label)

	// Confirmed and within 48h of the appointment
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d", job.ID), &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[serializer.JobView](t, rec)
	assert.True(t, view.Home.FullAddressIncluded)
	assert.Equal(t, "12 Elm St", view.Home.Address)
	assert.Equal(t, 1, view.RoomCounts[model.UnitBedroom])
}

func TestFilledJob_HiddenFromUnrelatedWorker(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createJob(t, 2)
	req := ts.submit(t, job.ID, alice)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", req.ID), &coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/jobs/%d", job.ID), &bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createJob(t, 2)
	req := ts.submit(t, job.ID, alice, model.Unit{Type: model.UnitBathroom, Number: 1})

	// Unrelated caller cannot learn the request exists
	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", req.ID), &bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The candidate is related but may not approve themselves
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/approve", req.ID), &alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Duplicate pending request
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%d/requests", job.ID), &alice, submitPayload{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unit that does not exist in the home
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%d/requests", job.ID), &bob, submitPayload{
		Units: []model.Unit{{Type: model.UnitBedroom, Number: 9}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Decline with a reason, then a second decline conflicts
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/decline", req.ID), &coordinator, declinePayload{Reason: "full crew"})
	require.Equal(t, http.StatusOK, rec.Code)
	declined := decode[requestView](t, rec)
	assert.Equal(t, model.RequestStatusDeclined, declined.Status)
	assert.Equal(t, "full crew", declined.DeclineReason)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/decline", req.ID), &coordinator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/jobs/abc", &alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOffers_PostAcceptAndList(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createJob(t, 3)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/jobs/%d/offers", job.ID), &coordinator, postOfferPayload{
		CandidateID:       bob.ID,
		OfferType:         model.OfferTypeBackup,
		CompensationCents: 4500,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	offer := decode[offerSummary](t, rec)
	assert.Equal(t, model.OfferStatusPending, offer.Status)

	rec = ts.do(t, http.MethodGet, "/api/offers", &bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[serializer.OffersResponse](t, rec)
	require.Len(t, listing.PersonalOffers, 1)
	assert.False(t, listing.PersonalOffers[0].Job.Home.FullAddressIncluded)
	assert.Empty(t, listing.PersonalOffers[0].Job.Home.Address)
	assert.Empty(t, listing.AvailableJobs, "an offered job is not listed twice")

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/accept", offer.ID), &bob, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[requestView](t, rec)
	assert.Equal(t, model.RequestStatusPending, req.Status)
	assert.Equal(t, bob.ID, req.CandidateID)

	// Somebody else's offer does not exist for alice
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/offers/%d/decline", offer.ID), &alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAppointmentRequests_OnlyForManagers(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createJob(t, 3)
	ts.submit(t, job.ID, alice)

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/appointments/%d/requests", ts.apptID), &coordinator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]requestView](t, rec), 1)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/appointments/%d/requests", ts.apptID), &bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/requests?status=pending", &alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]requestView](t, rec), 1)
}

func TestRespondToEscalation(t *testing.T) {
	ts := newTestServer(t)
	expires := testNow.Add(time.Hour)
	apptID := ts.store.SeedAppointment(model.Appointment{
		RequesterID:       client.ID,
		Date:              "2025-03-13",
		State:             model.StateAwaitingClient,
		ClientResponse:    model.ClientResponsePending,
		ResponseExpiresAt: &expires,
	})
	path := fmt.Sprintf("/api/appointments/%d/escalation", apptID)

	rec := ts.do(t, http.MethodPost, path, &client, escalationPayload{Choice: "later"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, path, &alice, escalationPayload{Choice: services.ChoiceOpenToPool})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, path, &client, escalationPayload{Choice: services.ChoiceOpenToPool})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[appointmentSummary](t, rec)
	assert.Equal(t, model.StateOpenToPool, got.State)
	assert.Equal(t, model.ClientResponseAccepted, got.ClientResponse)

	rec = ts.do(t, http.MethodPost, path, &client, escalationPayload{Choice: services.ChoiceCancel})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
