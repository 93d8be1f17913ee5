package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

type submitPayload struct {
	Units []model.Unit `json:"units"`
}

// POST /api/jobs/:id/requests
func (s *Server) submitRequestHandler(c *gin.Context) {
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload submitPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := s.svc.Submit(c.Request.Context(), actorFrom(c), jobID, payload.Units)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRequestView(*req))
}

// POST /api/requests/:id/approve
func (s *Server) approveRequestHandler(c *gin.Context) {
	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}
	result, err := s.svc.Approve(c.Request.Context(), actorFrom(c), requestID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request":         newRequestView(*result.Request),
		"job":             newJobSummary(*result.Job),
		"roomAssignments": newAssignmentViews(result.Assignments),
		"autoDeclined":    newRequestViews(result.AutoDeclined),
	})
}

type declinePayload struct {
	Reason string `json:"reason"`
}

// POST /api/requests/:id/decline
func (s *Server) declineRequestHandler(c *gin.Context) {
	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload declinePayload
	// The body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	req, err := s.svc.Decline(c.Request.Context(), actorFrom(c), requestID, payload.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestView(*req))
}

// POST /api/requests/:id/cancel
func (s *Server) cancelRequestHandler(c *gin.Context) {
	requestID, ok := idParam(c, "id")
	if !ok {
		return
	}
	req, err := s.svc.Cancel(c.Request.Context(), actorFrom(c), requestID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestView(*req))
}

// GET /api/requests?status=pending
func (s *Server) listMyRequestsHandler(c *gin.Context) {
	reqs, err := s.svc.ListForCandidate(c.Request.Context(), actorFrom(c), model.RequestStatus(c.Query("status")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestViews(reqs))
}

// GET /api/requests/pending
func (s *Server) listPendingHandler(c *gin.Context) {
	reqs, err := s.svc.ListPendingForApprover(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestViews(reqs))
}

// GET /api/appointments/:id/requests
func (s *Server) listAppointmentRequestsHandler(c *gin.Context) {
	appointmentID, ok := idParam(c, "id")
	if !ok {
		return
	}
	reqs, err := s.svc.ListForAppointment(c.Request.Context(), actorFrom(c), appointmentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestViews(reqs))
}
