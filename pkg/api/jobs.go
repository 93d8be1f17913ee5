package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/services"
)

type createJobPayload struct {
	AppointmentID    int64 `json:"appointmentId"`
	TotalRequired    int   `json:"totalCleanersRequired"`
	CoordinatorID    int64 `json:"primaryCleanerId"`
	AutoGenerated    bool  `json:"isAutoGenerated"`
	EstimatedMinutes int   `json:"estimatedMinutes"`
}

// POST /api/jobs
func (s *Server) createJobHandler(c *gin.Context) {
	var payload createJobPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.svc.CreateJob(c.Request.Context(), actorFrom(c), services.CreateJobInput{
		AppointmentID:    payload.AppointmentID,
		TotalRequired:    payload.TotalRequired,
		CoordinatorID:    payload.CoordinatorID,
		AutoGenerated:    payload.AutoGenerated,
		EstimatedMinutes: payload.EstimatedMinutes,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newJobSummary(*job))
}

// GET /api/jobs/:id?includeFullAddress=bool
// Viewers who are not confirmed on the job never see the exact address.
// Admins may force disclosure either way.
func (s *Server) getJobHandler(c *gin.Context) {
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}
	actor := actorFrom(c)

	detail, confirmed, err := s.svc.GetJob(c.Request.Context(), actor, jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var include *bool
	if !confirmed {
		no := false
		include = &no
	} else if raw := c.Query("includeFullAddress"); raw != "" && actor.Role == model.RoleAdmin {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid includeFullAddress"})
			return
		}
		include = &v
	}

	c.JSON(http.StatusOK, s.views.SerializeOne(*detail, include))
}

// POST /api/jobs/:id/cancel
func (s *Server) cancelJobHandler(c *gin.Context) {
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}
	job, err := s.svc.CancelJob(c.Request.Context(), actorFrom(c), jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newJobSummary(*job))
}

// POST /api/jobs/:id/complete
func (s *Server) completeJobHandler(c *gin.Context) {
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}
	job, err := s.svc.CompleteJob(c.Request.Context(), actorFrom(c), jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newJobSummary(*job))
}

type allocatePayload struct {
	WorkerID int64        `json:"workerId"`
	Units    []model.Unit `json:"units"`
}

// POST /api/jobs/:id/rooms
func (s *Server) allocateRoomsHandler(c *gin.Context) {
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload allocatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignments, err := s.svc.AllocateRooms(c.Request.Context(), actorFrom(c), jobID, payload.WorkerID, payload.Units)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roomAssignments": newAssignmentViews(assignments)})
}
