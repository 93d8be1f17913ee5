package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/services"
)

type escalationPayload struct {
	Choice services.EscalationChoice `json:"choice"`
}

type appointmentSummary struct {
	ID                int64                   `json:"id"`
	State             model.CoordinationState `json:"state"`
	ClientResponse    model.ClientResponse    `json:"clientResponse"`
	Cancelled         bool                    `json:"cancelled"`
	ResponseExpiresAt *time.Time              `json:"responseExpiresAt,omitempty"`
}

// POST /api/appointments/:id/escalation
func (s *Server) respondToEscalationHandler(c *gin.Context) {
	apptID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload escalationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	appt, err := s.svc.RespondToEscalation(c.Request.Context(), actorFrom(c), apptID, payload.Choice)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appointmentSummary{
		ID:                appt.ID,
		State:             appt.State,
		ClientResponse:    appt.ClientResponse,
		Cancelled:         appt.Cancelled,
		ResponseExpiresAt: appt.ResponseExpiresAt,
	})
}
