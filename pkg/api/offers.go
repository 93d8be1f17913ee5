package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/services"
)

type postOfferPayload struct {
	CandidateID       int64           `json:"candidateId"`
	OfferType         model.OfferType `json:"offerType"`
	CompensationCents int64           `json:"compensationCents"`
	Units             []model.Unit    `json:"units"`
	TTLMinutes        int             `json:"ttlMinutes"`
}

// POST /api/jobs/:id/offers
func (s *Server) postOfferHandler(c *gin.Context) {
	jobID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload postOfferPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload.TTLMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ttlMinutes must not be negative"})
		return
	}

	offer, err := s.svc.PostOffer(c.Request.Context(), actorFrom(c), services.PostOfferInput{
		JobID:             jobID,
		CandidateID:       payload.CandidateID,
		OfferType:         payload.OfferType,
		CompensationCents: payload.CompensationCents,
		Units:             payload.Units,
		TTL:               time.Duration(payload.TTLMinutes) * time.Minute,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOfferSummary(*offer))
}

// GET /api/offers
func (s *Server) listOffersHandler(c *gin.Context) {
	result, err := s.svc.ListOffers(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.views.SerializeOffersResponse(result.Personal, result.Available))
}

// POST /api/offers/:id/accept
func (s *Server) acceptOfferHandler(c *gin.Context) {
	offerID, ok := idParam(c, "id")
	if !ok {
		return
	}
	req, err := s.svc.AcceptOffer(c.Request.Context(), actorFrom(c), offerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRequestView(*req))
}

// POST /api/offers/:id/decline
func (s *Server) declineOfferHandler(c *gin.Context) {
	offerID, ok := idParam(c, "id")
	if !ok {
		return
	}
	offer, err := s.svc.DeclineOffer(c.Request.Context(), actorFrom(c), offerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOfferSummary(*offer))
}
