// Package api exposes the coordination workflows over HTTP.
//
// Authentication happens upstream; the gateway forwards the caller as
// X-Actor-ID and X-Actor-Role headers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/serializer"
	"github.com/jakechorley/teamclean/pkg/core/services"
)

// Server wires HTTP routes to the workflow service
type Server struct {
	svc    *services.Service
	views  *serializer.Serializer
	logger *zap.Logger
}

// NewServer creates the HTTP adapter
func NewServer(svc *services.Service, views *serializer.Serializer, logger *zap.Logger) *Server {
	return &Server{svc: svc, views: views, logger: logger}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(ActorMiddleware())
	{
		jobs := api.Group("/jobs")
		{
			jobs.POST("", s.createJobHandler)
			jobs.GET("/:id", s.getJobHandler)
			jobs.POST("/:id/cancel", s.cancelJobHandler)
			jobs.POST("/:id/complete", s.completeJobHandler)
			jobs.POST("/:id/requests", s.submitRequestHandler)
			jobs.POST("/:id/rooms", s.allocateRoomsHandler)
			jobs.POST("/:id/offers", s.postOfferHandler)
		}

		requests := api.Group("/requests")
		{
			requests.GET("", s.listMyRequestsHandler)
			requests.GET("/pending", s.listPendingHandler)
			requests.POST("/:id/approve", s.approveRequestHandler)
			requests.POST("/:id/decline", s.declineRequestHandler)
			requests.POST("/:id/cancel", s.cancelRequestHandler)
		}
		appointments := api.Group("/appointments")
		{
			appointments.GET("/:id/requests", s.listAppointmentRequestsHandler)
			appointments.POST("/:id/escalation", s.respondToEscalationHandler)
		}

		offers := api.Group("/offers")
		{
			offers.GET("", s.listOffersHandler)
			offers.POST("/:id/accept", s.acceptOfferHandler)
			offers.POST("/:id/decline", s.declineOfferHandler)
		}
	}

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
