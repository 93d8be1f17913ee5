package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	actorKey = "actor"
)

// ActorMiddleware resolves the caller from trusted gateway headers
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(HeaderActorID), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid actor id"})
			return
		}
		role := model.Role(c.GetHeader(HeaderActorRole))
		if !role.IsValid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid actor role"})
			return
		}
		c.Set(actorKey, model.Actor{ID: id, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) model.Actor {
	actor, _ := c.MustGet(actorKey).(model.Actor)
	return actor
}

// idParam parses a positive path id, writing a 400 when it is malformed
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
