package server

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/obligo/internal/authorization"
)

type ActorType string

const (
	ActorOperator ActorType = "operator"
	ActorViewer   ActorType = "viewer"
)

type Actor struct {
	Type ActorType
	ID   string
}

func (a Actor) subject() string {
	return string(a.Type) + ":" + a.ID
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor.subject(), object, action); err != nil {
			if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
				AbortWithError(c, ErrForbidden)
				return
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := value.(Actor)
	return actor, ok
}
