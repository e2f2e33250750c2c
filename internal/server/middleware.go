package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/obligo/internal/observability/context"
)

const contextActorKey = "actor"

// AdminAuthRequired resolves the bearer token to the admin operator or to the
// read-only viewer. Empty tokens in config never match.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	adminToken := strings.TrimSpace(s.cfg.AdminToken)
	viewerToken := strings.TrimSpace(s.cfg.ViewerToken)
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var actor Actor
		switch {
		case tokenMatches(token, adminToken):
			actor = Actor{Type: ActorOperator, ID: "admin"}
		case tokenMatches(token, viewerToken):
			actor = Actor{Type: ActorViewer, ID: "readonly"}
		default:
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextActorKey, actor)
		ctx := obscontext.WithActor(c.Request.Context(), string(actor.Type), actor.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tokenMatches(got, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}
