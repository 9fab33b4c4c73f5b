package server

import (
	"strings"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	obscontext "github.com/Nikjeremic/uptiomio/internal/observability/context"
	"github.com/gin-gonic/gin"
)

const bearerPrefix = "bearer "

// AuthRequired resolves the bearer token into an Actor on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor, err := s.tokens.Parse(strings.TrimSpace(header[len(bearerPrefix):]))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := authdomain.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, string(actor.Role), actor.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := authdomain.ActorFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !actor.IsAdmin() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (authdomain.Actor, bool) {
	actor, ok := authdomain.ActorFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
	}
	return actor, ok
}
