package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

const contextActor = "actor"

type AuthMiddleware struct {
	tokens auth.JWTService
}

func NewAuthMiddleware(tokens auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores the caller in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			httputil.RespondWithError(c, errors.NewUnauthorized("missing or malformed authorization header", nil))
			return
		}
		if !m.setActor(c, token) {
			return
		}
		c.Next()
	}
}

// Optional authenticates the caller when a token is presented and lets
// anonymous requests through. A presented token that fails validation is
// still rejected.
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			httputil.RespondWithError(c, errors.NewUnauthorized("malformed authorization header", nil))
			return
		}
		if !m.setActor(c, token) {
			return
		}
		c.Next()
	}
}

// RequireRoles admits callers holding any of roles. It must run after
// Authenticate.
func (m *AuthMiddleware) RequireRoles(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("permission denied"))
	}
}

// RequireStaff admits every staff role.
func (m *AuthMiddleware) RequireStaff() gin.HandlerFunc {
	return m.RequireRoles(model.RoleAdmin, model.RoleDoctor, model.RolePharmacy, model.RoleLab)
}

func (m *AuthMiddleware) setActor(c *gin.Context, token string) bool {
	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		httputil.RespondWithError(c, errors.NewUnauthorized("invalid token", err))
		return false
	}
	SetActor(c, model.Actor{ID: claims.IdentityID, Role: claims.Role})
	return true
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// SetActor records the authenticated caller.
func SetActor(c *gin.Context, actor model.Actor) {
	c.Set(contextActor, actor)
}

// ActorFrom returns the caller stored by Authenticate or Optional.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(contextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
