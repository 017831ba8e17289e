package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kestrelmarket/billing/pkg/config"
	"github.com/kestrelmarket/billing/pkg/response"
	types "github.com/kestrelmarket/billing/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

const actorKey = "actor"

// AuthMiddleware validates the bearer token and stores the normalized
// caller identity in the gin context. Tokens carry either a single "role"
// string or a "roles" array; both shapes collapse into types.Actor here,
// at the trust boundary, so nothing downstream parses claims again.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}

		actor := actorFromClaims(claims)
		if actor.ID == "" {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, "token has no subject"))
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFromClaims(claims jwt.MapClaims) *types.Actor {
	id, _ := claims["sub"].(string)
	var roles []types.Role
	if r, ok := claims["role"].(string); ok && r != "" {
		roles = append(roles, types.Role(r))
	}
	if rs, ok := claims["roles"].([]interface{}); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, types.Role(s))
			}
		}
	}
	return types.NewActor(id, roles...)
}

// RequireRole aborts the request unless the authenticated actor carries
// the role. Must run after AuthMiddleware.
func RequireRole(role types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Actor(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeForbidden, "insufficient role"))
			return
		}
		c.Next()
	}
}

// Actor returns the authenticated caller, or nil when the request did not
// pass through AuthMiddleware.
func Actor(c *gin.Context) *types.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*types.Actor)
	return actor
}
