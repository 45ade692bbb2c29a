package security

import (
	"net/http"

	"PPSignal/logger"
	"PPSignal/tools/errs"
	sec "PPSignal/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// context keys
const (
	PPCtxClaimsKey   = "claims"            // *sec.Claims
	PPCtxAuthHashKey = "authorizationHash" // string
)

// AdminGuard requires a bearer JWT carrying the admin scope. With an empty
// secret it lets every request through.
func AdminGuard(opts sec.Options) gin.HandlerFunc {
	if len(opts.Secret) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		token, ok := sec.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, errs.ErrUnauthorized.WithDetail("missing bearer token"))
			return
		}
		claims, err := sec.Verify(opts, token)
		if err != nil {
			logger.Info("admin token rejected", zap.String("token", sec.HashToken(token)), zap.Error(err))
			abort(c, errs.ErrUnauthorized.WithDetail("invalid token"))
			return
		}
		if !claims.HasScope(sec.ScopeAdmin) {
			abort(c, errs.ErrUnauthorized.WithDetail("admin scope required"))
			return
		}
		c.Set(PPCtxClaimsKey, claims)
		c.Set(PPCtxAuthHashKey, sec.HashToken(token))
		c.Next()
	}
}

func abort(c *gin.Context, e errs.CodeError) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, e)
}
