package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
	"github.com/gin-gonic/gin"
)

const (
	principalKey   = "auth_principal"
	accessTokenKey = "auth_access_token"
)

// TokenAuthenticator resolves a bearer access token to a principal.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Principal, error)
}

// AuthMiddleware rejects requests without a valid, unrevoked access token and
// attaches the principal to both the gin and the request context.
func AuthMiddleware(a TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, ok := auth.BearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		p, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Set(accessTokenKey, token)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequirePermission must run after AuthMiddleware.
func RequirePermission(perm roles.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !p.Can(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

func accessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

// LoggerMiddleware logs one line per request. Query strings are left out
// since they may carry credentials.
func LoggerMiddleware(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start).String(),
		}
		if p, ok := GetPrincipal(c); ok {
			args = append(args, "user_id", p.UserID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error(c.Request.Context(), "http request", args...)
		case status >= http.StatusBadRequest:
			l.Warn(c.Request.Context(), "http request", args...)
		default:
			l.Info(c.Request.Context(), "http request", args...)
		}
	}
}
