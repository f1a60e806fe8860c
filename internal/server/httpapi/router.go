package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
	"github.com/gin-gonic/gin"
)

// ReadinessCheck reports whether a backing store can serve requests.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter wires the auth routes. /healthz is public; /admin/ready needs
// ManageSystem since it reveals which dependency is down.
func NewRouter(svc AuthService, logger logging.Logger, checks ...ReadinessCheck) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewAuthHandler(svc)
	authMW := AuthMiddleware(svc)

	g := r.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)

	protected := g.Group("", authMW)
	protected.POST("/logout", h.Logout)
	protected.POST("/logout/all", h.LogoutAll)
	protected.POST("/2fa/setup", h.SetupTOTP)
	protected.POST("/2fa/enable", h.EnableTOTP)
	protected.GET("/me", h.Me)

	admin := r.Group("/admin", authMW, RequirePermission(roles.ManageSystem))
	admin.GET("/ready", readyHandler(checks))

	return r
}

func readyHandler(checks []ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := gin.H{}
		code := http.StatusOK
		for _, ch := range checks {
			if err := ch.Check(c.Request.Context()); err != nil {
				result[ch.Name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			result[ch.Name] = "ok"
		}
		c.JSON(code, result)
	}
}
