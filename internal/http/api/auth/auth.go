package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	authsvc "github.com/knowva/knowva-server/internal/auth"
	"github.com/knowva/knowva-server/internal/http/api/auth/handlers"
	"github.com/knowva/knowva-server/internal/ratelimit"
	"github.com/knowva/knowva-server/internal/security"
)

// RegisterAuthRoutes registers the auth endpoints, the service banner and the
// health check. The credential endpoints sit behind the per-IP rate limiter;
// the account endpoints behind the bearer middleware.
func RegisterAuthRoutes(r *gin.Engine, conn *gorm.DB, svc *authsvc.Service, issuer *security.TokenIssuer, limiter ratelimit.Limiter, credentialLimit int) {
	healthHandler := handlers.NewHealthHandler(conn)
	r.GET("/", healthHandler.Root)
	r.GET("/health", healthHandler.Health)

	authHandler := handlers.NewAuthHandler(svc)
	group := r.Group("/api/v1/auth")

	credentials := group.Group("")
	credentials.Use(rateLimitMiddleware(limiter, credentialLimit))
	credentials.POST("/register", authHandler.Register)
	credentials.POST("/login", authHandler.Login)
	credentials.POST("/refresh", authHandler.Refresh)

	account := group.Group("")
	account.Use(bearerAuthMiddleware(issuer))
	account.POST("/logout", authHandler.Logout)
	account.GET("/me", authHandler.Me)
	account.PUT("/me", authHandler.UpdateMe)
	account.GET("/me/stats", authHandler.MyStats)
}

// bearerAuthMiddleware validates the access token and stores the subject in
// the request context.
func bearerAuthMiddleware(issuer *security.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == header || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.NewErrorResponse("Invalid token", ""))
			return
		}
		claims, errParse := issuer.ParseAccessToken(token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.NewErrorResponse("Invalid token", ""))
			return
		}
		c.Set(handlers.ContextUserIDKey, claims.Subject)
		c.Next()
	}
}

// rateLimitMiddleware applies the per-IP fixed-window budget to a route
// group. A failing limiter backend logs and admits the request.
func rateLimitMiddleware(limiter ratelimit.Limiter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		key := c.FullPath() + ":" + c.ClientIP()
		result, errAllow := limiter.Allow(c.Request.Context(), key, limit, time.Now().UTC())
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, handlers.NewErrorResponse("Too many requests", ""))
			return
		}
		c.Next()
	}
}
