package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler serves the banner and liveness endpoints.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(conn *gorm.DB) *HealthHandler {
	return &HealthHandler{db: conn}
}

// Root handles GET / with a short service banner.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Knowva Server",
		"status":  "running",
		"version": "1.0.0",
		"endpoints": gin.H{
			"auth":   "/api/v1/auth",
			"health": "/health",
		},
	})
}

// Health handles GET /health, reporting database connectivity.
func (h *HealthHandler) Health(c *gin.Context) {
	database := "connected"
	status := "healthy"
	if sqlDB, errDB := h.db.DB(); errDB != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		database = "error"
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().UTC().UnixMilli(),
	})
}
