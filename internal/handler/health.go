package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"tradehook/internal/events"
	"tradehook/internal/strategy"
)

// HealthHandler reports liveness and readiness. A nil DB means the service
// runs with in-memory state only, which is still ready.
type HealthHandler struct {
	DB        *gorm.DB
	Directory *strategy.Directory
	Events    *events.Hub
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.Directory != nil {
		body["strategies"] = len(h.Directory.All())
	}
	if h.Events != nil {
		body["subscribers"] = h.Events.Subscribers()
	}
	c.JSON(http.StatusOK, body)
}

// @Summary Readiness check
// @Tags health
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "storage": "memory"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "storage": "postgres"})
}
