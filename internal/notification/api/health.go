package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StateReporter is satisfied by the postgres and redis clients.
type StateReporter interface {
	State(ctx context.Context) string
}

func (h *Handler) Health(c *gin.Context) {
	health := h.deps.Notifications.Health(c.Request.Context())
	body := gin.H{
		"status":    "OK",
		"service":   h.deps.ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  health.Database,
	}
	if health.Notifications != nil {
		body["notifications"] = health.Notifications
	}
	if health.Error != "" {
		body["error"] = health.Error
	}
	if h.deps.Consumer != nil {
		body["consumer"] = h.deps.Consumer()
	}
	c.JSON(http.StatusOK, body)
}

// Ready fails with 503 while the database is unreachable.
func (h *Handler) Ready(c *gin.Context) {
	if h.deps.Database != nil {
		if state := h.deps.Database.State(c.Request.Context()); state != "connected" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "not ready",
				"service":  h.deps.ServiceName,
				"database": state,
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "service": h.deps.ServiceName})
}

func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "service": h.deps.ServiceName})
}
