package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"service": h.service,
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["store"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["store"] = "ok"
	}

	c.JSON(http.StatusOK, body)
}
