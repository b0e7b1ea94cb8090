package public

import (
	"context"
	"time"

	"github.com/gateflow/internal/cache"
	"github.com/gateflow/internal/http/response"

	"github.com/gin-gonic/gin"
)

// Health 存活检查，附带 Redis 与队列状态
func (h *Handler) Health(c *gin.Context) {
	redisStatus := "disabled"
	if cache.Enabled() {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		redisStatus = "ok"
		if err := cache.Ping(ctx); err != nil {
			redisStatus = "unavailable"
		}
	}
	queueStatus := "disabled"
	if h.Container != nil && h.QueueClient.Enabled() {
		queueStatus = "enabled"
	}
	response.Success(c, gin.H{
		"status": "ok",
		"redis":  redisStatus,
		"queue":  queueStatus,
	})
}
