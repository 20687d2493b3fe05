package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/gin-gonic/gin"
)

// ReadyCheck 就绪检查函数，返回错误表示依赖不可用
type ReadyCheck func(ctx context.Context) error

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version   string
	startTime time.Time
	ready     ReadyCheck
}

// NewHealthHandler 创建HealthHandler，ready可为nil
func NewHealthHandler(version string, ready ReadyCheck) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		ready:     ready,
	}
}

// Health 健康检查
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    formatDuration(time.Since(h.startTime)),
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}

// Ready 就绪检查，检查存储连接
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "存储不可用: "+err.Error()))
			return
		}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"status": "ready",
	}))
}
