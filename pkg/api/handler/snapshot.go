package handler

import (
	"net/http"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/engine"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/gin-gonic/gin"
)

// SnapshotHandler 集合快照，供客户端收到变更通知后整体刷新
type SnapshotHandler struct {
	engine  *engine.Engine
	linking *linking.Engine
}

// NewSnapshotHandler 创建SnapshotHandler
func NewSnapshotHandler(eng *engine.Engine, linker *linking.Engine) *SnapshotHandler {
	return &SnapshotHandler{engine: eng, linking: linker}
}

// Tasks 全部Task快照 {"tasks": [...]}
// GET /api/v1/snapshot/tasks
func (h *SnapshotHandler) Tasks(c *gin.Context) {
	tasks, err := h.engine.ListTasks(c.Request.Context(), task.Filter{})
	if err != nil {
		respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	c.JSON(http.StatusOK, dto.TaskSnapshot{Tasks: tasks})
}

// Linkings 全部联动配置快照（数组）
// GET /api/v1/snapshot/linkings
func (h *SnapshotHandler) Linkings(c *gin.Context) {
	c.JSON(http.StatusOK, h.linking.ListWorksheetLinkings())
}
