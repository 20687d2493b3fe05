package handler

import (
	"net/http"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/engine"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/gin-gonic/gin"
)

// TaskHandler Task API处理器
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler 创建TaskHandler
func NewTaskHandler(eng *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: eng}
}

// List 按条件列出Task
// GET /api/v1/tasks
func (h *TaskHandler) List(c *gin.Context) {
	var query dto.TaskListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "查询参数错误: %v", err)
		return
	}

	tasks, err := h.engine.ListTasks(c.Request.Context(), query.Filter())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(paginate(tasks, query.GetDefaultLimit(), query.Offset)))
}

// Create 创建Task
// POST /api/v1/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}

	t, err := h.engine.CreateTask(c.Request.Context(), req.ToSpec())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(t))
}

// Get 获取Task详情
// GET /api/v1/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	t, err := h.engine.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(t))
}

// Delete 删除Task
// DELETE /api/v1/tasks/:id?actor=
func (h *TaskHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.DeleteTask(c.Request.Context(), id, c.Query("actor")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"id":      id,
		"message": "Task已删除",
	}))
}

// UpdateStatus 直接设置状态
// PUT /api/v1/tasks/:id/status
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	t, err := h.engine.UpdateTaskStatus(c.Request.Context(), c.Param("id"), task.Status(req.Status), req.Actor)
	h.respondTask(c, t, err)
}

// Start 开始处理
// POST /api/v1/tasks/:id/start
func (h *TaskHandler) Start(c *gin.Context) {
	var req dto.ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	t, err := h.engine.StartTask(c.Request.Context(), c.Param("id"), req.UserID)
	h.respondTask(c, t, err)
}

// Submit 提交审核
// POST /api/v1/tasks/:id/submit
func (h *TaskHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	t, err := h.engine.SubmitTaskForReview(c.Request.Context(), c.Param("id"), req.SubmissionData, req.UserID)
	h.respondTask(c, t, err)
}

// StartReview 开始审核
// POST /api/v1/tasks/:id/review/start
func (h *TaskHandler) StartReview(c *gin.Context) {
	var req dto.ActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	t, err := h.engine.StartReview(c.Request.Context(), c.Param("id"), req.UserID)
	h.respondTask(c, t, err)
}

// Approve 审批通过，工作流任务会交接到下一阶段或完成
// POST /api/v1/tasks/:id/approve
func (h *TaskHandler) Approve(c *gin.Context) {
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	outcome, err := h.engine.ApproveTask(c.Request.Context(), c.Param("id"), req.CheckerID, req.Feedback, req.OutputData)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(outcome))
}

// RequireRevision 要求返工
// POST /api/v1/tasks/:id/revision
func (h *TaskHandler) RequireRevision(c *gin.Context) {
	var req dto.RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	t, err := h.engine.RequireRevision(c.Request.Context(), c.Param("id"), req.CheckerID, req.Feedback, req.ApprovedChecklistItems)
	h.respondTask(c, t, err)
}

// Cancel 取消Task
// POST /api/v1/tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	var req dto.CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "请求参数错误: %v", err)
			return
		}
	}
	t, err := h.engine.CancelTask(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
	h.respondTask(c, t, err)
}

// Prefill 当前阶段的预填数据
// GET /api/v1/tasks/:id/prefill
func (h *TaskHandler) Prefill(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	t, err := h.engine.GetTask(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	prefill, err := h.engine.StagePrefill(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PrefillResponse{
		TaskID:  id,
		Stage:   t.CurrentStage,
		Prefill: prefill,
	}))
}

func (h *TaskHandler) respondTask(c *gin.Context, t *task.Task, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(t))
}
