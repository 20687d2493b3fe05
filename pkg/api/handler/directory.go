package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/gin-gonic/gin"
)

// CacheInvalidator 目录写入后需要失效的缓存
type CacheInvalidator interface {
	Invalidate(dependencyID string)
}

// DirectoryHandler 工作流定义与依赖链管理API处理器
type DirectoryHandler struct {
	service *directory.Service
	cache   CacheInvalidator
}

// NewDirectoryHandler 创建DirectoryHandler，cache可为nil
func NewDirectoryHandler(service *directory.Service, cache CacheInvalidator) *DirectoryHandler {
	return &DirectoryHandler{service: service, cache: cache}
}

// ListWorkflows 列出工作流定义
// GET /api/v1/workflows
func (h *DirectoryHandler) ListWorkflows(c *gin.Context) {
	list, err := h.service.Repository().ListWorkflows(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询工作流失败: %v", err)))
		return
	}
	if list == nil {
		list = []*directory.WorkflowDefinition{}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(list))
}

// RegisterWorkflow 注册或更新工作流定义
// POST /api/v1/workflows
func (h *DirectoryHandler) RegisterWorkflow(c *gin.Context) {
	var req dto.RegisterWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}

	wf := &directory.WorkflowDefinition{ID: req.ID, Name: req.Name, Description: req.Description}
	if err := h.service.RegisterWorkflow(c.Request.Context(), wf); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("保存工作流失败: %v", err)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(wf))
}

// GetWorkflow 获取工作流定义
// GET /api/v1/workflows/:id
func (h *DirectoryHandler) GetWorkflow(c *gin.Context) {
	wf, err := h.service.Repository().GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询工作流失败: %v", err)))
		return
	}
	if wf == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "工作流不存在"))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(wf))
}

// ListDependencies 列出依赖链，可按workflowId过滤
// GET /api/v1/dependencies
func (h *DirectoryHandler) ListDependencies(c *gin.Context) {
	list, err := h.service.Repository().ListDependencies(c.Request.Context(), c.Query("workflowId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询依赖链失败: %v", err)))
		return
	}
	if list == nil {
		list = []*directory.UserDependency{}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(list))
}

// GetDependency 获取依赖链
// GET /api/v1/dependencies/:id
func (h *DirectoryHandler) GetDependency(c *gin.Context) {
	dep, err := h.service.Repository().GetDependency(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询依赖链失败: %v", err)))
		return
	}
	if dep == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "依赖链不存在"))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dep))
}

// SaveDependency 创建或替换依赖链，已有Task在下一次审批时读取新的阶段分配
// PUT /api/v1/dependencies/:id
func (h *DirectoryHandler) SaveDependency(c *gin.Context) {
	var req dto.DependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}

	ctx := c.Request.Context()
	repo := h.service.Repository()
	dep := &directory.UserDependency{
		ID:         c.Param("id"),
		WorkflowID: req.WorkflowID,
		Name:       req.Name,
		Stages:     req.Stages,
	}
	if err := directory.ValidateDependency(dep); err != nil {
		badRequest(c, "%v", err)
		return
	}

	wf, err := repo.GetWorkflow(ctx, dep.WorkflowID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询工作流失败: %v", err)))
		return
	}
	if wf == nil {
		badRequest(c, "工作流 %s 不存在", dep.WorkflowID)
		return
	}

	if err := h.service.RegisterDependency(ctx, dep); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("保存依赖链失败: %v", err)))
		return
	}
	h.invalidate(dep.ID)

	saved, err := repo.GetDependency(ctx, dep.ID)
	if err != nil || saved == nil {
		saved = dep
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(saved))
}

// DeleteDependency 删除依赖链
// DELETE /api/v1/dependencies/:id
func (h *DirectoryHandler) DeleteDependency(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Repository().DeleteDependency(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "依赖链不存在"))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("删除依赖链失败: %v", err)))
		return
	}
	h.invalidate(id)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"id":      id,
		"message": "依赖链已删除",
	}))
}

// GetStage 查询依赖链中的单个阶段分配
// GET /api/v1/dependencies/:id/stages/:order
func (h *DirectoryHandler) GetStage(c *gin.Context) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil || order <= 0 {
		badRequest(c, "阶段序号必须为正整数: %s", c.Param("order"))
		return
	}
	st, err := h.service.GetStageAssignment(c.Request.Context(), c.Param("id"), order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询阶段分配失败: %v", err)))
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "阶段分配不存在"))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(st))
}

func (h *DirectoryHandler) invalidate(dependencyID string) {
	if h.cache != nil {
		h.cache.Invalidate(dependencyID)
	}
}
