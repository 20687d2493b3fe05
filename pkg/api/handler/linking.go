package handler

import (
	"net/http"

	"github.com/LENAX/stageflow/pkg/api/dto"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/gin-gonic/gin"
)

// LinkingHandler 工作表联动配置API处理器
type LinkingHandler struct {
	engine *linking.Engine
}

// NewLinkingHandler 创建LinkingHandler
func NewLinkingHandler(eng *linking.Engine) *LinkingHandler {
	return &LinkingHandler{engine: eng}
}

// List 列出联动配置，可按workflowId过滤
// GET /api/v1/linkings
func (h *LinkingHandler) List(c *gin.Context) {
	if wf := c.Query("workflowId"); wf != "" {
		items := []*linking.Config{}
		if cfg, ok := h.engine.GetWorksheetLinkingByWorkflow(wf); ok {
			items = append(items, cfg)
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(items))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.engine.ListWorksheetLinkings()))
}

// Create 创建联动配置
// POST /api/v1/linkings
func (h *LinkingHandler) Create(c *gin.Context) {
	var req dto.LinkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	cfg, err := h.engine.CreateWorksheetLinking(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(cfg))
}

// Get 获取联动配置
// GET /api/v1/linkings/:id
func (h *LinkingHandler) Get(c *gin.Context) {
	cfg, err := h.engine.GetWorksheetLinking(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(cfg))
}

// Update 更新联动配置（只更新请求中出现的字段）
// PUT /api/v1/linkings/:id
func (h *LinkingHandler) Update(c *gin.Context) {
	var req dto.LinkingPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	cfg, err := h.engine.UpdateWorksheetLinking(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(cfg))
}

// Delete 删除联动配置
// DELETE /api/v1/linkings/:id
func (h *LinkingHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.DeleteWorksheetLinking(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"id":      id,
		"message": "联动配置已删除",
	}))
}

// Mapping 查询阶段之间的字段映射
// GET /api/v1/field-mappings?workflowId=&from=&to=
func (h *LinkingHandler) Mapping(c *gin.Context) {
	var query dto.MappingQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "查询参数错误: %v", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(
		h.engine.GetFieldMappingForStageTransition(query.WorkflowID, query.From, query.To),
	))
}

// Apply 试算字段联动结果，不修改任何数据
// POST /api/v1/field-mappings/apply
func (h *LinkingHandler) Apply(c *gin.Context) {
	var req dto.ApplyLinkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求参数错误: %v", err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(
		h.engine.ApplyFieldLinking(req.WorkflowID, req.FromStage, req.ToStage, req.SourceData),
	))
}
