package dto

import (
	"time"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/core/task"
)

// CreateTaskRequest 创建Task请求
type CreateTaskRequest struct {
	Title            string     `json:"title" binding:"required"`
	Description      string     `json:"description"`
	Priority         string     `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	CategoryID       string     `json:"categoryId"`
	CategoryPath     string     `json:"categoryPath"`
	AssignedTo       string     `json:"assignedTo"`
	AssignedToName   string     `json:"assignedToName"`
	CheckerID        string     `json:"checkerId"`
	CheckerName      string     `json:"checkerName"`
	WorkflowID       string     `json:"workflowId"`
	UserDependencyID string     `json:"userDependencyId"`
	CurrentStage     int        `json:"currentStage" binding:"omitempty,min=1"`
	DueDate          *time.Time `json:"dueDate"`
	CreatedBy        string     `json:"createdBy"`
}

// ToSpec 转换为引擎参数
func (r CreateTaskRequest) ToSpec() task.CreateSpec {
	return task.CreateSpec{
		Title:            r.Title,
		Description:      r.Description,
		Priority:         task.Priority(r.Priority),
		CategoryID:       r.CategoryID,
		CategoryPath:     r.CategoryPath,
		AssignedTo:       r.AssignedTo,
		AssignedToName:   r.AssignedToName,
		CheckerID:        r.CheckerID,
		CheckerName:      r.CheckerName,
		WorkflowID:       r.WorkflowID,
		UserDependencyID: r.UserDependencyID,
		CurrentStage:     r.CurrentStage,
		DueDate:          r.DueDate,
		CreatedBy:        r.CreatedBy,
	}
}

// UpdateStatusRequest 直接设置状态请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor"`
}

// ActorRequest 只携带操作人的请求（开始处理、开始审核）
type ActorRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// SubmitRequest 提交审核请求
type SubmitRequest struct {
	UserID         string                 `json:"userId" binding:"required"`
	SubmissionData map[string]interface{} `json:"submissionData"`
}

// ApproveRequest 审批通过请求
type ApproveRequest struct {
	CheckerID  string                 `json:"checkerId" binding:"required"`
	Feedback   string                 `json:"feedback"`
	OutputData map[string]interface{} `json:"outputData"`
}

// RevisionRequest 要求返工请求
type RevisionRequest struct {
	CheckerID              string   `json:"checkerId" binding:"required"`
	Feedback               string   `json:"feedback"`
	ApprovedChecklistItems []string `json:"approvedChecklistItems"`
}

// CancelRequest 取消请求
type CancelRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// TaskListQuery Task列表查询条件
type TaskListQuery struct {
	Status     string `form:"status"`
	AssignedTo string `form:"assignedTo"`
	CheckerID  string `form:"checkerId"`
	WorkflowID string `form:"workflowId"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset     int    `form:"offset" binding:"omitempty,min=0"`
}

// Filter 转换为引擎过滤条件
func (q TaskListQuery) Filter() task.Filter {
	return task.Filter{
		Status:     task.Status(q.Status),
		AssignedTo: q.AssignedTo,
		CheckerID:  q.CheckerID,
		WorkflowID: q.WorkflowID,
	}
}

// GetDefaultLimit 获取默认limit
func (q TaskListQuery) GetDefaultLimit() int {
	if q.Limit <= 0 {
		return 100
	}
	return q.Limit
}

// LinkingRequest 创建联动配置请求
type LinkingRequest = linking.CreateSpec

// LinkingPatchRequest 更新联动配置请求
type LinkingPatchRequest = linking.Patch

// ApplyLinkingRequest 试算字段联动请求
type ApplyLinkingRequest struct {
	WorkflowID string                 `json:"workflowId" binding:"required"`
	FromStage  int                    `json:"fromStage" binding:"required,min=1"`
	ToStage    int                    `json:"toStage" binding:"required,min=1"`
	SourceData map[string]interface{} `json:"sourceData"`
}

// MappingQuery 查询阶段映射
type MappingQuery struct {
	WorkflowID string `form:"workflowId" binding:"required"`
	From       int    `form:"from" binding:"required,min=1"`
	To         int    `form:"to" binding:"required,min=1"`
}

// RegisterWorkflowRequest 注册工作流定义请求
type RegisterWorkflowRequest struct {
	ID          string `json:"id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// DependencyRequest 保存依赖链请求，ID取自路径
type DependencyRequest struct {
	WorkflowID string                      `json:"workflowId" binding:"required"`
	Name       string                      `json:"name"`
	Stages     []directory.StageAssignment `json:"stages" binding:"required,min=1"`
}
