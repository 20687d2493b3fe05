// Package task 定义多阶段工作流中的任务实体、阶段记录与审核信息
package task

import (
	"time"
)

// Task 工作单元（对外导出）
// 一个Task在其生命周期内沿着依赖链逐阶段流转，每个阶段由一名执行人（Doer）和一名审核人（Checker）负责
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`

	// 当前阶段的分类
	CategoryID   string `json:"categoryId,omitempty"`
	CategoryPath string `json:"categoryPath,omitempty"`

	// 当前阶段的执行人与审核人
	AssignedTo     string `json:"assignedTo,omitempty"`
	AssignedToName string `json:"assignedToName,omitempty"`
	CheckerID      string `json:"checkerId,omitempty"`
	CheckerName    string `json:"checkerName,omitempty"`

	// 工作流绑定（非工作流任务为空）
	WorkflowID       string `json:"workflowId,omitempty"`
	UserDependencyID string `json:"userDependencyId,omitempty"`

	CurrentStage       int           `json:"currentStage"`
	StageHistory       []StageRecord `json:"stageHistory"`
	Review             *Review       `json:"review"`
	RevisedCount       int           `json:"revisedCount"`
	IsWorkflowComplete bool          `json:"isWorkflowComplete"`
	Logs               []LogEntry    `json:"logs"`

	CreatedBy     string     `json:"createdBy,omitempty"`
	ApprovedBy    string     `json:"approvedBy,omitempty"`
	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`

	// Version 乐观并发版本号，每次成功保存后递增
	Version int `json:"version"`
}

// IsWorkflowBound 是否绑定了工作流与依赖链
func (t *Task) IsWorkflowBound() bool {
	return t.WorkflowID != "" && t.UserDependencyID != ""
}

// LastStageRecord 返回最近一条阶段记录，没有时返回nil
func (t *Task) LastStageRecord() *StageRecord {
	if len(t.StageHistory) == 0 {
		return nil
	}
	return &t.StageHistory[len(t.StageHistory)-1]
}

// AppendLog 追加审计日志
func (t *Task) AppendLog(action, performedBy, details string, at time.Time) {
	t.Logs = append(t.Logs, LogEntry{
		Action:      action,
		Timestamp:   at,
		PerformedBy: performedBy,
		Details:     details,
	})
}

// StageRecord 已完成阶段的审批记录（只追加，不修改）
type StageRecord struct {
	StageOrder   int            `json:"stageOrder"`
	CategoryID   string         `json:"categoryId"`
	CategoryName string         `json:"categoryName"`
	UserID       string         `json:"userId"`
	UserName     string         `json:"userName"`
	CheckerID    string         `json:"checkerId"`
	CheckerName  string         `json:"checkerName"`
	Status       Status         `json:"status"`
	InputData    map[string]any `json:"inputData"`
	OutputData   map[string]any `json:"outputData"`
	ApprovedAt   time.Time      `json:"approvedAt"`
	ApprovedBy   string         `json:"approvedBy"`
}

// Review 提交与审核信息
type Review struct {
	SubmissionData         map[string]any `json:"submissionData"`
	SubmittedAt            *time.Time     `json:"submittedAt,omitempty"`
	SubmittedBy            string         `json:"submittedBy,omitempty"`
	ReviewedAt             *time.Time     `json:"reviewedAt,omitempty"`
	ReviewedBy             string         `json:"reviewedBy,omitempty"`
	Approved               bool           `json:"approved"`
	AdminFeedback          string         `json:"adminFeedback,omitempty"`
	RequiresRevision       bool           `json:"requiresRevision"`
	ApprovedChecklistItems []string       `json:"approvedChecklistItems,omitempty"`
}

// LogEntry 审计日志条目
type LogEntry struct {
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	PerformedBy string    `json:"performedBy"`
	Details     string    `json:"details"`
}

// 审计日志动作
const (
	ActionCreated           = "task_created"
	ActionStatusChanged     = "status_changed"
	ActionStarted           = "task_started"
	ActionSubmitted         = "submitted_for_review"
	ActionReviewStarted     = "review_started"
	ActionRevisionRequired  = "revision_required"
	ActionApproved          = "task_approved"
	ActionStageHandoff      = "stage_handoff"
	ActionWorkflowCompleted = "workflow_completed"
	ActionCancelled         = "task_cancelled"
)

// CreateSpec 创建Task的参数（对外导出）
type CreateSpec struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Priority         Priority   `json:"priority"`
	CategoryID       string     `json:"categoryId"`
	CategoryPath     string     `json:"categoryPath"`
	AssignedTo       string     `json:"assignedTo"`
	AssignedToName   string     `json:"assignedToName"`
	CheckerID        string     `json:"checkerId"`
	CheckerName      string     `json:"checkerName"`
	WorkflowID       string     `json:"workflowId"`
	UserDependencyID string     `json:"userDependencyId"`
	CurrentStage     int        `json:"currentStage"`
	DueDate          *time.Time `json:"dueDate"`
	CreatedBy        string     `json:"createdBy"`
}

// Filter 列表查询条件，空字段表示不过滤
type Filter struct {
	Status     Status
	AssignedTo string
	CheckerID  string
	WorkflowID string
}

// Match 判断Task是否满足过滤条件
func (f Filter) Match(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.CheckerID != "" && t.CheckerID != f.CheckerID {
		return false
	}
	if f.WorkflowID != "" && t.WorkflowID != f.WorkflowID {
		return false
	}
	return true
}
