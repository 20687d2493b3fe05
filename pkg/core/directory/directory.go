// Package directory 提供阶段分配目录（Stage Directory）与工作流注册表（Workflow Registry）
// 给定依赖链ID与阶段序号，返回该阶段的分类、执行人与审核人
package directory

import (
	"context"
	"time"
)

// StageAssignment 阶段分配（不可变值）
type StageAssignment struct {
	StageOrder   int    `json:"stageOrder" yaml:"stage_order"`
	CategoryID   string `json:"categoryId" yaml:"category_id"`
	CategoryName string `json:"categoryName" yaml:"category_name"`
	UserID       string `json:"userId" yaml:"user_id"`
	UserName     string `json:"userName" yaml:"user_name"`
	CheckerID    string `json:"checkerId" yaml:"checker_id"`
	CheckerName  string `json:"checkerName" yaml:"checker_name"`
}

// UserDependency 依赖链：一个工作流实例的有序阶段分配
type UserDependency struct {
	ID         string            `json:"id" yaml:"id"`
	WorkflowID string            `json:"workflowId" yaml:"workflow_id"`
	Name       string            `json:"name" yaml:"name"`
	Stages     []StageAssignment `json:"stages" yaml:"stages"`
	TaskCount  int               `json:"taskCount" yaml:"-"`
	CreatedAt  time.Time         `json:"createdAt" yaml:"-"`
}

// WorkflowDefinition 工作流定义
type WorkflowDefinition struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	TaskCount   int       `json:"taskCount" yaml:"-"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
}

// StageDirectory 阶段分配目录接口（对外导出）
// 查询不到时返回 (nil, nil)，error 只用于存储层故障
type StageDirectory interface {
	// GetStageAssignment 查询依赖链中指定阶段的分配
	GetStageAssignment(ctx context.Context, dependencyID string, stageOrder int) (*StageAssignment, error)
	// IsLastStage 指定阶段是否为依赖链的最后一个阶段
	IsLastStage(ctx context.Context, dependencyID string, stageOrder int) (bool, error)
	// GetNextStage 返回序号大于stageOrder的最小阶段
	GetNextStage(ctx context.Context, dependencyID string, stageOrder int) (*StageAssignment, error)
	// IncrementTaskCount 依赖链使用计数+1
	IncrementTaskCount(ctx context.Context, dependencyID string) error
}

// WorkflowRegistry 工作流注册表接口（对外导出）
type WorkflowRegistry interface {
	// IncrementTaskCount 工作流使用计数+1
	IncrementTaskCount(ctx context.Context, workflowID string) error
}
