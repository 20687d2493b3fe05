package dao

import (
	"time"
)

// WorkflowDefinitionDAO workflow_definition表的数据访问对象（内部使用）
type WorkflowDefinitionDAO struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	TaskCount   int       `db:"task_count"`
	CreatedAt   time.Time `db:"created_at"`
}

// UserDependencyDAO user_dependency表的数据访问对象（内部使用）
type UserDependencyDAO struct {
	ID         string    `db:"id"`
	WorkflowID string    `db:"workflow_id"`
	Name       string    `db:"name"`
	Stages     string    `db:"stages"` // JSON格式存储的StageAssignment列表
	TaskCount  int       `db:"task_count"`
	CreatedAt  time.Time `db:"created_at"`
}
