// Package dao 定义SQL持久化使用的行结构
package dao

import (
	"database/sql"
	"time"
)

// TaskDAO tasks表的数据访问对象（内部使用）
// stage_history / review / logs 以JSON格式存储
type TaskDAO struct {
	ID                 string         `db:"id"`
	Title              string         `db:"title"`
	Description        string         `db:"description"`
	Status             string         `db:"status"`
	Priority           string         `db:"priority"`
	CategoryID         string         `db:"category_id"`
	CategoryPath       string         `db:"category_path"`
	AssignedTo         string         `db:"assigned_to"`
	AssignedToName     string         `db:"assigned_to_name"`
	CheckerID          string         `db:"checker_id"`
	CheckerName        string         `db:"checker_name"`
	WorkflowID         sql.NullString `db:"workflow_id"`
	UserDependencyID   sql.NullString `db:"user_dependency_id"`
	CurrentStage       int            `db:"current_stage"`
	StageHistory       string         `db:"stage_history"`
	Review             sql.NullString `db:"review"`
	RevisedCount       int            `db:"revised_count"`
	IsWorkflowComplete bool           `db:"is_workflow_complete"`
	Logs               string         `db:"logs"`
	CreatedBy          string         `db:"created_by"`
	ApprovedBy         string         `db:"approved_by"`
	ApprovedAt         sql.NullTime   `db:"approved_at"`
	DueDate            sql.NullTime   `db:"due_date"`
	StartDate          sql.NullTime   `db:"start_date"`
	CompletedDate      sql.NullTime   `db:"completed_date"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	Version            int            `db:"version"`
}

// TaskColumns tasks表的全部列（与TaskDAO一一对应）
var TaskColumns = []string{
	"id", "title", "description", "status", "priority",
	"category_id", "category_path", "assigned_to", "assigned_to_name",
	"checker_id", "checker_name", "workflow_id", "user_dependency_id",
	"current_stage", "stage_history", "review", "revised_count",
	"is_workflow_complete", "logs", "created_by", "approved_by", "approved_at",
	"due_date", "start_date", "completed_date", "created_at", "updated_at", "version",
}
