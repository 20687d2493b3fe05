package dao

import (
	"time"
)

// LinkingConfigDAO worksheet_linking_config表的数据访问对象（内部使用）
type LinkingConfigDAO struct {
	ID            string    `db:"id"`
	WorkflowID    string    `db:"workflow_id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	StageMappings string    `db:"stage_mappings"` // JSON格式存储
	CreatedBy     string    `db:"created_by"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// LinkingConfigColumns worksheet_linking_config表的全部列
var LinkingConfigColumns = []string{
	"id", "workflow_id", "name", "description", "stage_mappings",
	"created_by", "is_active", "created_at", "updated_at",
}
