package storage

import (
	"context"

	"github.com/LENAX/stageflow/pkg/core/task"
)

// TaskCRUDRepository Task快照通用CRUD接口（对外导出）
type TaskCRUDRepository interface {
	BaseRepository
	// Create 插入新Task，版本号从1开始（写回t.Version）
	Create(ctx context.Context, t *task.Task) error
	// Get 根据ID查询Task，不存在返回 ErrNotFound
	Get(ctx context.Context, id string) (*task.Task, error)
	// Update 按版本号更新Task：存储中的版本必须等于t.Version，成功后版本号加一并写回t.Version
	// 记录不存在返回 ErrNotFound，版本不一致返回 ErrVersionConflict
	Update(ctx context.Context, t *task.Task) error
	// Delete 删除Task，不存在返回 ErrNotFound
	Delete(ctx context.Context, id string) error
}

// TaskRepository Task快照业务存储接口（对外导出）
type TaskRepository interface {
	TaskCRUDRepository

	// List 按条件查询Task，按创建时间升序
	List(ctx context.Context, filter task.Filter) ([]*task.Task, error)
	// ListOpenWithDueDate 查询设置了截止时间且未结束的Task（逾期扫描使用）
	ListOpenWithDueDate(ctx context.Context) ([]*task.Task, error)
}
