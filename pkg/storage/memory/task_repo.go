// Package memory 提供进程内存储实现，用于测试和 memory 数据库类型
// 写入与读取都做深拷贝，调用方无法通过返回值修改存储内容
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/storage"
)

// ErrInjected 注入的存储故障
var ErrInjected = errors.New("模拟存储故障")

// TaskRepo 内存Task快照Repository（对外导出）
type TaskRepo struct {
	mu             sync.RWMutex
	tasks          map[string]*task.Task
	shouldFailSave bool
	failCount      int
}

// NewTaskRepo 创建内存TaskRepo
func NewTaskRepo() *TaskRepo {
	return &TaskRepo{tasks: make(map[string]*task.Task)}
}

// SetShouldFailSave 设置Create/Update是否失败
func (r *TaskRepo) SetShouldFailSave(shouldFail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shouldFailSave = shouldFail
}

// SetFailCount 接下来的count次写入失败（用于模拟部分失败）
func (r *TaskRepo) SetFailCount(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCount = count
}

func (r *TaskRepo) injectedFailure() error {
	if r.shouldFailSave {
		return fmt.Errorf("%w：保存失败", ErrInjected)
	}
	if r.failCount > 0 {
		r.failCount--
		return fmt.Errorf("%w：保存失败（剩余%d次）", ErrInjected, r.failCount)
	}
	return nil
}

// Create 插入新Task
func (r *TaskRepo) Create(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.injectedFailure(); err != nil {
		return err
	}
	if _, exists := r.tasks[t.ID]; exists {
		return fmt.Errorf("Task %s 已存在", t.ID)
	}
	t.Version = 1
	r.tasks[t.ID] = t.Clone()
	return nil
}

// Get 根据ID查询Task
func (r *TaskRepo) Get(ctx context.Context, id string) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// Update 按版本号更新Task
func (r *TaskRepo) Update(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.injectedFailure(); err != nil {
		return err
	}
	current, ok := r.tasks[t.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if current.Version != t.Version {
		return fmt.Errorf("Task %s 版本 %d (存储中为 %d): %w", t.ID, t.Version, current.Version, storage.ErrVersionConflict)
	}
	t.Version++
	r.tasks[t.ID] = t.Clone()
	return nil
}

// Delete 删除Task
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

// List 按条件查询Task
func (r *TaskRepo) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if filter.Match(t) {
			out = append(out, t.Clone())
		}
	}
	sortTasks(out)
	return out, nil
}

// ListOpenWithDueDate 查询设置了截止时间且未结束的Task
func (r *TaskRepo) ListOpenWithDueDate(ctx context.Context) ([]*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*task.Task, 0)
	for _, t := range r.tasks {
		if t.DueDate != nil && !t.Status.IsTerminal() {
			out = append(out, t.Clone())
		}
	}
	sortTasks(out)
	return out, nil
}

func sortTasks(tasks []*task.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

var _ storage.TaskRepository = (*TaskRepo)(nil)
