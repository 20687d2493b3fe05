// Package engine 实现任务状态机（Task State Machine）与阶段交接编排（Stage Handoff Orchestrator）
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/core/types"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/google/uuid"
)

// FieldLinker 字段联动计算接口，由 linking.Engine 实现
type FieldLinker interface {
	ApplyFieldLinking(workflowID string, fromStage, toStage int, sourceData map[string]any) map[string]any
}

// Engine 任务编排引擎核心结构体（对外导出）
// 所有Task写操作在同一把互斥锁内完成 读取 -> 修改 -> 按版本号保存，保存失败时不返回任何修改
type Engine struct {
	mu        sync.Mutex
	tasks     storage.TaskRepository
	directory directory.StageDirectory
	registry  directory.WorkflowRegistry
	linker    FieldLinker
	publisher events.Publisher
	now       func() time.Time
	newID     func() string
	debug     bool
}

// Option 引擎选项
type Option func(*Engine)

// WithStageDirectory 设置阶段分配目录
func WithStageDirectory(d directory.StageDirectory) Option {
	return func(e *Engine) { e.directory = d }
}

// WithWorkflowRegistry 设置工作流注册表
func WithWorkflowRegistry(r directory.WorkflowRegistry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithFieldLinker 设置字段联动引擎
func WithFieldLinker(l FieldLinker) Option {
	return func(e *Engine) { e.linker = l }
}

// WithPublisher 设置变更通知发布者
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock 设置时钟（测试使用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator 设置Task ID生成函数
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithDebug 开启调试日志
func WithDebug(enabled bool) Option {
	return func(e *Engine) { e.debug = enabled }
}

// NewEngine 创建Engine实例（对外导出的工厂方法）
func NewEngine(tasks storage.TaskRepository, opts ...Option) (*Engine, error) {
	if tasks == nil {
		return nil, fmt.Errorf("TaskRepository不能为空")
	}
	e := &Engine{
		tasks: tasks,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GetTask 根据ID查询Task
func (e *Engine) GetTask(ctx context.Context, id string) (result *task.Task, err error) {
	const op = "engine.GetTask"
	defer recoverOp(op, &err)
	return e.load(ctx, op, id)
}

// ListTasks 按条件查询Task
func (e *Engine) ListTasks(ctx context.Context, filter task.Filter) (result []*task.Task, err error) {
	const op = "engine.ListTasks"
	defer recoverOp(op, &err)

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, types.Errorf(types.KindValidation, op, "未知状态: %s", filter.Status)
	}
	list, err := e.tasks.List(ctx, filter)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return list, nil
}

// DeleteTask 管理员删除Task
func (e *Engine) DeleteTask(ctx context.Context, id, actor string) (err error) {
	const op = "engine.DeleteTask"
	defer recoverOp(op, &err)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tasks.Delete(ctx, id); err != nil {
		return storageErr(op, err)
	}
	log.Printf("✅ [Engine] Task已删除: ID=%s, Actor=%s", id, actor)
	e.publish(events.EventTaskCollectionChanged, id, events.TaskChangePayload{TaskID: id, Action: "task_deleted", Actor: actor})
	return nil
}

// mutate 在互斥锁内对Task执行 读取 -> 修改 -> 保存
// fn 修改的是从存储读出的私有副本，返回错误或保存失败时该副本被丢弃
func (e *Engine) mutate(ctx context.Context, op, id string, fn func(t *task.Task, now time.Time) error) (*task.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := fn(t, now); err != nil {
		return nil, err
	}
	t.UpdatedAt = now
	if err := e.tasks.Update(ctx, t); err != nil {
		log.Printf("❌ [Engine] 保存Task失败: Op=%s, ID=%s, Error=%v", op, id, err)
		return nil, storageErr(op, err)
	}
	return t, nil
}

func (e *Engine) load(ctx context.Context, op, id string) (*task.Task, error) {
	if id == "" {
		return nil, types.Errorf(types.KindValidation, op, "Task ID不能为空")
	}
	t, err := e.tasks.Get(ctx, id)
	if err != nil {
		return nil, storageErr(op, err)
	}
	return t, nil
}

// publish 发布变更通知，失败只记录日志
func (e *Engine) publish(eventType events.EventType, subjectID string, payload interface{}) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(eventType, subjectID, payload); err != nil {
		log.Printf("⚠️ [Engine] 发布事件失败: Type=%s, SubjectID=%s, Error=%v", eventType, subjectID, err)
	}
}

func (e *Engine) publishTaskChange(t *task.Task, action, actor string) {
	e.publish(events.EventTaskCollectionChanged, t.ID, events.TaskChangePayload{
		TaskID:     t.ID,
		Action:     action,
		Status:     string(t.Status),
		Actor:      actor,
		AssignedTo: t.AssignedTo,
	})
}

func (e *Engine) debugf(format string, args ...interface{}) {
	if e.debug {
		log.Printf("🔍 [Engine] "+format, args...)
	}
}

// storageErr 将存储层错误转换为结构化错误
func storageErr(op string, err error) error {
	var typed *types.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return types.NewError(types.KindNotFound, op, "Task不存在", err)
	case errors.Is(err, storage.ErrVersionConflict):
		return types.NewError(types.KindPersistence, op, "Task已被其他操作修改，请重新加载后重试", err)
	case errors.Is(err, storage.ErrCorruptRecord):
		log.Printf("❌ [Engine] 存储数据损坏: Op=%s, Error=%v", op, err)
		return types.NewError(types.KindInternal, op, "存储数据损坏", err)
	default:
		return types.NewError(types.KindPersistence, op, "存储操作失败", err)
	}
}

// recoverOp 在操作边界捕获panic并转换为 INTERNAL 错误
func recoverOp(op string, err *error) {
	if r := recover(); r != nil {
		log.Printf("❌ [Engine] %s 发生panic: %v\n%s", op, r, debug.Stack())
		*err = types.Errorf(types.KindInternal, op, "内部错误: %v", r)
	}
}
