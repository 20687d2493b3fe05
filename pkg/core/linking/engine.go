package linking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/LENAX/stageflow/pkg/core/types"
	"github.com/google/uuid"
)

// Repository 联动配置的持久化接口（按实体upsert）
type Repository interface {
	// ListAll 加载全部联动配置
	ListAll(ctx context.Context) ([]*Config, error)
	// Save 保存联动配置（创建或更新）
	Save(ctx context.Context, cfg *Config) error
	// Delete 删除联动配置
	Delete(ctx context.Context, id string) error
}

// Engine 字段联动引擎（对外导出）
// 配置集合常驻内存，写操作在单写锁内完成 修改内存 -> 持久化，持久化失败时回滚内存
type Engine struct {
	mu        sync.RWMutex
	repo      Repository
	configs   map[string]*Config // 配置ID -> 配置
	byWF      map[string]string  // workflowID -> 配置ID
	publisher events.Publisher
	now       func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithPublisher 设置变更通知发布者
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock 设置时钟（测试使用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine 创建字段联动引擎（对外导出）
func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		configs: make(map[string]*Config),
		byWF:    make(map[string]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load 从存储加载全部配置到内存
func (e *Engine) Load(ctx context.Context) error {
	cfgs, err := e.repo.ListAll(ctx)
	if err != nil {
		return types.NewError(types.KindPersistence, "linking.Load", "加载联动配置失败", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = make(map[string]*Config, len(cfgs))
	e.byWF = make(map[string]string, len(cfgs))
	for _, c := range cfgs {
		if _, dup := e.byWF[c.WorkflowID]; dup {
			log.Printf("⚠️ [Linking] 工作流 %s 存在多份联动配置，忽略 %s", c.WorkflowID, c.ID)
			continue
		}
		e.configs[c.ID] = c.Clone()
		e.byWF[c.WorkflowID] = c.ID
	}
	log.Printf("✅ [Linking] 已加载 %d 份联动配置", len(e.configs))
	return nil
}

// CreateWorksheetLinking 创建联动配置
// 同一workflowId只能有一份配置，重复创建返回校验错误，调用方应改用更新
func (e *Engine) CreateWorksheetLinking(ctx context.Context, spec CreateSpec) (*Config, error) {
	const op = "linking.Create"
	now := e.now()
	cfg := &Config{
		ID:            uuid.NewString(),
		WorkflowID:    spec.WorkflowID,
		Name:          spec.Name,
		Description:   spec.Description,
		StageMappings: cloneStageMappings(spec.StageMappings),
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     spec.CreatedBy,
		IsActive:      true,
	}
	if spec.IsActive != nil {
		cfg.IsActive = *spec.IsActive
	}
	if err := validate(cfg); err != nil {
		return nil, types.NewError(types.KindValidation, op, err.Error(), nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.byWF[cfg.WorkflowID]; ok {
		return nil, types.Errorf(types.KindValidation, op, "工作流 %s 已存在联动配置 %s，请使用更新", cfg.WorkflowID, existing)
	}

	e.configs[cfg.ID] = cfg
	e.byWF[cfg.WorkflowID] = cfg.ID
	if err := e.repo.Save(ctx, cfg.Clone()); err != nil {
		delete(e.configs, cfg.ID)
		delete(e.byWF, cfg.WorkflowID)
		return nil, types.NewError(types.KindPersistence, op, "保存联动配置失败", err)
	}

	e.notify(cfg, "created")
	return cfg.Clone(), nil
}

// UpdateWorksheetLinking 按ID更新联动配置
func (e *Engine) UpdateWorksheetLinking(ctx context.Context, id string, patch Patch) (*Config, error) {
	const op = "linking.Update"

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := e.configs[id]
	if !ok {
		return nil, types.Errorf(types.KindNotFound, op, "联动配置 %s 不存在", id)
	}

	next := prev.Clone()
	if patch.WorkflowID != nil {
		next.WorkflowID = *patch.WorkflowID
	}
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.StageMappings != nil {
		next.StageMappings = cloneStageMappings(patch.StageMappings)
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = e.now()

	if err := validate(next); err != nil {
		return nil, types.NewError(types.KindValidation, op, err.Error(), nil)
	}
	if owner, ok := e.byWF[next.WorkflowID]; ok && owner != id {
		return nil, types.Errorf(types.KindValidation, op, "工作流 %s 已存在联动配置 %s", next.WorkflowID, owner)
	}

	e.configs[id] = next
	delete(e.byWF, prev.WorkflowID)
	e.byWF[next.WorkflowID] = id
	if err := e.repo.Save(ctx, next.Clone()); err != nil {
		e.configs[id] = prev
		delete(e.byWF, next.WorkflowID)
		e.byWF[prev.WorkflowID] = id
		return nil, types.NewError(types.KindPersistence, op, "保存联动配置失败", err)
	}

	e.notify(next, "updated")
	return next.Clone(), nil
}

// DeleteWorksheetLinking 按ID删除联动配置
func (e *Engine) DeleteWorksheetLinking(ctx context.Context, id string) error {
	const op = "linking.Delete"

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := e.configs[id]
	if !ok {
		return types.Errorf(types.KindNotFound, op, "联动配置 %s 不存在", id)
	}

	delete(e.configs, id)
	delete(e.byWF, prev.WorkflowID)
	if err := e.repo.Delete(ctx, id); err != nil {
		e.configs[id] = prev
		e.byWF[prev.WorkflowID] = id
		return types.NewError(types.KindPersistence, op, "删除联动配置失败", err)
	}

	e.notify(prev, "deleted")
	return nil
}

// GetWorksheetLinking 按ID查询联动配置
func (e *Engine) GetWorksheetLinking(id string) (*Config, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cfg, ok := e.configs[id]
	if !ok {
		return nil, types.Errorf(types.KindNotFound, "linking.Get", "联动配置 %s 不存在", id)
	}
	return cfg.Clone(), nil
}

// GetWorksheetLinkingByWorkflow 按workflowId查询联动配置
func (e *Engine) GetWorksheetLinkingByWorkflow(workflowID string) (*Config, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	id, ok := e.byWF[workflowID]
	if !ok {
		return nil, false
	}
	return e.configs[id].Clone(), true
}

// ListWorksheetLinkings 返回全部联动配置（按创建时间排序）
func (e *Engine) ListWorksheetLinkings() []*Config {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Config, 0, len(e.configs))
	for _, c := range e.configs {
		out = append(out, c.Clone())
	}
	sortConfigs(out)
	return out
}

// GetFieldMappingForStageTransition 返回 fromStage -> toStage 的字段映射
// 没有配置、配置未启用或没有匹配的阶段映射时返回空切片，这不是错误
func (e *Engine) GetFieldMappingForStageTransition(workflowID string, fromStage, toStage int) []FieldMapping {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.fieldMappingLocked(workflowID, fromStage, toStage)
}

func (e *Engine) fieldMappingLocked(workflowID string, fromStage, toStage int) []FieldMapping {
	id, ok := e.byWF[workflowID]
	if !ok {
		return []FieldMapping{}
	}
	cfg := e.configs[id]
	if !cfg.IsActive {
		return []FieldMapping{}
	}
	m := cfg.FindStageMapping(fromStage, toStage)
	if m == nil {
		return []FieldMapping{}
	}
	out := make([]FieldMapping, len(m.FieldMappings))
	copy(out, m.FieldMappings)
	return out
}

// ApplyFieldLinking 根据映射从上一阶段输出计算下一阶段的预填数据
// 只复制sourceData中存在的字段，不存在的字段不会以空值出现在结果中；无副作用
func (e *Engine) ApplyFieldLinking(workflowID string, fromStage, toStage int, sourceData map[string]any) map[string]any {
	result := make(map[string]any)
	if len(sourceData) == 0 {
		return result
	}

	e.mu.RLock()
	mappings := e.fieldMappingLocked(workflowID, fromStage, toStage)
	e.mu.RUnlock()

	for _, fm := range mappings {
		if v, ok := sourceData[fm.FromFieldID]; ok {
			result[fm.ToFieldID] = cloneAny(v)
		}
	}
	return result
}

func (e *Engine) notify(cfg *Config, action string) {
	if e.publisher == nil {
		return
	}
	payload := events.LinkingChangePayload{ConfigID: cfg.ID, WorkflowID: cfg.WorkflowID, Action: action}
	if err := e.publisher.Publish(events.EventLinkingConfigChanged, cfg.ID, payload); err != nil {
		log.Printf("⚠️ [Linking] 发布变更通知失败: ConfigID=%s, Error=%v", cfg.ID, err)
	}
}

// String 便于日志输出
func (c *Config) String() string {
	return fmt.Sprintf("Config{ID=%s, WorkflowID=%s, Name=%s, Mappings=%d}", c.ID, c.WorkflowID, c.Name, len(c.StageMappings))
}
