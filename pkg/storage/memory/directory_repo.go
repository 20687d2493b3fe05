package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/storage"
)

// DirectoryRepo 内存目录Repository（对外导出）
type DirectoryRepo struct {
	mu           sync.RWMutex
	workflows    map[string]*directory.WorkflowDefinition
	dependencies map[string]*directory.UserDependency
}

// NewDirectoryRepo 创建内存DirectoryRepo
func NewDirectoryRepo() *DirectoryRepo {
	return &DirectoryRepo{
		workflows:    make(map[string]*directory.WorkflowDefinition),
		dependencies: make(map[string]*directory.UserDependency),
	}
}

// SaveWorkflow 保存工作流定义，已存在时保留使用计数与创建时间
func (r *DirectoryRepo) SaveWorkflow(ctx context.Context, wf *directory.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *wf
	if existing, ok := r.workflows[wf.ID]; ok {
		cp.TaskCount = existing.TaskCount
		cp.CreatedAt = existing.CreatedAt
	}
	r.workflows[wf.ID] = &cp
	return nil
}

// GetWorkflow 查询工作流定义
func (r *DirectoryRepo) GetWorkflow(ctx context.Context, id string) (*directory.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[id]
	if !ok {
		return nil, nil
	}
	cp := *wf
	return &cp, nil
}

// ListWorkflows 查询所有工作流定义
func (r *DirectoryRepo) ListWorkflows(ctx context.Context) ([]*directory.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*directory.WorkflowDefinition, 0, len(r.workflows))
	for _, wf := range r.workflows {
		cp := *wf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IncrementWorkflowTaskCount 工作流使用计数+1
func (r *DirectoryRepo) IncrementWorkflowTaskCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wf, ok := r.workflows[id]
	if !ok {
		return storage.ErrNotFound
	}
	wf.TaskCount++
	return nil
}

// SaveDependency 保存依赖链，已存在时保留使用计数与创建时间
func (r *DirectoryRepo) SaveDependency(ctx context.Context, dep *directory.UserDependency) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := copyDependency(dep)
	if existing, ok := r.dependencies[dep.ID]; ok {
		cp.TaskCount = existing.TaskCount
		cp.CreatedAt = existing.CreatedAt
	}
	r.dependencies[dep.ID] = cp
	return nil
}

// GetDependency 查询依赖链
func (r *DirectoryRepo) GetDependency(ctx context.Context, id string) (*directory.UserDependency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dep, ok := r.dependencies[id]
	if !ok {
		return nil, nil
	}
	return copyDependency(dep), nil
}

// ListDependencies 查询依赖链，workflowID为空时返回全部
func (r *DirectoryRepo) ListDependencies(ctx context.Context, workflowID string) ([]*directory.UserDependency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*directory.UserDependency, 0)
	for _, dep := range r.dependencies {
		if workflowID == "" || dep.WorkflowID == workflowID {
			out = append(out, copyDependency(dep))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteDependency 删除依赖链
func (r *DirectoryRepo) DeleteDependency(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dependencies[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.dependencies, id)
	return nil
}

// IncrementDependencyTaskCount 依赖链使用计数+1
func (r *DirectoryRepo) IncrementDependencyTaskCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dep, ok := r.dependencies[id]
	if !ok {
		return storage.ErrNotFound
	}
	dep.TaskCount++
	return nil
}

func copyDependency(dep *directory.UserDependency) *directory.UserDependency {
	cp := *dep
	cp.Stages = append([]directory.StageAssignment(nil), dep.Stages...)
	return &cp
}

var _ storage.DirectoryRepository = (*DirectoryRepo)(nil)
