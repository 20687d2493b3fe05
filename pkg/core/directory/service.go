package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Repository 目录数据的持久化接口，由 pkg/storage 下的实现提供
type Repository interface {
	SaveWorkflow(ctx context.Context, wf *WorkflowDefinition) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowDefinition, error)
	ListWorkflows(ctx context.Context) ([]*WorkflowDefinition, error)
	IncrementWorkflowTaskCount(ctx context.Context, id string) error

	SaveDependency(ctx context.Context, dep *UserDependency) error
	GetDependency(ctx context.Context, id string) (*UserDependency, error)
	ListDependencies(ctx context.Context, workflowID string) ([]*UserDependency, error)
	DeleteDependency(ctx context.Context, id string) error
	IncrementDependencyTaskCount(ctx context.Context, id string) error
}

// Service 基于Repository的目录实现，同时实现 StageDirectory 和 WorkflowRegistry
type Service struct {
	repo Repository
}

// NewService 创建目录服务（对外导出）
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Repository 返回底层存储
func (s *Service) Repository() Repository {
	return s.repo
}

// GetStageAssignment 实现 StageDirectory
func (s *Service) GetStageAssignment(ctx context.Context, dependencyID string, stageOrder int) (*StageAssignment, error) {
	dep, err := s.repo.GetDependency(ctx, dependencyID)
	if err != nil || dep == nil {
		return nil, err
	}
	for _, st := range dep.Stages {
		if st.StageOrder == stageOrder {
			a := st
			return &a, nil
		}
	}
	return nil, nil
}

// IsLastStage 实现 StageDirectory
// 依赖链不存在或为空时视为最后阶段之外（false），由调用方在GetNextStage处报告缺口
func (s *Service) IsLastStage(ctx context.Context, dependencyID string, stageOrder int) (bool, error) {
	dep, err := s.repo.GetDependency(ctx, dependencyID)
	if err != nil {
		return false, err
	}
	if dep == nil || len(dep.Stages) == 0 {
		return false, nil
	}
	maxOrder := 0
	for _, st := range dep.Stages {
		if st.StageOrder > maxOrder {
			maxOrder = st.StageOrder
		}
	}
	return stageOrder >= maxOrder, nil
}

// GetNextStage 实现 StageDirectory
func (s *Service) GetNextStage(ctx context.Context, dependencyID string, stageOrder int) (*StageAssignment, error) {
	dep, err := s.repo.GetDependency(ctx, dependencyID)
	if err != nil || dep == nil {
		return nil, err
	}
	var next *StageAssignment
	for i := range dep.Stages {
		st := dep.Stages[i]
		if st.StageOrder <= stageOrder {
			continue
		}
		if next == nil || st.StageOrder < next.StageOrder {
			a := st
			next = &a
		}
	}
	return next, nil
}

// IncrementTaskCount 实现 StageDirectory
func (s *Service) IncrementTaskCount(ctx context.Context, dependencyID string) error {
	return s.repo.IncrementDependencyTaskCount(ctx, dependencyID)
}

// Workflows 返回 WorkflowRegistry 视图
func (s *Service) Workflows() WorkflowRegistry {
	return workflowRegistry{repo: s.repo}
}

type workflowRegistry struct {
	repo Repository
}

func (w workflowRegistry) IncrementTaskCount(ctx context.Context, workflowID string) error {
	return w.repo.IncrementWorkflowTaskCount(ctx, workflowID)
}

// RegisterWorkflow 校验并保存工作流定义
func (s *Service) RegisterWorkflow(ctx context.Context, wf *WorkflowDefinition) error {
	if strings.TrimSpace(wf.ID) == "" {
		return fmt.Errorf("工作流ID不能为空")
	}
	if strings.TrimSpace(wf.Name) == "" {
		return fmt.Errorf("工作流名称不能为空")
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now()
	}
	return s.repo.SaveWorkflow(ctx, wf)
}

// RegisterDependency 校验并保存依赖链，阶段按序号排序保存
func (s *Service) RegisterDependency(ctx context.Context, dep *UserDependency) error {
	if err := ValidateDependency(dep); err != nil {
		return err
	}
	sort.Slice(dep.Stages, func(i, j int) bool {
		return dep.Stages[i].StageOrder < dep.Stages[j].StageOrder
	})
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now()
	}
	return s.repo.SaveDependency(ctx, dep)
}

// ValidateDependency 依赖链结构校验：阶段序号为正且不重复，每个阶段必须有执行人和审核人
func ValidateDependency(dep *UserDependency) error {
	if dep == nil {
		return fmt.Errorf("依赖链不能为空")
	}
	if strings.TrimSpace(dep.ID) == "" {
		return fmt.Errorf("依赖链ID不能为空")
	}
	if strings.TrimSpace(dep.WorkflowID) == "" {
		return fmt.Errorf("依赖链 %s 缺少workflowId", dep.ID)
	}
	if len(dep.Stages) == 0 {
		return fmt.Errorf("依赖链 %s 至少需要一个阶段", dep.ID)
	}
	seen := make(map[int]bool, len(dep.Stages))
	for _, st := range dep.Stages {
		if st.StageOrder <= 0 {
			return fmt.Errorf("依赖链 %s 的阶段序号必须为正数: %d", dep.ID, st.StageOrder)
		}
		if seen[st.StageOrder] {
			return fmt.Errorf("依赖链 %s 的阶段序号重复: %d", dep.ID, st.StageOrder)
		}
		seen[st.StageOrder] = true
		if st.UserID == "" || st.CheckerID == "" {
			return fmt.Errorf("依赖链 %s 的阶段 %d 缺少执行人或审核人", dep.ID, st.StageOrder)
		}
	}
	return nil
}

var (
	_ StageDirectory   = (*Service)(nil)
	_ WorkflowRegistry = workflowRegistry{}
)
