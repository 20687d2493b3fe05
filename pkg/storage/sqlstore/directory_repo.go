package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LENAX/stageflow/pkg/core/directory"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/LENAX/stageflow/pkg/storage/dao"
	"github.com/jmoiron/sqlx"
)

// DirectoryRepo 工作流定义与依赖链Repository的SQL实现（对外导出）
type DirectoryRepo struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// SaveWorkflow 保存工作流定义（task_count 与 created_at 不被覆盖）
func (r *DirectoryRepo) SaveWorkflow(ctx context.Context, wf *directory.WorkflowDefinition) error {
	row := &dao.WorkflowDefinitionDAO{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		TaskCount:   wf.TaskCount,
		CreatedAt:   wf.CreatedAt.UTC(),
	}
	columns := []string{"id", "name", "description", "task_count", "created_at"}
	query := r.dialect.UpsertSQL("workflow_definition", columns, "id", []string{"name", "description"})
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存工作流定义失败: %w", err)
	}
	return nil
}

// GetWorkflow 查询工作流定义，不存在返回 (nil, nil)
func (r *DirectoryRepo) GetWorkflow(ctx context.Context, id string) (*directory.WorkflowDefinition, error) {
	var row dao.WorkflowDefinitionDAO
	query := r.db.Rebind(`SELECT id, name, description, task_count, created_at FROM workflow_definition WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}
	return workflowFromDAO(&row), nil
}

// ListWorkflows 查询所有工作流定义
func (r *DirectoryRepo) ListWorkflows(ctx context.Context) ([]*directory.WorkflowDefinition, error) {
	var rows []dao.WorkflowDefinitionDAO
	query := `SELECT id, name, description, task_count, created_at FROM workflow_definition ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("查询工作流定义列表失败: %w", err)
	}
	out := make([]*directory.WorkflowDefinition, 0, len(rows))
	for i := range rows {
		out = append(out, workflowFromDAO(&rows[i]))
	}
	return out, nil
}

// IncrementWorkflowTaskCount 工作流使用计数+1
func (r *DirectoryRepo) IncrementWorkflowTaskCount(ctx context.Context, id string) error {
	return r.increment(ctx, "workflow_definition", id)
}

// SaveDependency 保存依赖链（task_count 与 created_at 不被覆盖）
func (r *DirectoryRepo) SaveDependency(ctx context.Context, dep *directory.UserDependency) error {
	stagesJSON, err := json.Marshal(dep.Stages)
	if err != nil {
		return fmt.Errorf("序列化阶段分配失败: %w", err)
	}
	row := &dao.UserDependencyDAO{
		ID:         dep.ID,
		WorkflowID: dep.WorkflowID,
		Name:       dep.Name,
		Stages:     string(stagesJSON),
		TaskCount:  dep.TaskCount,
		CreatedAt:  dep.CreatedAt.UTC(),
	}
	columns := []string{"id", "workflow_id", "name", "stages", "task_count", "created_at"}
	query := r.dialect.UpsertSQL("user_dependency", columns, "id", []string{"workflow_id", "name", "stages"})
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存依赖链失败: %w", err)
	}
	return nil
}

// GetDependency 查询依赖链，不存在返回 (nil, nil)
func (r *DirectoryRepo) GetDependency(ctx context.Context, id string) (*directory.UserDependency, error) {
	var row dao.UserDependencyDAO
	query := r.db.Rebind(`SELECT id, workflow_id, name, stages, task_count, created_at FROM user_dependency WHERE id = ?`)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询依赖链失败: %w", err)
	}
	return dependencyFromDAO(&row)
}

// ListDependencies 查询依赖链，workflowID为空时返回全部
func (r *DirectoryRepo) ListDependencies(ctx context.Context, workflowID string) ([]*directory.UserDependency, error) {
	var (
		rows []dao.UserDependencyDAO
		err  error
	)
	base := `SELECT id, workflow_id, name, stages, task_count, created_at FROM user_dependency`
	if workflowID == "" {
		err = r.db.SelectContext(ctx, &rows, base+" ORDER BY created_at, id")
	} else {
		err = r.db.SelectContext(ctx, &rows, r.db.Rebind(base+" WHERE workflow_id = ? ORDER BY created_at, id"), workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询依赖链列表失败: %w", err)
	}

	out := make([]*directory.UserDependency, 0, len(rows))
	for i := range rows {
		dep, err := dependencyFromDAO(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, nil
}

// DeleteDependency 删除依赖链
func (r *DirectoryRepo) DeleteDependency(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM user_dependency WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("删除依赖链失败: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// IncrementDependencyTaskCount 依赖链使用计数+1
func (r *DirectoryRepo) IncrementDependencyTaskCount(ctx context.Context, id string) error {
	return r.increment(ctx, "user_dependency", id)
}

func (r *DirectoryRepo) increment(ctx context.Context, table, id string) error {
	query := r.db.Rebind(fmt.Sprintf("UPDATE %s SET task_count = task_count + 1 WHERE id = ?", table))
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("更新 %s 使用计数失败: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func workflowFromDAO(row *dao.WorkflowDefinitionDAO) *directory.WorkflowDefinition {
	return &directory.WorkflowDefinition{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		TaskCount:   row.TaskCount,
		CreatedAt:   row.CreatedAt,
	}
}

func dependencyFromDAO(row *dao.UserDependencyDAO) (*directory.UserDependency, error) {
	dep := &directory.UserDependency{
		ID:         row.ID,
		WorkflowID: row.WorkflowID,
		Name:       row.Name,
		TaskCount:  row.TaskCount,
		CreatedAt:  row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Stages), &dep.Stages); err != nil {
		return nil, fmt.Errorf("%w: 依赖链 %s 的阶段分配无法解析: %v", storage.ErrCorruptRecord, row.ID, err)
	}
	return dep, nil
}

var _ storage.DirectoryRepository = (*DirectoryRepo)(nil)
