package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/stageflow/pkg/core/task"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/LENAX/stageflow/pkg/storage/dao"
	"github.com/jmoiron/sqlx"
)

// TaskRepo Task快照Repository的SQL实现（对外导出）
type TaskRepo struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

var taskSelectSQL = "SELECT " + strings.Join(dao.TaskColumns, ", ") + " FROM tasks"

// Create 插入新Task
func (r *TaskRepo) Create(ctx context.Context, t *task.Task) error {
	row, err := taskToDAO(t)
	if err != nil {
		return err
	}
	row.Version = 1

	placeholders := make([]string, len(dao.TaskColumns))
	for i, col := range dao.TaskColumns {
		placeholders[i] = ":" + col
	}
	query := fmt.Sprintf("INSERT INTO tasks (%s) VALUES (%s)",
		strings.Join(dao.TaskColumns, ", "), strings.Join(placeholders, ", "))
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("插入Task失败: %w", err)
	}
	t.Version = 1
	return nil
}

// Get 根据ID查询Task
func (r *TaskRepo) Get(ctx context.Context, id string) (*task.Task, error) {
	var row dao.TaskDAO
	query := r.db.Rebind(taskSelectSQL + " WHERE id = ?")
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("查询Task失败: %w", err)
	}
	return daoToTask(&row)
}

// Update 按版本号更新Task（乐观并发）
func (r *TaskRepo) Update(ctx context.Context, t *task.Task) error {
	row, err := taskToDAO(t)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(dao.TaskColumns))
	for _, col := range dao.TaskColumns {
		if col == "id" || col == "version" || col == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = :%s", col, col))
	}
	query := fmt.Sprintf("UPDATE tasks SET %s, version = version + 1 WHERE id = :id AND version = :version",
		strings.Join(sets, ", "))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("更新Task失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取影响行数失败: %w", err)
	}
	if affected == 0 {
		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind("SELECT COUNT(*) FROM tasks WHERE id = ?"), t.ID); err != nil {
			return fmt.Errorf("检查Task是否存在失败: %w", err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return fmt.Errorf("Task %s 版本 %d: %w", t.ID, t.Version, storage.ErrVersionConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	t.Version++
	return nil
}

// Delete 删除Task
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("删除Task失败: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List 按条件查询Task
func (r *TaskRepo) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.AssignedTo != "" {
		conds = append(conds, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if filter.CheckerID != "" {
		conds = append(conds, "checker_id = ?")
		args = append(args, filter.CheckerID)
	}
	if filter.WorkflowID != "" {
		conds = append(conds, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}

	query := taskSelectSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	return r.selectTasks(ctx, r.db.Rebind(query), args...)
}

// ListOpenWithDueDate 查询设置了截止时间且未结束的Task
func (r *TaskRepo) ListOpenWithDueDate(ctx context.Context) ([]*task.Task, error) {
	query := taskSelectSQL + " WHERE due_date IS NOT NULL AND status NOT IN (?, ?) ORDER BY due_date, id"
	return r.selectTasks(ctx, r.db.Rebind(query), string(task.StatusCompleted), string(task.StatusCancelled))
}

func (r *TaskRepo) selectTasks(ctx context.Context, query string, args ...interface{}) ([]*task.Task, error) {
	var rows []dao.TaskDAO
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("查询Task列表失败: %w", err)
	}
	out := make([]*task.Task, 0, len(rows))
	for i := range rows {
		t, err := daoToTask(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// taskToDAO 领域对象转换为行结构
func taskToDAO(t *task.Task) (*dao.TaskDAO, error) {
	history := t.StageHistory
	if history == nil {
		history = []task.StageRecord{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("序列化stage_history失败: %w", err)
	}
	logs := t.Logs
	if logs == nil {
		logs = []task.LogEntry{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return nil, fmt.Errorf("序列化logs失败: %w", err)
	}

	row := &dao.TaskDAO{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Status:             string(t.Status),
		Priority:           string(t.Priority),
		CategoryID:         t.CategoryID,
		CategoryPath:       t.CategoryPath,
		AssignedTo:         t.AssignedTo,
		AssignedToName:     t.AssignedToName,
		CheckerID:          t.CheckerID,
		CheckerName:        t.CheckerName,
		WorkflowID:         nullString(t.WorkflowID),
		UserDependencyID:   nullString(t.UserDependencyID),
		CurrentStage:       t.CurrentStage,
		StageHistory:       string(historyJSON),
		RevisedCount:       t.RevisedCount,
		IsWorkflowComplete: t.IsWorkflowComplete,
		Logs:               string(logsJSON),
		CreatedBy:          t.CreatedBy,
		ApprovedBy:         t.ApprovedBy,
		ApprovedAt:         nullTime(t.ApprovedAt),
		DueDate:            nullTime(t.DueDate),
		StartDate:          nullTime(t.StartDate),
		CompletedDate:      nullTime(t.CompletedDate),
		CreatedAt:          t.CreatedAt.UTC(),
		UpdatedAt:          t.UpdatedAt.UTC(),
		Version:            t.Version,
	}
	if t.Review != nil {
		reviewJSON, err := json.Marshal(t.Review)
		if err != nil {
			return nil, fmt.Errorf("序列化review失败: %w", err)
		}
		row.Review = sql.NullString{String: string(reviewJSON), Valid: true}
	}
	return row, nil
}

// daoToTask 行结构转换为领域对象，JSON列损坏时返回 storage.ErrCorruptRecord
func daoToTask(row *dao.TaskDAO) (*task.Task, error) {
	t := &task.Task{
		ID:                 row.ID,
		Title:              row.Title,
		Description:        row.Description,
		Status:             task.Status(row.Status),
		Priority:           task.Priority(row.Priority),
		CategoryID:         row.CategoryID,
		CategoryPath:       row.CategoryPath,
		AssignedTo:         row.AssignedTo,
		AssignedToName:     row.AssignedToName,
		CheckerID:          row.CheckerID,
		CheckerName:        row.CheckerName,
		WorkflowID:         row.WorkflowID.String,
		UserDependencyID:   row.UserDependencyID.String,
		CurrentStage:       row.CurrentStage,
		RevisedCount:       row.RevisedCount,
		IsWorkflowComplete: row.IsWorkflowComplete,
		CreatedBy:          row.CreatedBy,
		ApprovedBy:         row.ApprovedBy,
		ApprovedAt:         timePtr(row.ApprovedAt),
		DueDate:            timePtr(row.DueDate),
		StartDate:          timePtr(row.StartDate),
		CompletedDate:      timePtr(row.CompletedDate),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
		Version:            row.Version,
	}
	if row.StageHistory != "" {
		if err := json.Unmarshal([]byte(row.StageHistory), &t.StageHistory); err != nil {
			return nil, fmt.Errorf("%w: Task %s 的stage_history无法解析: %v", storage.ErrCorruptRecord, row.ID, err)
		}
	}
	if row.Logs != "" {
		if err := json.Unmarshal([]byte(row.Logs), &t.Logs); err != nil {
			return nil, fmt.Errorf("%w: Task %s 的logs无法解析: %v", storage.ErrCorruptRecord, row.ID, err)
		}
	}
	if row.Review.Valid && row.Review.String != "" {
		var rv task.Review
		if err := json.Unmarshal([]byte(row.Review.String), &rv); err != nil {
			return nil, fmt.Errorf("%w: Task %s 的review无法解析: %v", storage.ErrCorruptRecord, row.ID, err)
		}
		t.Review = &rv
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ storage.TaskRepository = (*TaskRepo)(nil)
