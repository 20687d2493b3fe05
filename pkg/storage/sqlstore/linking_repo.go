package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/LENAX/stageflow/pkg/storage/dao"
	"github.com/jmoiron/sqlx"
)

// LinkingConfigRepo 联动配置Repository的SQL实现（对外导出）
type LinkingConfigRepo struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// Save 保存联动配置（按ID upsert，created_at不更新）
func (r *LinkingConfigRepo) Save(ctx context.Context, cfg *linking.Config) error {
	mappingsJSON, err := json.Marshal(cfg.StageMappings)
	if err != nil {
		return fmt.Errorf("序列化阶段映射失败: %w", err)
	}
	row := &dao.LinkingConfigDAO{
		ID:            cfg.ID,
		WorkflowID:    cfg.WorkflowID,
		Name:          cfg.Name,
		Description:   cfg.Description,
		StageMappings: string(mappingsJSON),
		CreatedBy:     cfg.CreatedBy,
		IsActive:      cfg.IsActive,
		CreatedAt:     cfg.CreatedAt.UTC(),
		UpdatedAt:     cfg.UpdatedAt.UTC(),
	}

	updateCols := make([]string, 0, len(dao.LinkingConfigColumns))
	for _, col := range dao.LinkingConfigColumns {
		if col != "id" && col != "created_at" {
			updateCols = append(updateCols, col)
		}
	}
	query := r.dialect.UpsertSQL("worksheet_linking_config", dao.LinkingConfigColumns, "id", updateCols)
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存联动配置失败: %w", err)
	}
	return nil
}

// Delete 删除联动配置
func (r *LinkingConfigRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM worksheet_linking_config WHERE id = ?"), id); err != nil {
		return fmt.Errorf("删除联动配置失败: %w", err)
	}
	return nil
}

// ListAll 查询所有联动配置
func (r *LinkingConfigRepo) ListAll(ctx context.Context) ([]*linking.Config, error) {
	var rows []dao.LinkingConfigDAO
	query := "SELECT " + strings.Join(dao.LinkingConfigColumns, ", ") + " FROM worksheet_linking_config ORDER BY created_at, id"
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("查询联动配置失败: %w", err)
	}

	out := make([]*linking.Config, 0, len(rows))
	for _, row := range rows {
		cfg := &linking.Config{
			ID:          row.ID,
			WorkflowID:  row.WorkflowID,
			Name:        row.Name,
			Description: row.Description,
			CreatedBy:   row.CreatedBy,
			IsActive:    row.IsActive,
			CreatedAt:   row.CreatedAt,
			UpdatedAt:   row.UpdatedAt,
		}
		if err := json.Unmarshal([]byte(row.StageMappings), &cfg.StageMappings); err != nil {
			return nil, fmt.Errorf("%w: 联动配置 %s 的阶段映射无法解析: %v", storage.ErrCorruptRecord, row.ID, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

var _ storage.LinkingConfigRepository = (*LinkingConfigRepo)(nil)
