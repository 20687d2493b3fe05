// Package linking 实现阶段工作表之间的字段联动（Field Linking）
// 每个工作流最多一份联动配置，描述第N阶段输出字段到第N+1阶段输入字段的映射
package linking

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FieldMapping 字段映射
type FieldMapping struct {
	FromFieldID    string `json:"fromFieldId" yaml:"from_field_id"`
	ToFieldID      string `json:"toFieldId" yaml:"to_field_id"`
	FromFieldLabel string `json:"fromFieldLabel,omitempty" yaml:"from_field_label"`
	ToFieldLabel   string `json:"toFieldLabel,omitempty" yaml:"to_field_label"`
}

// StageMapping 阶段之间的映射
type StageMapping struct {
	FromStageOrder   int            `json:"fromStageOrder" yaml:"from_stage_order"`
	ToStageOrder     int            `json:"toStageOrder" yaml:"to_stage_order"`
	FromCategoryID   string         `json:"fromCategoryId,omitempty" yaml:"from_category_id"`
	ToCategoryID     string         `json:"toCategoryId,omitempty" yaml:"to_category_id"`
	FromCategoryName string         `json:"fromCategoryName,omitempty" yaml:"from_category_name"`
	ToCategoryName   string         `json:"toCategoryName,omitempty" yaml:"to_category_name"`
	FieldMappings    []FieldMapping `json:"fieldMappings" yaml:"field_mappings"`
}

// Config 工作表联动配置（WorksheetLinkingConfig）
type Config struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflowId"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	StageMappings []StageMapping `json:"stageMappings"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	CreatedBy     string         `json:"createdBy,omitempty"`
	IsActive      bool           `json:"isActive"`
}

// CreateSpec 创建联动配置的参数
// IsActive 为nil时默认启用
type CreateSpec struct {
	WorkflowID    string         `json:"workflowId" yaml:"workflow_id"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description" yaml:"description"`
	StageMappings []StageMapping `json:"stageMappings" yaml:"stage_mappings"`
	CreatedBy     string         `json:"createdBy" yaml:"created_by"`
	IsActive      *bool          `json:"isActive" yaml:"is_active"`
}

// Patch 更新联动配置的参数，nil字段保持不变
// id 与 createdAt 永远不会被更新
type Patch struct {
	WorkflowID    *string        `json:"workflowId"`
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	StageMappings []StageMapping `json:"stageMappings"`
	IsActive      *bool          `json:"isActive"`
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.StageMappings = cloneStageMappings(c.StageMappings)
	return &out
}

// FindStageMapping 查找 from -> to 的阶段映射
func (c *Config) FindStageMapping(fromStage, toStage int) *StageMapping {
	for i := range c.StageMappings {
		m := &c.StageMappings[i]
		if m.FromStageOrder == fromStage && m.ToStageOrder == toStage {
			return m
		}
	}
	return nil
}

func cloneStageMappings(in []StageMapping) []StageMapping {
	if in == nil {
		return nil
	}
	out := make([]StageMapping, len(in))
	for i, m := range in {
		m.FieldMappings = append([]FieldMapping(nil), m.FieldMappings...)
		out[i] = m
	}
	return out
}

func sortConfigs(cfgs []*Config) {
	sort.Slice(cfgs, func(i, j int) bool {
		if cfgs[i].CreatedAt.Equal(cfgs[j].CreatedAt) {
			return cfgs[i].ID < cfgs[j].ID
		}
		return cfgs[i].CreatedAt.Before(cfgs[j].CreatedAt)
	})
}

// cloneAny 深拷贝JSON风格的值，避免预填数据与上一阶段输出共享引用
func cloneAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = cloneAny(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = cloneAny(vv)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}

// validate 保存时的结构校验
func validate(c *Config) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("联动配置名称不能为空")
	}
	if strings.TrimSpace(c.WorkflowID) == "" {
		return fmt.Errorf("联动配置必须指定workflowId")
	}
	return validateStageMappings(c.StageMappings)
}

func validateStageMappings(mappings []StageMapping) error {
	if len(mappings) == 0 {
		return fmt.Errorf("至少需要一个阶段映射")
	}
	seen := make(map[[2]int]bool, len(mappings))
	for i, m := range mappings {
		if m.FromStageOrder <= 0 || m.ToStageOrder <= 0 {
			return fmt.Errorf("第%d个阶段映射缺少fromStageOrder或toStageOrder", i+1)
		}
		key := [2]int{m.FromStageOrder, m.ToStageOrder}
		if seen[key] {
			return fmt.Errorf("阶段映射 %d->%d 重复", m.FromStageOrder, m.ToStageOrder)
		}
		seen[key] = true
		if len(m.FieldMappings) == 0 {
			return fmt.Errorf("阶段映射 %d->%d 至少需要一个字段映射", m.FromStageOrder, m.ToStageOrder)
		}
		for j, f := range m.FieldMappings {
			if strings.TrimSpace(f.FromFieldID) == "" || strings.TrimSpace(f.ToFieldID) == "" {
				return fmt.Errorf("阶段映射 %d->%d 的第%d个字段映射缺少字段ID", m.FromStageOrder, m.ToStageOrder, j+1)
			}
		}
	}
	return nil
}
