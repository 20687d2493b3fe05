package directory

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed 目录种子文件：工作流定义与依赖链
//
//	workflows:
//	  - id: wf1
//	    name: 资料审核
//	dependencies:
//	  - id: dep1
//	    workflow_id: wf1
//	    stages:
//	      - {stage_order: 1, user_id: U1, checker_id: C1}
type Seed struct {
	Workflows    []WorkflowDefinition `yaml:"workflows"`
	Dependencies []UserDependency     `yaml:"dependencies"`
}

// ParseSeed 解析YAML种子数据并校验依赖链结构
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("解析目录种子失败: %w", err)
	}
	known := make(map[string]bool, len(seed.Workflows))
	for _, wf := range seed.Workflows {
		if wf.ID == "" || wf.Name == "" {
			return nil, fmt.Errorf("工作流定义缺少id或name")
		}
		known[wf.ID] = true
	}
	for i := range seed.Dependencies {
		dep := &seed.Dependencies[i]
		if err := ValidateDependency(dep); err != nil {
			return nil, err
		}
		if !known[dep.WorkflowID] {
			return nil, fmt.Errorf("依赖链 %s 引用了种子中不存在的工作流 %s", dep.ID, dep.WorkflowID)
		}
	}
	return &seed, nil
}

// LoadSeedFile 读取并解析种子文件
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取目录种子文件失败: %w", err)
	}
	return ParseSeed(data)
}

// ApplySeed 把种子写入目录（upsert，存储层保留已有记录的使用计数）
// 返回写入的依赖链ID，调用方据此失效缓存
func (s *Service) ApplySeed(ctx context.Context, seed *Seed) ([]string, error) {
	for i := range seed.Workflows {
		wf := seed.Workflows[i]
		if err := s.RegisterWorkflow(ctx, &wf); err != nil {
			return nil, fmt.Errorf("保存工作流 %s 失败: %w", wf.ID, err)
		}
	}

	ids := make([]string, 0, len(seed.Dependencies))
	for i := range seed.Dependencies {
		dep := seed.Dependencies[i]
		dep.Stages = append([]StageAssignment(nil), dep.Stages...)
		if err := s.RegisterDependency(ctx, &dep); err != nil {
			return nil, fmt.Errorf("保存依赖链 %s 失败: %w", dep.ID, err)
		}
		ids = append(ids, dep.ID)
	}
	log.Printf("✅ [Directory] 已应用目录种子: Workflows=%d, Dependencies=%d", len(seed.Workflows), len(ids))
	return ids, nil
}
