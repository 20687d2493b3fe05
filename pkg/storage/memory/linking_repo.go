package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/stageflow/pkg/core/linking"
	"github.com/LENAX/stageflow/pkg/storage"
)

// LinkingConfigRepo 内存联动配置Repository（对外导出）
type LinkingConfigRepo struct {
	mu             sync.RWMutex
	configs        map[string]*linking.Config
	shouldFailSave bool
}

// NewLinkingConfigRepo 创建内存LinkingConfigRepo
func NewLinkingConfigRepo() *LinkingConfigRepo {
	return &LinkingConfigRepo{configs: make(map[string]*linking.Config)}
}

// SetShouldFailSave 设置Save/Delete是否失败
func (r *LinkingConfigRepo) SetShouldFailSave(shouldFail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shouldFailSave = shouldFail
}

// Save 保存联动配置
func (r *LinkingConfigRepo) Save(ctx context.Context, cfg *linking.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shouldFailSave {
		return fmt.Errorf("%w：保存联动配置失败", ErrInjected)
	}
	r.configs[cfg.ID] = cfg.Clone()
	return nil
}

// Delete 删除联动配置
func (r *LinkingConfigRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shouldFailSave {
		return fmt.Errorf("%w：删除联动配置失败", ErrInjected)
	}
	delete(r.configs, id)
	return nil
}

// ListAll 查询所有联动配置
func (r *LinkingConfigRepo) ListAll(ctx context.Context) ([]*linking.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*linking.Config, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ storage.LinkingConfigRepository = (*LinkingConfigRepo)(nil)
