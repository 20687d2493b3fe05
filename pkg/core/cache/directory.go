package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/LENAX/stageflow/pkg/core/directory"
)

// CachedDirectory 为 StageDirectory 增加TTL缓存的装饰器（对外导出）
// 依赖链被修改后必须调用 Invalidate，否则在TTL内仍会读到旧的分配
type CachedDirectory struct {
	inner directory.StageDirectory
	cache TTLCache
	ttl   time.Duration
}

// NewCachedDirectory 创建带缓存的目录（对外导出）
func NewCachedDirectory(inner directory.StageDirectory, c TTLCache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{inner: inner, cache: c, ttl: ttl}
}

func keyPrefix(dependencyID string) string {
	return "dep:" + dependencyID + ":"
}

// GetStageAssignment 实现 directory.StageDirectory
func (d *CachedDirectory) GetStageAssignment(ctx context.Context, dependencyID string, stageOrder int) (*directory.StageAssignment, error) {
	key := fmt.Sprintf("%sstage:%d", keyPrefix(dependencyID), stageOrder)
	if v, ok := d.cache.Get(key); ok {
		return copyAssignment(v.(*directory.StageAssignment)), nil
	}
	a, err := d.inner.GetStageAssignment(ctx, dependencyID, stageOrder)
	if err != nil {
		return nil, err
	}
	d.cache.Set(key, copyAssignment(a), d.ttl)
	return a, nil
}

// IsLastStage 实现 directory.StageDirectory
func (d *CachedDirectory) IsLastStage(ctx context.Context, dependencyID string, stageOrder int) (bool, error) {
	key := fmt.Sprintf("%slast:%d", keyPrefix(dependencyID), stageOrder)
	if v, ok := d.cache.Get(key); ok {
		return v.(bool), nil
	}
	last, err := d.inner.IsLastStage(ctx, dependencyID, stageOrder)
	if err != nil {
		return false, err
	}
	d.cache.Set(key, last, d.ttl)
	return last, nil
}

// GetNextStage 实现 directory.StageDirectory
func (d *CachedDirectory) GetNextStage(ctx context.Context, dependencyID string, stageOrder int) (*directory.StageAssignment, error) {
	key := fmt.Sprintf("%snext:%d", keyPrefix(dependencyID), stageOrder)
	if v, ok := d.cache.Get(key); ok {
		return copyAssignment(v.(*directory.StageAssignment)), nil
	}
	a, err := d.inner.GetNextStage(ctx, dependencyID, stageOrder)
	if err != nil {
		return nil, err
	}
	d.cache.Set(key, copyAssignment(a), d.ttl)
	return a, nil
}

// IncrementTaskCount 直接透传，不缓存
func (d *CachedDirectory) IncrementTaskCount(ctx context.Context, dependencyID string) error {
	return d.inner.IncrementTaskCount(ctx, dependencyID)
}

// Invalidate 清除某条依赖链的全部缓存
func (d *CachedDirectory) Invalidate(dependencyID string) {
	d.cache.DeletePrefix(keyPrefix(dependencyID))
}

func copyAssignment(a *directory.StageAssignment) *directory.StageAssignment {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

var _ directory.StageDirectory = (*CachedDirectory)(nil)
