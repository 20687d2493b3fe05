package storage

import (
	"context"

	"github.com/LENAX/stageflow/pkg/core/linking"
)

// LinkingConfigRepository 联动配置存储接口（对外导出）
// 联动配置没有版本号，Save按ID整行upsert
type LinkingConfigRepository interface {
	BaseRepository
	// Save 保存联动配置（创建或更新）
	Save(ctx context.Context, cfg *linking.Config) error
	// Delete 删除联动配置，不存在时不报错
	Delete(ctx context.Context, id string) error
	// ListAll 查询所有联动配置
	ListAll(ctx context.Context) ([]*linking.Config, error)
}

var _ linking.Repository = (LinkingConfigRepository)(nil)
