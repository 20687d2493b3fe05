package storage

import (
	"github.com/LENAX/stageflow/pkg/core/directory"
)

// DirectoryRepository 工作流定义与依赖链存储接口（对外导出）
// 查询不存在的记录返回 (nil, nil)，与 directory.Service 的约定一致
type DirectoryRepository interface {
	BaseRepository
	directory.Repository
}
