// Package storage 定义任务快照、联动配置和目录数据的存储接口
package storage

import "errors"

// BaseRepository 通用CRUD接口标记（对外导出）
// 所有CRUD接口都嵌入此接口，以表明它们提供了基础的增删改查
type BaseRepository interface{}

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrVersionConflict 乐观并发冲突：存储中的版本号已被其他写入者推进
	ErrVersionConflict = errors.New("版本冲突，记录已被其他写入者修改")
	// ErrCorruptRecord 存储中的数据无法解析（例如JSON列损坏）
	ErrCorruptRecord = errors.New("存储数据损坏")
)
