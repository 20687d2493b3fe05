package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/LENAX/stageflow/pkg/storage/memory"
	"github.com/LENAX/stageflow/pkg/storage/mysql"
	"github.com/LENAX/stageflow/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/stageflow/pkg/storage/sqlite"
	"github.com/LENAX/stageflow/pkg/storage/sqlstore"
)

// DatabaseFactory 数据库工厂接口（内部使用）
type DatabaseFactory interface {
	// Repositories 返回同一数据库上的Repository集合
	Repositories() *Repositories
	// Ping 检查数据库连接（就绪检查使用）
	Ping(ctx context.Context) error
	// ConfigurePool 设置连接池参数，memory类型忽略
	ConfigurePool(pool PoolConfig)
	// Close 关闭数据库连接
	Close() error
}

// PoolConfig 连接池参数，零值表示保持驱动默认值
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Repositories 存储Repository集合（内部使用）
type Repositories struct {
	Tasks     storage.TaskRepository
	Linkings  storage.LinkingConfigRepository
	Directory storage.DirectoryRepository
}

// NewDatabaseFactory 创建数据库工厂（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres/memory）
// dsn: 数据库连接字符串（memory类型忽略）
func NewDatabaseFactory(dbType, dsn string) (DatabaseFactory, error) {
	switch dbType {
	case "sqlite", "sqlite3":
		return newSQLFactory(pkgsqlite.NewStoreFromDSN, "sqlite", dsn)
	case "mysql":
		return newSQLFactory(mysql.NewStoreFromDSN, "mysql", dsn)
	case "postgres", "postgresql":
		return newSQLFactory(postgres.NewStoreFromDSN, "postgres", dsn)
	case "memory":
		return newMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// sqlFactory 基于 sqlstore.Store 的数据库工厂（内部实现）
type sqlFactory struct {
	store *sqlstore.Store
	repos *Repositories
}

func newSQLFactory(open func(dsn string) (*sqlstore.Store, error), name, dsn string) (*sqlFactory, error) {
	store, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("create %s repository failed: %w", name, err)
	}
	return &sqlFactory{
		store: store,
		repos: &Repositories{
			Tasks:     store.Tasks(),
			Linkings:  store.Linkings(),
			Directory: store.Directory(),
		},
	}, nil
}

func (f *sqlFactory) Repositories() *Repositories {
	return f.repos
}

func (f *sqlFactory) Ping(ctx context.Context) error {
	return f.store.DB().PingContext(ctx)
}

func (f *sqlFactory) ConfigurePool(pool PoolConfig) {
	db := f.store.DB()
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
}

func (f *sqlFactory) Close() error {
	return f.store.Close()
}

// memoryFactory 进程内存储工厂（内部实现），重启后数据丢失
type memoryFactory struct {
	repos *Repositories
}

func newMemoryFactory() *memoryFactory {
	return &memoryFactory{
		repos: &Repositories{
			Tasks:     memory.NewTaskRepo(),
			Linkings:  memory.NewLinkingConfigRepo(),
			Directory: memory.NewDirectoryRepo(),
		},
	}
}

func (f *memoryFactory) Repositories() *Repositories {
	return f.repos
}

func (f *memoryFactory) Ping(ctx context.Context) error {
	return nil
}

func (f *memoryFactory) ConfigurePool(pool PoolConfig) {}

func (f *memoryFactory) Close() error {
	return nil
}
