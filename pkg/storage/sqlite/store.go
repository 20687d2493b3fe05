// Package sqlite 提供SQLite方言与存储构造函数（默认数据库）
package sqlite

import (
	"fmt"
	"strings"

	"github.com/LENAX/stageflow/pkg/storage/sqlstore"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// NewStore 基于已打开的SQLite连接创建存储（对外导出）
func NewStore(db *sqlx.DB) (*sqlstore.Store, error) {
	return sqlstore.New(db, NewSQLiteDialect())
}

// NewStoreFromDSN 通过DSN创建SQLite存储（对外导出）
// dsn 可以是文件路径，也可以是 ":memory:"
func NewStoreFromDSN(dsn string) (*sqlstore.Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("SQLite DSN不能为空")
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 内存数据库每个连接是独立的库，只能使用单连接
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// 配置SQLite优化
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("配置SQLite失败: %w", err)
	}

	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// configureSQLite 配置SQLite数据库连接
func configureSQLite(db *sqlx.DB) error {
	for _, pragma := range NewSQLiteDialect().ConfigureDB() {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
