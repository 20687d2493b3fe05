// Package mysql 提供MySQL方言与存储构造函数
package mysql

import (
	"github.com/LENAX/stageflow/pkg/storage/sqlstore"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewStore 基于已打开的MySQL连接创建存储（对外导出）
func NewStore(db *sqlx.DB) (*sqlstore.Store, error) {
	return sqlstore.New(db, NewMySQLDialect())
}

// NewStoreFromDSN 通过DSN创建MySQL存储（对外导出）
// dsn格式: user:password@tcp(host:port)/dbname?parseTime=true
func NewStoreFromDSN(dsn string) (*sqlstore.Store, error) {
	return sqlstore.Open(NewMySQLDialect(), dsn)
}
