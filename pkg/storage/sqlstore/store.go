// Package sqlstore 提供基于sqlx的通用SQL存储实现，方言差异由 storage.Dialect 封装
package sqlstore

import (
	"fmt"
	"log"

	"github.com/LENAX/stageflow/pkg/storage"
	"github.com/jmoiron/sqlx"
)

// Store SQL存储（对外导出）
// 同一个连接池上提供Task、联动配置与目录三个Repository
type Store struct {
	db        *sqlx.DB
	dialect   storage.Dialect
	tasks     *TaskRepo
	linkings  *LinkingConfigRepo
	directory *DirectoryRepo
}

// New 基于已打开的连接创建存储并初始化表结构（对外导出）
func New(db *sqlx.DB, dialect storage.Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	s.tasks = &TaskRepo{db: db, dialect: dialect}
	s.linkings = &LinkingConfigRepo{db: db, dialect: dialect}
	s.directory = &DirectoryRepo{db: db, dialect: dialect}
	return s, nil
}

// Open 通过DSN打开数据库、执行方言配置并创建存储（对外导出）
func Open(dialect storage.Dialect, dsn string) (*Store, error) {
	db, err := sqlx.Open(dialect.DriverName(), dialect.NormalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			log.Printf("⚠️ [Storage] %s 配置语句执行失败（忽略）: %s, Error=%v", dialect.Name(), stmt, err)
		}
	}

	store, err := New(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// DB 获取底层数据库连接（对外导出）
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect 返回方言
func (s *Store) Dialect() storage.Dialect {
	return s.dialect
}

// Tasks 返回Task快照Repository
func (s *Store) Tasks() *TaskRepo {
	return s.tasks
}

// Linkings 返回联动配置Repository
func (s *Store) Linkings() *LinkingConfigRepo {
	return s.linkings
}

// Directory 返回目录Repository
func (s *Store) Directory() *DirectoryRepo {
	return s.directory
}

// Close 关闭数据库连接（对外导出）
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
// 列类型由方言提供，每条DDL单独执行（MySQL驱动默认不允许多语句）
func (s *Store) initSchema() error {
	key := s.dialect.KeyType()
	text := s.dialect.TextType()
	ts := s.dialect.TimestampType()
	boolean := s.dialect.BooleanType()

	createTasksSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS tasks (
		id %[1]s PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description %[2]s,
		status VARCHAR(32) NOT NULL,
		priority VARCHAR(16) NOT NULL,
		category_id VARCHAR(64),
		category_path %[2]s,
		assigned_to VARCHAR(64),
		assigned_to_name VARCHAR(255),
		checker_id VARCHAR(64),
		checker_name VARCHAR(255),
		workflow_id VARCHAR(64),
		user_dependency_id VARCHAR(64),
		current_stage INTEGER NOT NULL DEFAULT 0,
		stage_history %[2]s NOT NULL,
		review %[2]s,
		revised_count INTEGER NOT NULL DEFAULT 0,
		is_workflow_complete %[4]s NOT NULL,
		logs %[2]s NOT NULL,
		created_by VARCHAR(64),
		approved_by VARCHAR(64),
		approved_at %[3]s NULL,
		due_date %[3]s NULL,
		start_date %[3]s NULL,
		completed_date %[3]s NULL,
		created_at %[3]s NOT NULL,
		updated_at %[3]s NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);`, key, text, ts, boolean)

	createLinkingSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS worksheet_linking_config (
		id %[1]s PRIMARY KEY,
		workflow_id VARCHAR(64) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description %[2]s,
		stage_mappings %[2]s NOT NULL,
		created_by VARCHAR(64),
		is_active %[4]s NOT NULL,
		created_at %[3]s NOT NULL,
		updated_at %[3]s NOT NULL
	);`, key, text, ts, boolean)

	createWorkflowSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS workflow_definition (
		id %[1]s PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description %[2]s,
		task_count INTEGER NOT NULL DEFAULT 0,
		created_at %[3]s NOT NULL
	);`, key, text, ts)

	createDependencySQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS user_dependency (
		id %[1]s PRIMARY KEY,
		workflow_id VARCHAR(64) NOT NULL,
		name VARCHAR(255),
		stages %[2]s NOT NULL,
		task_count INTEGER NOT NULL DEFAULT 0,
		created_at %[3]s NOT NULL
	);`, key, text, ts)

	for _, ddl := range []string{createTasksSQL, createLinkingSQL, createWorkflowSQL, createDependencySQL} {
		if _, err := s.db.Exec(s.dialect.CreateTableSQL(ddl)); err != nil {
			return err
		}
	}
	return nil
}
