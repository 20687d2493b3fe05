package storage

// Dialect SQL方言接口（对外导出）
// 封装不同数据库在建表类型、upsert语法和连接配置上的差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回 database/sql 驱动名（sqlx据此选择占位符风格）
	DriverName() string

	// NormalizeDSN 补全连接串中必需的参数
	NormalizeDSN(dsn string) string

	// UpsertSQL 返回按冲突列整行更新的命名参数SQL
	// tableName: 表名
	// columns: 列名列表
	// conflictColumn: 冲突判断列（通常是主键）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateTableSQL 为建表语句追加方言特有的表选项
	CreateTableSQL(schema string) string

	// ConfigureDB 返回连接建立后需要执行的配置SQL（如SQLite的PRAGMA）
	ConfigureDB() []string

	// KeyType 返回字符串主键的列类型
	// SQLite/PostgreSQL/MySQL: VARCHAR(64)
	KeyType() string

	// BooleanType 返回布尔类型
	// SQLite: INTEGER
	// MySQL: TINYINT(1)
	// PostgreSQL: BOOLEAN
	BooleanType() string

	// TextType 返回大文本类型（JSON列使用）
	// SQLite/PostgreSQL: TEXT
	// MySQL: LONGTEXT
	TextType() string

	// TimestampType 返回时间戳类型
	// SQLite: DATETIME
	// MySQL: DATETIME(6)
	// PostgreSQL: TIMESTAMPTZ
	TimestampType() string
}
