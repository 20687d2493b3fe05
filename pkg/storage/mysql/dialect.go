package mysql

import (
	"fmt"
	"strings"

	"github.com/LENAX/stageflow/pkg/storage"
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// NormalizeDSN 确保DSN包含parseTime=true，否则DATETIME列无法扫描到time.Time
// dsn格式: user:password@tcp(host:port)/dbname?parseTime=true
func (d *MySQLDialect) NormalizeDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime=true") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// UpsertSQL 返回MySQL的UPSERT语句（使用ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	// 构建ON DUPLICATE KEY UPDATE子句
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 添加引擎声明
func (d *MySQLDialect) CreateTableSQL(schema string) string {
	if strings.Contains(schema, "ENGINE=") || !strings.Contains(schema, "CREATE TABLE") {
		return schema
	}
	return strings.TrimRight(strings.TrimSpace(schema), ";") + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;"
}

// ConfigureDB 返回MySQL配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return []string{
		"SET SESSION sql_mode='STRICT_TRANS_TABLES,NO_ZERO_IN_DATE,NO_ZERO_DATE,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION';",
	}
}

// KeyType 返回主键类型
func (d *MySQLDialect) KeyType() string {
	return "VARCHAR(64)"
}

// BooleanType 返回MySQL布尔类型
func (d *MySQLDialect) BooleanType() string {
	return "TINYINT(1)"
}

// TextType 返回MySQL文本类型
func (d *MySQLDialect) TextType() string {
	return "LONGTEXT"
}

// TimestampType 返回MySQL时间戳类型（微秒精度）
func (d *MySQLDialect) TimestampType() string {
	return "DATETIME(6)"
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
