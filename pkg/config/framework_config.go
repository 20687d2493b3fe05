// Package config 加载 stageflow 服务的YAML配置
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EngineConfig 服务框架配置（对外导出）
type EngineConfig struct {
	Stageflow struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
			Cache struct {
				Enabled       bool          `yaml:"enabled"`
				DefaultTTL    time.Duration `yaml:"default_ttl"`
				CleanInterval time.Duration `yaml:"clean_interval"`
			} `yaml:"cache"`
		} `yaml:"storage"`
		Directory struct {
			SeedFile  string `yaml:"seed_file"`  // 启动时写入目录的YAML种子文件
			WatchSeed bool   `yaml:"watch_seed"` // 种子文件变化时重新加载
		} `yaml:"directory"`
		Notification struct {
			EventBuffer int64       `yaml:"event_buffer"`
			Email       EmailConfig `yaml:"email"`
		} `yaml:"notification"`
		Monitor struct {
			Enabled bool   `yaml:"enabled"`
			Cron    string `yaml:"cron"`
		} `yaml:"monitor"`
		Server ServerConfig `yaml:"server"`
	} `yaml:"stageflow"`
}

// EmailConfig 邮件通知插件配置
type EmailConfig struct {
	Enabled        bool     `yaml:"enabled"`
	SMTPHost       string   `yaml:"smtp_host"`
	SMTPPort       int      `yaml:"smtp_port"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	From           string   `yaml:"from"`
	To             []string `yaml:"to"`
	NotifyAssignee bool     `yaml:"notify_assignee"`
	Events         []string `yaml:"events"`
}

// PluginParams 转换为插件初始化参数
func (e EmailConfig) PluginParams() map[string]string {
	return map[string]string{
		"smtp_host":       e.SMTPHost,
		"smtp_port":       strconv.Itoa(e.SMTPPort),
		"username":        e.Username,
		"password":        e.Password,
		"from":            e.From,
		"to":              strings.Join(e.To, ","),
		"notify_assignee": strconv.FormatBool(e.NotifyAssignee),
	}
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Mode            string        `yaml:"mode"` // debug / release / test
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// 环境变量覆盖项
const (
	EnvDatabaseType = "STAGEFLOW_DB_TYPE"
	EnvDatabaseDSN  = "STAGEFLOW_DB_DSN"
	EnvServerPort   = "STAGEFLOW_SERVER_PORT"
	EnvLogLevel     = "STAGEFLOW_LOG_LEVEL"
	EnvSMTPPassword = "STAGEFLOW_SMTP_PASSWORD"
)

var (
	validDatabaseTypes = []string{"sqlite", "sqlite3", "mysql", "postgres", "postgresql", "memory"}
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validServerModes   = []string{"debug", "release", "test"}
)

// LoadFrameworkConfig 加载配置文件并应用默认值与环境变量覆盖（对外导出）
// path为空时只使用默认值和环境变量
func LoadFrameworkConfig(path string) (*EngineConfig, error) {
	cfg := &EngineConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv 加载.env文件到进程环境变量，文件不存在时忽略
func LoadDotEnv(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("加载环境变量文件失败: %w", err)
	}
	return nil
}

// ApplyEnv 用环境变量覆盖配置
func (c *EngineConfig) ApplyEnv() {
	if v := os.Getenv(EnvDatabaseType); v != "" {
		c.Stageflow.Storage.Database.Type = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Stageflow.Storage.Database.DSN = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Stageflow.Server.Port = port
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Stageflow.General.LogLevel = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		c.Stageflow.Notification.Email.Password = v
	}
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.Stageflow.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.Stageflow.Storage.Database.DSN
}

// IsDebug 是否输出调试日志
func (c *EngineConfig) IsDebug() bool {
	return c.Stageflow.General.LogLevel == "debug"
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	sf := &c.Stageflow

	// General默认值
	if sf.General.InstanceName == "" {
		sf.General.InstanceName = "stageflow"
	}
	if sf.General.LogLevel == "" {
		sf.General.LogLevel = "info"
	}
	if sf.General.Env == "" {
		sf.General.Env = "dev"
	}

	// Database默认值
	db := &sf.Storage.Database
	if db.Type == "" {
		db.Type = "sqlite"
	}
	if db.DSN == "" && (db.Type == "sqlite" || db.Type == "sqlite3") {
		db.DSN = "./data/stageflow.db"
	}
	if db.MaxOpenConns <= 0 {
		db.MaxOpenConns = 10
	}
	if db.MaxIdleConns <= 0 {
		db.MaxIdleConns = 5
	}
	if db.ConnMaxLifetime <= 0 {
		db.ConnMaxLifetime = 2 * time.Hour
	}
	if db.ConnMaxIdleTime <= 0 {
		db.ConnMaxIdleTime = 1 * time.Hour
	}

	// Cache默认值
	if sf.Storage.Cache.DefaultTTL <= 0 {
		sf.Storage.Cache.DefaultTTL = 5 * time.Minute
	}
	if sf.Storage.Cache.CleanInterval <= 0 {
		sf.Storage.Cache.CleanInterval = 10 * time.Minute
	}

	// Notification默认值
	if sf.Notification.EventBuffer <= 0 {
		sf.Notification.EventBuffer = 64
	}
	if sf.Notification.Email.SMTPPort <= 0 {
		sf.Notification.Email.SMTPPort = 25
	}
	if len(sf.Notification.Email.Events) == 0 {
		sf.Notification.Email.Events = []string{"stage.handoff", "workflow.completed", "task.overdue"}
	}

	// Monitor默认值：每5分钟巡检一次
	if sf.Monitor.Cron == "" {
		sf.Monitor.Cron = "0 */5 * * * *"
	}

	// Server默认值
	if sf.Server.Port <= 0 {
		sf.Server.Port = 8080
	}
	if sf.Server.Mode == "" {
		sf.Server.Mode = "release"
	}
	if sf.Server.ReadTimeout <= 0 {
		sf.Server.ReadTimeout = 15 * time.Second
	}
	if sf.Server.WriteTimeout <= 0 {
		sf.Server.WriteTimeout = 15 * time.Second
	}
	if sf.Server.ShutdownTimeout <= 0 {
		sf.Server.ShutdownTimeout = 10 * time.Second
	}
}

// Validate 校验配置，应在ApplyDefaults之后调用
func (c *EngineConfig) Validate() error {
	sf := &c.Stageflow
	if !contains(validDatabaseTypes, sf.Storage.Database.Type) {
		return fmt.Errorf("不支持的数据库类型: %s", sf.Storage.Database.Type)
	}
	if sf.Storage.Database.Type != "memory" && sf.Storage.Database.DSN == "" {
		return fmt.Errorf("数据库类型 %s 必须配置dsn", sf.Storage.Database.Type)
	}
	if !contains(validLogLevels, sf.General.LogLevel) {
		return fmt.Errorf("不支持的日志级别: %s", sf.General.LogLevel)
	}
	if !contains(validServerModes, sf.Server.Mode) {
		return fmt.Errorf("不支持的服务模式: %s", sf.Server.Mode)
	}
	if sf.Server.Port <= 0 || sf.Server.Port > 65535 {
		return fmt.Errorf("服务端口超出范围: %d", sf.Server.Port)
	}
	if sf.Directory.WatchSeed && sf.Directory.SeedFile == "" {
		return fmt.Errorf("启用watch_seed时必须配置seed_file")
	}
	if email := sf.Notification.Email; email.Enabled {
		if email.SMTPHost == "" || email.From == "" {
			return fmt.Errorf("启用邮件通知时必须配置smtp_host和from")
		}
		if len(email.To) == 0 && !email.NotifyAssignee {
			return fmt.Errorf("启用邮件通知时必须配置收件人")
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
