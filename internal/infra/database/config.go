package database

import (
	"fmt"
	"time"
)

// Config 审计数据库配置
type Config struct {
	AuditDBPath        string `yaml:"audit_db_path"`        // e.g., "./data/audit.db"
	AuditRetentionDays int    `yaml:"audit_retention_days"` // default: 90，小于 0 表示不清理

	MaxOpenConns           int `yaml:"max_open_conns"`            // default: 4
	MaxIdleConns           int `yaml:"max_idle_conns"`            // default: 2，不超过 max_open_conns
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"` // default: 300
}

// ApplyDefaults 填充未设置的字段
// SQLite 单文件写入串行，连接池保持较小
func (c *Config) ApplyDefaults(dataDir string) {
	if c.AuditDBPath == "" {
		c.AuditDBPath = dataDir + "/audit.db"
	}
	if c.AuditRetentionDays == 0 {
		c.AuditRetentionDays = 90
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = min(2, c.MaxOpenConns)
	}
	if c.ConnMaxLifetimeSeconds == 0 {
		c.ConnMaxLifetimeSeconds = 300
	}
}

// Validate 检查连接池参数
func (c *Config) Validate() error {
	switch {
	case c.MaxOpenConns < 0:
		return fmt.Errorf("database.max_open_conns must not be negative: %d", c.MaxOpenConns)
	case c.MaxIdleConns < 0:
		return fmt.Errorf("database.max_idle_conns must not be negative: %d", c.MaxIdleConns)
	case c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns %d exceeds max_open_conns %d", c.MaxIdleConns, c.MaxOpenConns)
	case c.ConnMaxLifetimeSeconds < 0:
		return fmt.Errorf("database.conn_max_lifetime_seconds must not be negative: %d", c.ConnMaxLifetimeSeconds)
	}
	return nil
}

// AuditRetention 审计记录保留时长，0 表示不清理
func (c *Config) AuditRetention() time.Duration {
	if c.AuditRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}
