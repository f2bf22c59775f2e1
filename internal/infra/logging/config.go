package logging

// Config 日志系统配置
type Config struct {
	Level         string `yaml:"level"`          // e.g., "info", "debug"
	Dir           string `yaml:"dir"`            // 日志文件目录，为空时只输出到标准输出
	ToFile        bool   `yaml:"to_file"`        // 是否写入文件
	RetentionDays int    `yaml:"retention_days"` // 保留天数
}

// ApplyDefaults 为配置项设置默认值
func (c *Config) ApplyDefaults(dataDir string) {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Dir == "" {
		c.Dir = dataDir + "/logs"
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = 7
	}
}
