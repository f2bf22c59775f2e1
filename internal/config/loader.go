package config

import (
	"os"

	"github.com/awcullen/opcua/ua"
	"gopkg.in/yaml.v2"
)

// TransportProfileURIHTTPSBinary OPC UA HTTPS 二进制传输 profile
const TransportProfileURIHTTPSBinary = "http://opcfoundation.org/UA-Profile/Transport/https-uabinary"

// LoadConfig 从文件加载配置并应用默认值
func LoadConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 应用默认值
	ApplyDefaults(cfg)

	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults 为配置项设置默认值
func ApplyDefaults(cfg *Config) {
	// 数据目录默认值
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	cfg.Database.ApplyDefaults(cfg.DataDir)
	cfg.Logging.ApplyDefaults(cfg.DataDir)

	gw := &cfg.Gateway
	if gw.ApplicationURI == "" {
		gw.ApplicationURI = "urn:opcgw:gateway"
	}
	if gw.ApplicationName == "" {
		gw.ApplicationName = "OPC Twin Gateway"
	}
	if gw.ProductURI == "" {
		gw.ProductURI = "https://github.com/9triver/opcgw"
	}
	if len(gw.BaseAddresses) == 0 {
		gw.BaseAddresses = []string{"https://localhost:51111/ua"}
	}
	if len(gw.SecurityPolicies) == 0 {
		gw.SecurityPolicies = []string{ua.SecurityPolicyURIBasic256Sha256}
	}
	if len(gw.TransportProfiles) == 0 {
		gw.TransportProfiles = []string{TransportProfileURIHTTPSBinary}
	}
	if gw.MinNonceLength == 0 {
		gw.MinNonceLength = 32
	}
	if gw.MinSessionTimeoutMs == 0 {
		gw.MinSessionTimeoutMs = 10000
	}
	if gw.MaxSessionTimeoutMs == 0 {
		gw.MaxSessionTimeoutMs = 3600000
	}
	if gw.MaxSessions == 0 {
		gw.MaxSessions = 100
	}
	if gw.MaxRequestSize == 0 {
		gw.MaxRequestSize = 4 * 1024 * 1024
	}
	if gw.MaxConcurrentItems == 0 {
		gw.MaxConcurrentItems = 8
	}
	if gw.BackendTimeoutSeconds == 0 {
		gw.BackendTimeoutSeconds = 30
	}
	if len(gw.UserTokenPolicies) == 0 {
		gw.UserTokenPolicies = []UserTokenPolicyConfig{
			{PolicyID: "anonymous", TokenType: "anonymous"},
			{PolicyID: "username", TokenType: "username", SecurityPolicyURI: ua.SecurityPolicyURIBasic256Sha256},
		}
	}

	// 后端默认值
	if cfg.Twin.URL == "" {
		cfg.Twin.URL = "http://localhost:9041"
	}
	if cfg.Twin.TimeoutSeconds == 0 {
		cfg.Twin.TimeoutSeconds = gw.BackendTimeoutSeconds
	}
	if cfg.Registry.URL == "" {
		cfg.Registry.URL = "http://localhost:9042"
	}
	if cfg.Registry.TimeoutSeconds == 0 {
		cfg.Registry.TimeoutSeconds = gw.BackendTimeoutSeconds
	}

	// 管理接口默认值
	if cfg.Transport.HTTP.Port == 0 {
		cfg.Transport.HTTP.Port = 8080 // 默认管理接口端口
	}
	if cfg.Transport.RPC.Health.Port == 0 {
		cfg.Transport.RPC.Health.Port = 50051 // 默认健康检查端口
	}
	if cfg.Auth.AdminName == "" {
		cfg.Auth.AdminName = "admin"
	}
}
