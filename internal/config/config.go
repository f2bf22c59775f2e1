package config

import (
	"github.com/9triver/opcgw/internal/infra/database"
	"github.com/9triver/opcgw/internal/infra/logging"
)

// Config 应用级配置
// 包含网关运行所需的所有配置，各模块配置通过组合方式引入
type Config struct {
	DataDir string `yaml:"data_dir"` // e.g., "./data" - directory for SQLite databases

	// 基础设施配置
	Database database.Config `yaml:"database"` // Database configuration
	Logging  logging.Config  `yaml:"logging"`  // Logging configuration

	// 领域模块配置
	Gateway   GatewayConfig   `yaml:"gateway"`   // 协议网关配置
	Twin      BackendConfig   `yaml:"twin"`      // twin 后端服务
	Registry  BackendConfig   `yaml:"registry"`  // registry 后端服务
	Transport TransportConfig `yaml:"transport"` // 管理接口
	Auth      AuthConfig      `yaml:"auth"`      // 管理接口认证
}

// GatewayConfig 协议网关配置
type GatewayConfig struct {
	ApplicationURI  string   `yaml:"application_uri"`  // 网关自身的 ApplicationUri
	ApplicationName string   `yaml:"application_name"` // e.g., "OPC Twin Gateway"
	ProductURI      string   `yaml:"product_uri"`
	BaseAddresses   []string `yaml:"base_addresses"` // e.g., ["https://gateway:51111/ua"]，第一个作为对外地址

	SecurityPolicies  []string `yaml:"security_policies"`  // 支持的安全策略 URI
	TransportProfiles []string `yaml:"transport_profiles"` // 提供的传输协议 profile，默认 https-uabinary

	CertificateFile       string   `yaml:"certificate_file"`        // PEM/DER 实例证书
	PrivateKeyFile        string   `yaml:"private_key_file"`        // PEM 私钥
	CertificateChainFiles []string `yaml:"certificate_chain_files"` // 颁发者证书
	SendCertificateChain  bool     `yaml:"send_certificate_chain"`  // CreateSession 是否返回完整证书链
	TrustListDir          string   `yaml:"trust_list_dir"`          // 受信任证书目录

	MinNonceLength      int     `yaml:"min_nonce_length"`       // default: 32
	MinSessionTimeoutMs float64 `yaml:"min_session_timeout_ms"` // default: 10000
	MaxSessionTimeoutMs float64 `yaml:"max_session_timeout_ms"` // default: 3600000
	MaxSessions         int     `yaml:"max_sessions"`           // default: 100
	MaxRequestSize      uint32  `yaml:"max_request_size"`       // default: 4MB

	MaxConcurrentItems    int `yaml:"max_concurrent_items"`    // 单个批量请求内并发后端调用数，default: 8
	BackendTimeoutSeconds int `yaml:"backend_timeout_seconds"` // 单个后端调用超时，default: 30

	UserTokenPolicies []UserTokenPolicyConfig `yaml:"user_token_policies"`
}

// UserTokenPolicyConfig 用户令牌策略
type UserTokenPolicyConfig struct {
	PolicyID          string `yaml:"policy_id"`
	TokenType         string `yaml:"token_type"` // "anonymous", "username", "certificate", "issued"
	SecurityPolicyURI string `yaml:"security_policy_uri"`
}

// BackendConfig 后端微服务配置
type BackendConfig struct {
	URL            string `yaml:"url"`             // e.g., "http://twin:9041"
	TimeoutSeconds int    `yaml:"timeout_seconds"` // default: 30
}

// TransportConfig 管理接口配置
type TransportConfig struct {
	HTTP HTTPConfig `yaml:"http"`
	RPC  RPCConfig  `yaml:"rpc"`
}

// HTTPConfig HTTP 管理接口
type HTTPConfig struct {
	Port int `yaml:"port"` // e.g., 8080
}

// RPCConfig gRPC 服务配置
type RPCConfig struct {
	Health HealthConfig `yaml:"health"`
}

// HealthConfig gRPC 健康检查服务
type HealthConfig struct {
	Port int `yaml:"port"` // e.g., 50051
}

// AuthConfig 管理接口认证
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	AdminName     string `yaml:"admin_name"`
	AdminPassword string `yaml:"admin_password"`
}

// BaseAddress 返回对外公布的基础地址
func (c *GatewayConfig) BaseAddress() string {
	if len(c.BaseAddresses) == 0 {
		return ""
	}
	return c.BaseAddresses[0]
}
