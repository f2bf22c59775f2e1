package util

import (
	"github.com/lithammer/shortuuid/v4"
)

// ID 前缀
const (
	PrefixRequest   = "req-"
	PrefixSession   = "session-"
	PrefixAudit     = "audit-"
	PrefixWebSocket = "ws-"
)

// GenIDWith 生成带前缀的短 UUID，e.g., "req-3nGoFv8Qs..."
func GenIDWith(prefix string) string {
	return prefix + shortuuid.New()
}
