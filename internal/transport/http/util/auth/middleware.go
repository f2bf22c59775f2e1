package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/9triver/opcgw/internal/transport/http/util/response"
	"github.com/sirupsen/logrus"
)

// ContextKey 用于在 context 中存储用户信息的 key
type ContextKey string

const (
	// UserContextKey context 中用户名的 key
	UserContextKey ContextKey = "username"
	// TokenContextKey context 中原始 token 的 key
	TokenContextKey ContextKey = "token"
)

// Middleware 认证中间件，public 中的路径无需 token
// 浏览器的 websocket 无法设置请求头，因此也接受 ?token= 参数
func Middleware(issuer *Issuer, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := bearer(r)
			if !ok {
				response.Unauthorized("authorization header required").WriteJSON(w)
				return
			}

			claims, err := issuer.Validate(tokenString)
			if err != nil {
				logrus.Debugf("Token validation failed: %v", err)
				response.Unauthorized("invalid or expired token").WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims.Username)
			ctx = context.WithValue(ctx, TokenContextKey, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, true
	}
	return "", false
}

// GetUsernameFromContext 从 context 中获取用户名
func GetUsernameFromContext(ctx context.Context) string {
	if username, ok := ctx.Value(UserContextKey).(string); ok {
		return username
	}
	return ""
}

// GetTokenFromContext 从 context 中获取原始 token
func GetTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(TokenContextKey).(string); ok {
		return token
	}
	return ""
}
