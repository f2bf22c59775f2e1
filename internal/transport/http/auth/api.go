package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/9triver/opcgw/internal/config"
	httpauth "github.com/9triver/opcgw/internal/transport/http/util/auth"
	"github.com/9triver/opcgw/internal/transport/http/util/response"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	maxFailedLogins = 5
	lockDuration    = 30 * time.Minute
)

// RegisterRoutes 注册认证路由
func RegisterRoutes(router *mux.Router, cfg *config.AuthConfig, issuer *httpauth.Issuer) *API {
	api := NewAPI(cfg, issuer)
	router.HandleFunc("/auth/login", api.handleLogin).Methods("POST")
	router.HandleFunc("/auth/logout", api.handleLogout).Methods("POST")
	router.HandleFunc("/auth/me", api.handleGetCurrentUser).Methods("GET")
	return api
}

// API 管理员登录
// 管理接口只有配置文件中的一个管理员账户
type API struct {
	adminName string
	adminHash string
	issuer    *httpauth.Issuer
	lockout   *lockout
}

func NewAPI(cfg *config.AuthConfig, issuer *httpauth.Issuer) *API {
	api := &API{
		adminName: cfg.AdminName,
		issuer:    issuer,
		lockout:   newLockout(maxFailedLogins, lockDuration),
	}
	if cfg.AdminPassword == "" {
		logrus.Warn("auth.admin_password not set, management login is disabled")
		return api
	}
	hash, err := httpauth.HashPassword(cfg.AdminPassword)
	if err != nil {
		logrus.Errorf("Failed to hash admin password, management login is disabled: %v", err)
		return api
	}
	api.adminHash = hash
	return api
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (api *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest("invalid request body: " + err.Error()).WriteJSON(w)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		response.BadRequest("username is required").WriteJSON(w)
		return
	}

	if until := api.lockout.lockedUntil(username); !until.IsZero() {
		resp := response.BusinessError(http.StatusUnauthorized, "account locked", map[string]any{
			"remainingAttempts": 0,
			"locked":            true,
			"lockedUntil":       until.Format(time.RFC3339),
		})
		resp.Error = "account is locked due to too many failed login attempts"
		resp.WriteJSON(w)
		return
	}

	if api.adminHash == "" || username != api.adminName || !httpauth.VerifyPassword(req.Password, api.adminHash) {
		remaining := api.lockout.failure(username)
		resp := response.BusinessError(http.StatusUnauthorized, "invalid credentials", map[string]any{
			"remainingAttempts": remaining,
			"locked":            remaining == 0,
		})
		resp.Error = fmt.Sprintf("invalid username or password, remaining attempts: %d", remaining)
		resp.WriteJSON(w)
		return
	}
	api.lockout.success(username)

	token, expiresAt, err := api.issuer.Generate(username)
	if err != nil {
		logrus.Errorf("Failed to generate token: %v", err)
		response.InternalError("failed to generate token").WriteJSON(w)
		return
	}
	logrus.Infof("User logged in: %s", username)
	response.Success(LoginResponse{Username: username, Token: token, ExpiresAt: expiresAt}).WriteJSON(w)
}

func (api *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := httpauth.GetTokenFromContext(r.Context())
	claims, err := api.issuer.Validate(token)
	if err != nil {
		response.Unauthorized("invalid or expired token").WriteJSON(w)
		return
	}
	api.issuer.Revoke(token, claims.ExpiresAt.Time)
	logrus.Infof("User logged out: %s", claims.Username)
	response.Success(nil).WriteJSON(w)
}

func (api *API) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	username := httpauth.GetUsernameFromContext(r.Context())
	if username == "" {
		response.Unauthorized("authentication required").WriteJSON(w)
		return
	}
	response.Success(map[string]string{"username": username}).WriteJSON(w)
}
