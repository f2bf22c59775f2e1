package gateway

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/9triver/opcgw/internal/domain/gateway/types"
	twintypes "github.com/9triver/opcgw/internal/domain/twin/types"
	"github.com/9triver/opcgw/internal/transport/http/util/response"
	"github.com/9triver/opcgw/internal/util"
	"github.com/9triver/opcgw/internal/websocket"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Gateway 网关运行状态查询
type Gateway interface {
	State() types.ServerState
	ServerError() error
	StartedAt() time.Time
	Summary() types.DiagnosticsSummary
	ApplicationURI() string
}

// SessionLister 列出当前会话
type SessionLister interface {
	Sessions() []types.SessionRef
}

// MethodMetadata 查询 twin 方法参数描述
type MethodMetadata interface {
	NodeMethodGetMetadata(ctx context.Context, twinID string, req *twintypes.MethodMetadataRequestModel) (*twintypes.MethodMetadataResponseModel, error)
}

// API 网关管理接口
type API struct {
	gateway  Gateway
	sessions SessionLister
	methods  MethodMetadata
	hub      *websocket.Hub
}

// RegisterRoutes 注册网关管理路由，sessions/methods/hub 可为 nil
func RegisterRoutes(router *mux.Router, gw Gateway, sessions SessionLister, methods MethodMetadata, hub *websocket.Hub) {
	api := &API{gateway: gw, sessions: sessions, methods: methods, hub: hub}
	router.HandleFunc("/status", api.handleStatus).Methods("GET")
	router.HandleFunc("/diagnostics/summary", api.handleSummary).Methods("GET")
	if sessions != nil {
		router.HandleFunc("/sessions", api.handleSessions).Methods("GET")
	}
	if methods != nil {
		router.HandleFunc("/twins/{twinId}/methods/metadata", api.handleMethodMetadata).Methods("GET")
	}
	if hub != nil {
		router.HandleFunc("/ws/sessions", api.handleSessionEvents).Methods("GET")
	}
	logrus.Info("Gateway API routes registered")
}

// StatusResponse 运行状态
type StatusResponse struct {
	State          string     `json:"state"`
	ApplicationURI string     `json:"applicationUri"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	Uptime         string     `json:"uptime,omitempty"`
	Error          string     `json:"error,omitempty"`
}

func (api *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		State:          api.gateway.State().String(),
		ApplicationURI: api.gateway.ApplicationURI(),
	}
	if started := api.gateway.StartedAt(); !started.IsZero() {
		resp.StartedAt = &started
		if api.gateway.State() == types.ServerStateRunning {
			resp.Uptime = time.Since(started).Truncate(time.Second).String()
		}
	}
	if err := api.gateway.ServerError(); err != nil {
		resp.Error = err.Error()
	}
	response.Success(resp).WriteJSON(w)
}

func (api *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	response.Success(api.gateway.Summary()).WriteJSON(w)
}

// SessionItem 会话列表项
type SessionItem struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	Identity  string `json:"identity,omitempty"`
	Activated bool   `json:"activated"`
}

func (api *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	refs := api.sessions.Sessions()
	items := make([]SessionItem, 0, len(refs))
	for _, ref := range refs {
		items = append(items, SessionItem{
			SessionID: ref.SessionID,
			Name:      ref.Name,
			Identity:  ref.Identity,
			Activated: ref.Activated,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SessionID < items[j].SessionID })
	response.Success(map[string]any{"sessions": items, "total": len(items)}).WriteJSON(w)
}

func (api *API) handleMethodMetadata(w http.ResponseWriter, r *http.Request) {
	twinID := mux.Vars(r)["twinId"]
	methodID := r.URL.Query().Get("methodId")
	if methodID == "" {
		response.BadRequest("methodId is required").WriteJSON(w)
		return
	}

	meta, err := api.methods.NodeMethodGetMetadata(r.Context(), twinID, &twintypes.MethodMetadataRequestModel{MethodID: methodID})
	if err != nil {
		logrus.Warnf("Failed to get metadata of %s on twin %s: %v", methodID, twinID, err)
		response.FromError(err).WriteJSON(w)
		return
	}
	response.Success(meta).WriteJSON(w)
}

func (api *API) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	api.hub.HandleWebSocket(w, r, util.GenIDWith(util.PrefixWebSocket))
}
