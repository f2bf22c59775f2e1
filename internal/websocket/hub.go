package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/9triver/opcgw/internal/domain/gateway/types"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client 一个订阅会话事件的管理端连接
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan types.SessionEvent
}

// Hub 向所有已连接的管理端广播会话生命周期事件
type Hub struct {
	clients map[*Client]bool

	broadcast  chan types.SessionEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	once       sync.Once

	mutex sync.RWMutex
}

// NewHub 创建 hub，需要调用 Run 才开始分发
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan types.SessionEvent, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 分发循环，Stop 后返回
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logrus.Debugf("WebSocket client registered: %s", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			logrus.Debugf("WebSocket client unregistered: %s", client.ID)

		case event := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.Send <- event:
				default:
					// 消费过慢的连接直接断开
					delete(h.clients, client)
					close(client.Send)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Stop 停止分发并关闭所有连接
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Publish 广播事件，队列满时丢弃
// 签名与会话事件订阅回调一致，可直接注册到 registrar
func (h *Hub) Publish(event types.SessionEvent) {
	select {
	case h.broadcast <- event:
	default:
		logrus.Warnf("Dropped %s event for session %s: broadcast queue full", event.Type, event.SessionID)
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket 升级连接并开始推送
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		ID:   clientID,
		Conn: conn,
		Send: make(chan types.SessionEvent, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				logrus.Debugf("WebSocket write to %s failed: %v", client.ID, err)
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理控制帧，连接断开时注销
func (h *Hub) readPump(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.Conn.Close()
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Debugf("WebSocket error: %v", err)
			}
			return
		}
	}
}
