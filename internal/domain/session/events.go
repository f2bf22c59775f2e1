package session

import (
	"sync"

	"github.com/9triver/opcgw/internal/domain/gateway/types"
)

// EventHandler 会话事件处理函数
type EventHandler func(types.SessionEvent)

// EventHub 会话事件分发，处理函数在发布者的 goroutine 中同步执行
type EventHub struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func NewEventHub() *EventHub {
	return &EventHub{}
}

func (h *EventHub) Subscribe(handler EventHandler) {
	if handler == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.handlers = append(h.handlers, handler)
}

func (h *EventHub) Publish(event types.SessionEvent) {
	if h == nil {
		return
	}

	h.mu.RLock()
	handlers := append([]EventHandler(nil), h.handlers...)
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
