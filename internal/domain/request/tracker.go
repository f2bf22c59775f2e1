package request

import (
	"sync"

	"github.com/9triver/opcgw/internal/domain/gateway/types"
	"github.com/sirupsen/logrus"
)

// Tracker 在途请求登记表，按请求句柄查找以便取消
type Tracker struct {
	mu       sync.Mutex
	inflight map[uint32]map[string]*types.RequestContext // handle -> request id -> ctx
	closed   bool
}

func NewTracker() *Tracker {
	return &Tracker{inflight: make(map[uint32]map[string]*types.RequestContext)}
}

// RequestReceived 登记请求
func (t *Tracker) RequestReceived(rc *types.RequestContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		rc.Cancel()
		return
	}
	byID, ok := t.inflight[rc.RequestHandle]
	if !ok {
		byID = make(map[string]*types.RequestContext)
		t.inflight[rc.RequestHandle] = byID
	}
	byID[rc.RequestID] = rc
}

// RequestCompleted 注销请求
func (t *Tracker) RequestCompleted(rc *types.RequestContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byID, ok := t.inflight[rc.RequestHandle]
	if !ok {
		return
	}
	delete(byID, rc.RequestID)
	if len(byID) == 0 {
		delete(t.inflight, rc.RequestHandle)
	}
}

// CancelRequests 取消与调用方同一会话、句柄为 handle 的在途请求，返回取消数量
func (t *Tracker) CancelRequests(caller *types.RequestContext, handle uint32) int {
	t.mu.Lock()
	var targets []*types.RequestContext
	for id, rc := range t.inflight[handle] {
		if id == caller.RequestID || rc.SessionID() != caller.SessionID() {
			continue
		}
		targets = append(targets, rc)
	}
	t.mu.Unlock()

	for _, rc := range targets {
		rc.Cancel()
	}
	if len(targets) > 0 {
		logrus.WithField("session", caller.SessionID()).Debugf("Cancelled %d requests with handle %d", len(targets), handle)
	}
	return len(targets)
}

// InFlight 在途请求数
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, byID := range t.inflight {
		n += len(byID)
	}
	return n
}

// Close 取消全部在途请求，之后登记的请求立即取消
func (t *Tracker) Close() error {
	t.mu.Lock()
	pending := t.inflight
	t.inflight = make(map[uint32]map[string]*types.RequestContext)
	t.closed = true
	t.mu.Unlock()

	for _, byID := range pending {
		for _, rc := range byID {
			rc.Cancel()
		}
	}
	return nil
}
