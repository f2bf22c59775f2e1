package auth

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// loginAttempt 登录失败记录
type loginAttempt struct {
	failed      int
	lockedUntil time.Time
}

// lockout 连续登录失败后锁定账户
type lockout struct {
	mu       sync.Mutex
	attempts map[string]*loginAttempt
	max      int
	duration time.Duration
	now      func() time.Time
}

func newLockout(max int, duration time.Duration) *lockout {
	return &lockout{
		attempts: make(map[string]*loginAttempt),
		max:      max,
		duration: duration,
		now:      time.Now,
	}
}

// lockedUntil 返回锁定到期时间，未锁定时为零值
func (l *lockout) lockedUntil(username string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[username]
	if !ok || a.lockedUntil.IsZero() {
		return time.Time{}
	}
	if l.now().After(a.lockedUntil) {
		delete(l.attempts, username)
		return time.Time{}
	}
	return a.lockedUntil
}

// failure 记录一次失败，返回剩余可重试次数
func (l *lockout) failure(username string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[username]
	if !ok {
		a = &loginAttempt{}
		l.attempts[username] = a
	}
	a.failed++
	if a.failed >= l.max {
		a.lockedUntil = l.now().Add(l.duration)
		logrus.Warnf("User %s locked after %d failed login attempts, until %v", username, a.failed, a.lockedUntil)
		return 0
	}
	logrus.Warnf("User %s failed login attempt %d/%d", username, a.failed, l.max)
	return l.max - a.failed
}

func (l *lockout) success(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, username)
}
