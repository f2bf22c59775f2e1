package auth

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// DefaultTokenExpiration 管理接口 token 有效期
const DefaultTokenExpiration = 12 * time.Hour

// ErrTokenRevoked token 已注销
var ErrTokenRevoked = errors.New("token has been revoked")

// Claims JWT Claims 结构
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer 签发和校验管理接口 token
type Issuer struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time // token -> 过期时间
}

// NewIssuer 创建签发器，secret 为空时使用进程内随机密钥
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(err)
		}
		logrus.Warn("auth.jwt_secret not set, management tokens will not survive a restart")
	}
	if ttl <= 0 {
		ttl = DefaultTokenExpiration
	}
	return &Issuer{
		secret:  key,
		ttl:     ttl,
		revoked: make(map[string]time.Time),
	}
}

// Generate 生成 JWT token
func (i *Issuer) Generate(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.ttl)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate 验证 JWT token
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	i.mu.Lock()
	_, revoked := i.revoked[tokenString]
	i.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Revoke 注销 token，过期后自动从黑名单移除
func (i *Issuer) Revoke(tokenString string, expiresAt time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	for t, exp := range i.revoked {
		if now.After(exp) {
			delete(i.revoked, t)
		}
	}
	i.revoked[tokenString] = expiresAt
}
