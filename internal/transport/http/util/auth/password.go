package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost bcrypt 加密成本
const BcryptCost = 10

// HashPassword 使用 bcrypt 加密密码
// 前端可能发送 SHA-256 十六进制摘要，明文会先做同样的摘要，两种形式因此等价
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(normalize(password)), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword 验证密码
func VerifyPassword(password, hashedPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(normalize(password))) == nil
}

func normalize(password string) string {
	if len(password) == sha256.Size*2 && isHexString(password) {
		return password
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func isHexString(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
