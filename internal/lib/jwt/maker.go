// Package jwt выпускает и проверяет HS256 токены администратора.
package jwt

import (
	"time"
)

// RoleAdmin — роль, которой разрешено менять переопределение состояния покупки.
const RoleAdmin = "admin"

// Maker выпускает и разбирает токены доступа.
type Maker interface {
	GenerateToken(username, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl подписывает токены общим секретом.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	issuer    string
}

// NewJWTMaker создаёт выпускающего токены с секретом и временем жизни ttl.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		issuer:    "purchasekit",
	}
}
