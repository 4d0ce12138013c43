// Package admin проверяет учётные данные администратора и выдаёт токен доступа.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/purchasekit/internal/lib/jwt"
	"github.com/magabrotheeeer/purchasekit/internal/lib/password"
)

var (
	// ErrInvalidCredentials — неверное имя пользователя или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotConfigured — учётная запись администратора не задана.
	ErrNotConfigured = errors.New("admin account is not configured")
)

// AuthService хранит единственную учётную запись администратора из конфига.
type AuthService struct {
	username     string
	passwordHash string
	jwtMaker     jwt.Maker
}

// NewAuthService создает сервис. Пароль передаётся только bcrypt-хэшем.
func NewAuthService(username, passwordHash string, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		username:     username,
		passwordHash: passwordHash,
		jwtMaker:     jwtMaker,
	}
}

// Login проверяет имя и пароль и выпускает токен с ролью admin.
func (s *AuthService) Login(_ context.Context, username, rawPassword string) (string, error) {
	const op = "admin.Login"
	if s.username == "" || s.passwordHash == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNotConfigured)
	}

	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	err := password.CompareHash(s.passwordHash, rawPassword)
	if errors.Is(err, password.ErrMismatch) || (err == nil && !nameOK) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.jwtMaker.GenerateToken(s.username, jwt.RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}
