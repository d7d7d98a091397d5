package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/telegram-shop/internal/domain/models"
)

var (
	ErrEmptySecret  = errors.New("jwt secret is empty")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims - содержимое токена сессии: ключ сессии в sub и личность из Telegram.
type Claims struct {
	UserID    int64  `json:"uid,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// SessionKey возвращает ключ сессии покупателя.
func (c Claims) SessionKey() string {
	return c.Subject
}

// Identity восстанавливает личность покупателя.
func (c Claims) Identity() models.Identity {
	return models.Identity{
		ExternalUserID: c.UserID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Username:       c.Username,
	}
}

// NewToken генерирует JWT-токен для сессии покупателя с заданным временем жизни.
func NewToken(sessionKey string, identity models.Identity, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := Claims{
		UserID:    identity.ExternalUserID,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Username:  identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken проверяет подпись и срок жизни токена.
func ParseToken(tokenStr, secret string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		// Проверка алгоритма
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
