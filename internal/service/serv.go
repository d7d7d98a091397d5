package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
	security "github.com/linemk/telegram-shop/internal/jwt-new"
	"github.com/linemk/telegram-shop/internal/lib/initdata"
	"github.com/linemk/telegram-shop/internal/session"
)

var ErrUnauthorized = errors.New("unauthorized")

// Principal - владелец запроса: ключ сессии и личность из токена
type Principal struct {
	SessionKey string
	Identity   models.Identity
}

// Sessions открывает сессию покупателя. Реализуется session.Manager
type Sessions interface {
	Open(ctx context.Context, key string, identity models.Identity, withBridge bool) (*session.Session, error)
}

// InitDataValidator проверяет подпись init data мини-приложения
type InitDataValidator interface {
	Validate(raw string) (initdata.Data, error)
}

// open поднимает сессию принципала. Мост к мини-приложению есть только у пользователей Telegram
func open(ctx context.Context, sessions Sessions, p Principal) (*session.Session, error) {
	return sessions.Open(ctx, p.SessionKey, p.Identity, p.Identity.ExternalUserID != 0)
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
	// AllowAnonymous разрешает вход без init data (локальная разработка без Telegram)
	AllowAnonymous bool
}

type AuthService struct {
	log       *slog.Logger
	validator InitDataValidator
	sessions  Sessions
	cfg       AuthConfig
}

func NewAuthService(log *slog.Logger, validator InitDataValidator, sessions Sessions, cfg AuthConfig) *AuthService {
	return &AuthService{
		log:       log,
		validator: validator,
		sessions:  sessions,
		cfg:       cfg,
	}
}

type AuthServiceInterface interface {
	Login(ctx context.Context, initData string) (string, error)
}

// Login проверяет init data из Telegram, открывает сессию покупателя
// и выдает JWT-токен, в котором лежат ключ сессии и личность пользователя.
// Пустая init data допускается только при AllowAnonymous.
func (a *AuthService) Login(ctx context.Context, initData string) (string, error) {
	const op = "service.AuthService.Login"
	logger := a.log.With(slog.String("op", op))

	var identity models.Identity
	switch {
	case initData != "":
		data, err := a.validator.Validate(initData)
		if err != nil {
			logger.Warn("init data rejected", slog.Any("error", err))
			return "", fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
		}
		identity = data.User
	case a.cfg.AllowAnonymous:
		logger.Debug("anonymous login")
	default:
		logger.Warn("init data is missing")
		return "", fmt.Errorf("%s: %w: init data is missing", op, ErrUnauthorized)
	}

	p := Principal{SessionKey: session.Key(identity), Identity: identity}
	if _, err := open(ctx, a.sessions, p); err != nil {
		logger.Error("failed to open session", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to open session: %w", op, err)
	}

	token, err := security.NewToken(p.SessionKey, identity, a.cfg.Secret, a.cfg.TokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("user logged in successfully", slog.String("session", p.SessionKey))
	return token, nil
}
