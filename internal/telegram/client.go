// Package telegram отправляет сообщения через Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL = "https://api.telegram.org"
	parseModeHTML = "HTML"
	maxBodyBytes  = 1 << 20
)

var (
	ErrMalformedResponse = errors.New("malformed telegram response")
	ErrMissingToken      = errors.New("telegram bot token is not set")
)

// APIError - ответ Bot API с ok=false
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram api error %d: %s (retry after %ds)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

type Config struct {
	APIURL        string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
}

type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

func NewClient(log *slog.Logger, cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		log:     log,
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.APIURL, "/") + "/bot" + cfg.Token,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Send вызывает sendMessage. true возвращается только если Telegram подтвердил
// доставку: ok=true и в ответе есть message_id
func (c *Client) Send(ctx context.Context, text, chatID string) (bool, error) {
	const op = "telegram.Client.Send"
	logger := c.log.With(slog.String("op", op), slog.String("chatID", chatID))

	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseModeHTML})
	if err != nil {
		return false, fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// в тексте ошибки http-клиента есть URL с токеном
		return false, fmt.Errorf("%s: request failed: %w", op, redact(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		logger.Error("failed to decode response", slog.Int("status", resp.StatusCode))
		return false, fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, ErrMalformedResponse)
	}
	if !ar.OK {
		apiErr := &APIError{Code: ar.ErrorCode, Description: ar.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if ar.Parameters != nil {
			apiErr.RetryAfter = ar.Parameters.RetryAfter
		}
		return false, fmt.Errorf("%s: %w", op, apiErr)
	}

	var msg message
	if err := json.Unmarshal(ar.Result, &msg); err != nil || msg.MessageID == 0 {
		return false, fmt.Errorf("%s: result without message id: %w", op, ErrMalformedResponse)
	}

	logger.Debug("message delivered", slog.Int64("messageID", msg.MessageID))
	return true, nil
}

func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
