// Package initdata проверяет подпись init data, которую Telegram передаёт мини-приложению.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
)

var (
	ErrMissingHash   = errors.New("init data: hash is missing")
	ErrInvalidHash   = errors.New("init data: signature mismatch")
	ErrExpired       = errors.New("init data: auth_date is too old")
	ErrMissingUser   = errors.New("init data: user is missing")
	ErrMalformedData = errors.New("init data: malformed")
)

// Data - проверенные поля init data.
type Data struct {
	User     models.Identity
	AuthDate time.Time
	QueryID  string
}

// Validator проверяет init data ключом бота.
type Validator struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewValidator готовит секрет: HMAC_SHA256("WebAppData", botToken).
// maxAge <= 0 отключает проверку свежести.
func NewValidator(botToken string, maxAge time.Duration) *Validator {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return &Validator{secret: mac.Sum(nil), maxAge: maxAge, now: time.Now}
}

// Validate проверяет подпись и возвращает разобранного пользователя.
func (v *Validator) Validate(raw string) (Data, error) {
	const op = "initdata.Validator.Validate"

	values, err := url.ParseQuery(raw)
	if err != nil {
		return Data{}, fmt.Errorf("%s: %w", op, ErrMalformedData)
	}

	hash := values.Get("hash")
	if hash == "" {
		return Data{}, ErrMissingHash
	}
	values.Del("hash")

	expected := v.sign(values)
	got, err := hex.DecodeString(hash)
	if err != nil || !hmac.Equal(expected, got) {
		return Data{}, ErrInvalidHash
	}

	var data Data
	if ts := values.Get("auth_date"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return Data{}, fmt.Errorf("%s: auth_date: %w", op, ErrMalformedData)
		}
		data.AuthDate = time.Unix(sec, 0)
	}
	if v.maxAge > 0 && (data.AuthDate.IsZero() || v.now().Sub(data.AuthDate) > v.maxAge) {
		return Data{}, ErrExpired
	}

	rawUser := values.Get("user")
	if rawUser == "" {
		return Data{}, ErrMissingUser
	}
	if err := json.Unmarshal([]byte(rawUser), &data.User); err != nil {
		return Data{}, fmt.Errorf("%s: user: %w", op, ErrMalformedData)
	}
	if data.User.ExternalUserID == 0 {
		return Data{}, ErrMissingUser
	}
	data.QueryID = values.Get("query_id")

	return data, nil
}

// Sign возвращает hex-подпись для набора полей. Нужен тестам и локальной отладке.
func (v *Validator) Sign(values url.Values) string {
	return hex.EncodeToString(v.sign(values))
}

// data-check-string: пары key=value по алфавиту, через перевод строки
func (v *Validator) sign(values url.Values) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}
