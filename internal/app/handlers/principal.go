package handlers

import (
	"errors"
	"net/http"

	"github.com/linemk/telegram-shop/internal/cart"
	"github.com/linemk/telegram-shop/internal/checkout"
	"github.com/linemk/telegram-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/telegram-shop/internal/service"
	"github.com/linemk/telegram-shop/internal/storage"
)

// principalFrom достает владельца запроса из claims, которые положил JWT middleware
func principalFrom(r *http.Request) (service.Principal, bool) {
	claims, ok := jwtmiddleware.FromContext(r.Context())
	if !ok || claims.SessionKey() == "" {
		return service.Principal{}, false
	}
	return service.Principal{SessionKey: claims.SessionKey(), Identity: claims.Identity()}, true
}

var errInvalidRequest = errors.New("invalid request")

// statusFor переводит ошибки домена в HTTP-коды
func statusFor(err error) int {
	var verr *checkout.ValidationError
	switch {
	case errors.Is(err, storage.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrNotEditing),
		errors.Is(err, checkout.ErrSubmissionInFlight),
		errors.Is(err, checkout.ErrCancelDeclined):
		return http.StatusConflict
	case errors.Is(err, service.ErrOrderFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage - текст ошибки, который можно отдать клиенту
func publicMessage(err error, status int) string {
	var verr *checkout.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case status == http.StatusInternalServerError:
		return "internal server error"
	case status == http.StatusBadGateway:
		return checkout.MsgOrderFailed
	}
	for _, sentinel := range []error{
		errInvalidRequest,
		storage.ErrProductNotFound,
		cart.ErrInvalidQuantity,
		checkout.ErrEmptyCart,
		checkout.ErrNotEditing,
		checkout.ErrSubmissionInFlight,
		checkout.ErrCancelDeclined,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(status)
}
