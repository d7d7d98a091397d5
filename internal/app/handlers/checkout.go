package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/linemk/telegram-shop/internal/checkout"
	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/service"
)

// CheckoutFormRequest - частичное обновление формы, отсутствующие поля не меняются
type CheckoutFormRequest struct {
	Phone           *string `json:"phone" validate:"omitempty,max=32"`
	OrderType       *string `json:"orderType" validate:"omitempty,oneof=pickup delivery"`
	DeliveryAddress *string `json:"deliveryAddress" validate:"omitempty,max=256"`
}

// CancelRequest - ответ пользователя на подтверждение сброса формы. По умолчанию true
type CancelRequest struct {
	Confirmed *bool `json:"confirmed"`
}

// CheckoutResponse - состояние оформления и события для мини-приложения
type CheckoutResponse struct {
	service.CheckoutView
	Error string `json:"error,omitempty"`
}

type checkoutAction func(r *http.Request, p service.Principal) (service.CheckoutView, error)

// checkoutHandler - общий каркас обработчиков оформления
func checkoutHandler(log *slog.Logger, op string, action checkoutAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", op))

		p, ok := principalFrom(r)
		if !ok {
			logger.Error("claims not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		view, err := action(r, p)
		if view.Events == nil {
			view.Events = []checkout.Event{}
		}
		if view.Cart.Items == nil {
			view.Cart.Items = []models.LineItem{}
		}
		if err != nil {
			status := statusFor(err)
			logger.Error("checkout action failed", slog.Any("error", err), slog.Int("status", status))
			writeJSON(w, logger, status, CheckoutResponse{CheckoutView: view, Error: publicMessage(err, status)})
			return
		}
		writeJSON(w, logger, http.StatusOK, CheckoutResponse{CheckoutView: view})
	}
}

// CheckoutStateHandler обрабатывает запрос GET /api/checkout
func CheckoutStateHandler(log *slog.Logger, svc service.CheckoutService) http.HandlerFunc {
	return checkoutHandler(log, "handlers.CheckoutStateHandler", func(r *http.Request, p service.Principal) (service.CheckoutView, error) {
		return svc.State(r.Context(), p)
	})
}

// EnterCheckoutHandler обрабатывает запрос POST /api/checkout
func EnterCheckoutHandler(log *slog.Logger, svc service.CheckoutService) http.HandlerFunc {
	return checkoutHandler(log, "handlers.EnterCheckoutHandler", func(r *http.Request, p service.Principal) (service.CheckoutView, error) {
		return svc.Enter(r.Context(), p)
	})
}

// UpdateCheckoutFormHandler обрабатывает запрос PUT /api/checkout/form
func UpdateCheckoutFormHandler(log *slog.Logger, svc service.CheckoutService) http.HandlerFunc {
	return checkoutHandler(log, "handlers.UpdateCheckoutFormHandler", func(r *http.Request, p service.Principal) (service.CheckoutView, error) {
		var req CheckoutFormRequest
		if err := decodeJSON(r, &req); err != nil {
			return service.CheckoutView{}, fmt.Errorf("%w: %w", errInvalidRequest, err)
		}
		if err := validate.Struct(req); err != nil {
			return service.CheckoutView{}, fmt.Errorf("%w: %w", errInvalidRequest, err)
		}

		patch := checkout.FormPatch{Phone: req.Phone, DeliveryAddress: req.DeliveryAddress}
		if req.OrderType != nil {
			t, err := models.ParseOrderType(*req.OrderType)
			if err != nil {
				return service.CheckoutView{}, fmt.Errorf("%w: %w", errInvalidRequest, err)
			}
			patch.OrderType = &t
		}
		return svc.UpdateForm(r.Context(), p, patch)
	})
}

// SubmitCheckoutHandler обрабатывает запрос POST /api/checkout/submit
func SubmitCheckoutHandler(log *slog.Logger, svc service.CheckoutService) http.HandlerFunc {
	return checkoutHandler(log, "handlers.SubmitCheckoutHandler", func(r *http.Request, p service.Principal) (service.CheckoutView, error) {
		return svc.Submit(r.Context(), p)
	})
}

// CancelCheckoutHandler обрабатывает запрос POST /api/checkout/cancel
func CancelCheckoutHandler(log *slog.Logger, svc service.CheckoutService) http.HandlerFunc {
	return checkoutHandler(log, "handlers.CancelCheckoutHandler", func(r *http.Request, p service.Principal) (service.CheckoutView, error) {
		var req CancelRequest
		if err := decodeJSON(r, &req); err != nil {
			log.Warn("cancel body ignored", slog.Any("error", err))
		}
		confirmed := req.Confirmed == nil || *req.Confirmed
		return svc.Cancel(r.Context(), p, confirmed)
	})
}
