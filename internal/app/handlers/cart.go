package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/service"
	"github.com/linemk/telegram-shop/internal/session"
)

type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
}

type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=999"`
}

// CartResponse - корзина и, при ошибке, ее описание
type CartResponse struct {
	session.CartView
	Error string `json:"error,omitempty"`
}

// GetCartHandler обрабатывает запрос GET /api/cart
func GetCartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetCartHandler"
		logger := log.With(slog.String("op", op))

		p, ok := principalFrom(r)
		if !ok {
			logger.Error("claims not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		view, err := cartService.Cart(r.Context(), p)
		writeCart(w, logger, view, err)
	}
}

// AddItemHandler обрабатывает запрос POST /api/cart/items
func AddItemHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AddItemHandler"
		logger := log.With(slog.String("op", op))

		p, ok := principalFrom(r)
		if !ok {
			logger.Error("claims not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req AddItemRequest
		if err := decodeJSON(r, &req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		view, err := cartService.AddItem(r.Context(), p, req.ProductID)
		writeCart(w, logger, view, err)
	}
}

// SetQuantityHandler обрабатывает запрос PUT /api/cart/items/{id}. Количество 0 удаляет строку
func SetQuantityHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SetQuantityHandler"
		logger := log.With(slog.String("op", op))

		p, ok := principalFrom(r)
		if !ok {
			logger.Error("claims not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req SetQuantityRequest
		if err := decodeJSON(r, &req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			http.Error(w, "validation error", http.StatusBadRequest)
			return
		}

		view, err := cartService.SetQuantity(r.Context(), p, chi.URLParam(r, "id"), *req.Quantity)
		writeCart(w, logger, view, err)
	}
}

// RemoveItemHandler обрабатывает запрос DELETE /api/cart/items/{id}
func RemoveItemHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RemoveItemHandler"
		logger := log.With(slog.String("op", op))

		p, ok := principalFrom(r)
		if !ok {
			logger.Error("claims not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		view, err := cartService.RemoveItem(r.Context(), p, chi.URLParam(r, "id"))
		writeCart(w, logger, view, err)
	}
}

func writeCart(w http.ResponseWriter, logger *slog.Logger, view session.CartView, err error) {
	if view.Items == nil {
		view.Items = []models.LineItem{}
	}
	if err != nil {
		status := statusFor(err)
		logger.Error("cart operation failed", slog.Any("error", err), slog.Int("status", status))
		writeJSON(w, logger, status, CartResponse{CartView: view, Error: publicMessage(err, status)})
		return
	}
	writeJSON(w, logger, http.StatusOK, CartResponse{CartView: view})
}
