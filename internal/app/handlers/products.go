package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/service"
)

type ProductsResponse struct {
	Products []models.Product `json:"products"`
}

// ProductsHandler обрабатывает запрос GET /api/products
func ProductsHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ProductsHandler"
		logger := log.With(slog.String("op", op))

		products, err := cartService.Products(r.Context())
		if err != nil {
			logger.Error("failed to list products", slog.Any("error", err))
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, http.StatusOK, ProductsResponse{Products: products})
	}
}
