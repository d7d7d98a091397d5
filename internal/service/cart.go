package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/session"
	"github.com/linemk/telegram-shop/internal/storage"
)

// CartService - каталог и корзина покупателя.
type CartService interface {
	Products(ctx context.Context) ([]models.Product, error)
	Cart(ctx context.Context, p Principal) (session.CartView, error)
	AddItem(ctx context.Context, p Principal, productID string) (session.CartView, error)
	SetQuantity(ctx context.Context, p Principal, productID string, quantity int) (session.CartView, error)
	RemoveItem(ctx context.Context, p Principal, productID string) (session.CartView, error)
}

type cartService struct {
	log         *slog.Logger
	productRepo storage.ProductStorage
	sessions    Sessions
}

func NewCartService(log *slog.Logger, productRepo storage.ProductStorage, sessions Sessions) CartService {
	return &cartService{
		log:         log,
		productRepo: productRepo,
		sessions:    sessions,
	}
}

func (s *cartService) Products(ctx context.Context) ([]models.Product, error) {
	const op = "service.cartService.Products"

	products, err := s.productRepo.ListProducts(ctx)
	if err != nil {
		s.log.Error("failed to list products", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

func (s *cartService) Cart(ctx context.Context, p Principal) (session.CartView, error) {
	const op = "service.cartService.Cart"

	sess, err := open(ctx, s.sessions, p)
	if err != nil {
		return session.CartView{}, fmt.Errorf("%s: %w", op, err)
	}
	return sess.View(), nil
}

// AddItem берет товар из каталога, так что имя и цена строки всегда из базы, а не от клиента
func (s *cartService) AddItem(ctx context.Context, p Principal, productID string) (session.CartView, error) {
	const op = "service.cartService.AddItem"
	logger := s.log.With(slog.String("op", op), slog.String("productID", productID))

	product, err := s.productRepo.GetProductByID(ctx, productID)
	if err != nil {
		logger.Warn("failed to resolve product", slog.Any("error", err))
		return session.CartView{}, fmt.Errorf("%s: %w", op, err)
	}

	sess, err := open(ctx, s.sessions, p)
	if err != nil {
		return session.CartView{}, fmt.Errorf("%s: %w", op, err)
	}
	view, err := sess.AddItem(ctx, product)
	if err != nil {
		return view, fmt.Errorf("%s: %w", op, err)
	}
	logger.Debug("item added", slog.Int("itemCount", view.ItemCount))
	return view, nil
}

func (s *cartService) SetQuantity(ctx context.Context, p Principal, productID string, quantity int) (session.CartView, error) {
	const op = "service.cartService.SetQuantity"

	sess, err := open(ctx, s.sessions, p)
	if err != nil {
		return session.CartView{}, fmt.Errorf("%s: %w", op, err)
	}
	view, err := sess.SetQuantity(ctx, productID, quantity)
	if err != nil {
		return view, fmt.Errorf("%s: %w", op, err)
	}
	return view, nil
}

func (s *cartService) RemoveItem(ctx context.Context, p Principal, productID string) (session.CartView, error) {
	const op = "service.cartService.RemoveItem"

	sess, err := open(ctx, s.sessions, p)
	if err != nil {
		return session.CartView{}, fmt.Errorf("%s: %w", op, err)
	}
	return sess.RemoveItem(ctx, productID)
}
