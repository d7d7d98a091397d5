package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/telegram-shop/internal/domain/models"
)

// ProductStorage описывает методы для работы с каталогом меню.
type ProductStorage interface {
	// ListProducts возвращает всё меню: сначала популярные позиции, затем по категории и имени.
	ListProducts(ctx context.Context) ([]models.Product, error)
	// GetProductByID ищет позицию меню по идентификатору.
	GetProductByID(ctx context.Context, id string) (models.Product, error)
}

// productRepository - реализация ProductStorage поверх Postgres.
type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт новый репозиторий каталога.
func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

var ErrProductNotFound = errors.New("product not found")

const productColumns = "id, name, description, price, image, category, is_popular"

// ListProducts читает всю таблицу products.
func (r *productRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	const op = "storage.productRepository.ListProducts"

	query := "SELECT " + productColumns + " FROM products ORDER BY is_popular DESC, category, name"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

// GetProductByID ищет позицию по id.
func (r *productRepository) GetProductByID(ctx context.Context, id string) (models.Product, error) {
	const op = "storage.productRepository.GetProductByID"

	var p models.Product
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err := scanProduct(row, &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, ErrProductNotFound
		}
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner, p *models.Product) error {
	return s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Category, &p.IsPopular)
}
