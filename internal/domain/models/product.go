package models

import "github.com/shopspring/decimal"

// Product представляет позицию меню, доступную для добавления в корзину
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"` // эмодзи или токен изображения
	Category    string          `json:"category"`
	IsPopular   bool            `json:"isPopular"`
}

// LineItem - строка корзины. Количество всегда больше нуля, пока строка в корзине
type LineItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// ExtendedPrice возвращает цену строки: unitPrice × quantity
func (li LineItem) ExtendedPrice() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}
