// Package cart содержит агрегат корзины покупателя.
package cart

import (
	"errors"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/shopspring/decimal"
)

var ErrInvalidQuantity = errors.New("quantity must not be negative")

// Cart - упорядоченный набор строк, уникальных по id.
// Порядок вставки совпадает с порядком отображения.
// Итоги не кешируются и считаются при каждом чтении.
// Cart не потокобезопасен, синхронизацию обеспечивает владелец (сессия).
type Cart struct {
	items []models.LineItem
}

// New создает пустую корзину
func New() *Cart {
	return &Cart{}
}

// FromItems восстанавливает корзину из снимка, строки с нулевым количеством отбрасываются,
// повторяющиеся id складываются
func FromItems(items []models.LineItem) *Cart {
	c := New()
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if i := c.indexOf(it.ID); i >= 0 {
			c.items[i].Quantity += it.Quantity
			continue
		}
		c.items = append(c.items, it)
	}
	return c
}

// AddItem увеличивает количество на 1 или добавляет новую строку с количеством 1
func (c *Cart) AddItem(p models.Product) {
	if i := c.indexOf(p.ID); i >= 0 {
		c.items[i].Quantity++
		return
	}
	c.items = append(c.items, models.LineItem{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Image:     p.Image,
		Quantity:  1,
	})
}

// SetQuantity выставляет количество. q == 0 удаляет строку, неизвестный id - no-op
func (c *Cart) SetQuantity(id string, q int) error {
	if q < 0 {
		return ErrInvalidQuantity
	}
	if q == 0 {
		c.RemoveItem(id)
		return nil
	}
	if i := c.indexOf(id); i >= 0 {
		c.items[i].Quantity = q
	}
	return nil
}

// RemoveItem удаляет строку, если она есть
func (c *Cart) RemoveItem(id string) {
	i := c.indexOf(id)
	if i < 0 {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
}

// Clear очищает корзину после успешного заказа
func (c *Cart) Clear() {
	c.items = nil
}

// Subtotal = Σ unitPrice × quantity
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.ExtendedPrice())
	}
	return total
}

// ItemCount = Σ quantity
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

func (c *Cart) Len() int {
	return len(c.items)
}

// Items возвращает копию строк, изменение результата не затрагивает корзину
func (c *Cart) Items() []models.LineItem {
	out := make([]models.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) indexOf(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}
